package api

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/metrics"
)

// accessLogWriter wraps http.ResponseWriter to capture the status code
type accessLogWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *accessLogWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *accessLogWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *accessLogWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// AccessLogger logs every request and records it in the API metrics.
func AccessLogger(logger *logging.Logger, reg *metrics.Registry) func(http.Handler) http.Handler {
	logger = logger.WithComponent("access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &accessLogWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", getClientIP(r),
				"status", rw.status,
				"size", rw.size,
				"duration", duration,
			)
			if reg != nil {
				reg.RecordAPIRequest(r.Method, routeLabel(r.URL.Path), rw.status, duration.Seconds())
			}
		})
	}
}

// routeLabel reduces a path to its endpoint, dropping UUIDs and other path
// arguments so the metric label set stays bounded.
func routeLabel(path string) string {
	if !strings.HasPrefix(path, apiPrefix+"/") {
		switch path {
		case "/metrics", "/healthz":
			return path
		}
		return "other"
	}
	parts := strings.SplitN(strings.TrimPrefix(path, apiPrefix+"/"), "/", 3)
	if len(parts) < 2 {
		return "other"
	}
	return apiPrefix + "/" + parts[0] + "/" + parts[1]
}
