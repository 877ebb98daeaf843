package auth

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"grimm.is/rnsgate/internal/i18n"
	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/ratelimit"
)

// ContextKey is used for storing the caller in the request context
type ContextKey string

const CallerContextKey ContextKey = "caller"

// Anonymous names callers when authentication is disabled.
const Anonymous = "anonymous"

// Middleware provides HTTP middleware for authentication
type Middleware struct {
	keys     *KeyStore
	required bool
	logger   *logging.Logger
	failures *ratelimit.Limiter
}

// NewMiddleware creates a new auth middleware. With required unset every
// request passes as Anonymous.
func NewMiddleware(keys *KeyStore, required bool, logger *logging.Logger) *Middleware {
	return &Middleware{keys: keys, required: required, logger: logger.WithComponent("auth")}
}

// LimitFailures rejects clients with 429 once they used up the failed
// attempts granted by l. A successful login clears the client's count.
func (m *Middleware) LimitFailures(l *ratelimit.Limiter) *Middleware {
	m.failures = l
	return m
}

// RequireKey wraps a handler to require a valid key/secret pair.
func (m *Middleware) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.required {
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Anonymous)))
			return
		}

		p := i18n.GetPrinter(r.Context())
		key, secret, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, p.Sprintf(i18n.MsgAuthRequired))
			return
		}

		remote := remoteHost(r)
		if m.failures != nil && m.failures.Exhausted(remote) {
			wait := int(math.Ceil(m.failures.RetryAfter(remote).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			writeStatus(w, http.StatusTooManyRequests, p.Sprintf(i18n.MsgTooManyAttempts, wait))
			return
		}
		if err := m.keys.Verify(key, secret); err != nil {
			m.logger.Warn("Rejected API key", "key", key, "remote", remote)
			if m.failures != nil {
				m.failures.Allow(remote)
			}
			unauthorized(w, p.Sprintf(i18n.MsgInvalidCreds))
			return
		}
		if m.failures != nil {
			m.failures.Reset(remote)
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), key)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="rnsgate"`)
	writeStatus(w, http.StatusUnauthorized, msg)
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": code, "message": msg})
}

// remoteHost keys failure counting on the peer address. Forwarding headers
// are ignored since a client could rotate them freely.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithCaller stores the authenticated key name in ctx.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// CallerFromContext retrieves the caller from the request context
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(CallerContextKey).(string)
	if caller == "" {
		return Anonymous
	}
	return caller
}
