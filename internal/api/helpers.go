package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/rnsgate/internal/i18n"
)

// getClientIP extracts the client IP from the request
// Respects X-Forwarded-For and X-Real-IP headers for proxy situations
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list, first is the client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, ErrorResponse{Status: code, Message: message})
}

// WriteJSON sends a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteErrorCtx sends a localized JSON error response
func WriteErrorCtx(w http.ResponseWriter, r *http.Request, code int, format string, args ...any) {
	p := i18n.GetPrinter(r.Context())
	WriteError(w, code, p.Sprintf(format, args...))
}

// failed is the answer of write endpoints that did nothing.
var failed = map[string]any{"result": "failed"}

// params holds request parameters. Values are strings, or nested maps for
// sections posted as {"reticulum": {...}} or reticulum[field]=value.
type params map[string]any

var errBadBody = errors.New("malformed request body")

// readParams collects the parameters of r. POST bodies may be JSON or form
// encoded; withQuery adds the URL query for endpoints that also serve GET.
func readParams(r *http.Request, withQuery bool) (params, error) {
	p := params{}
	if withQuery {
		p.addValues(r.URL.Query())
	}
	if r.Method != http.MethodPost {
		return p, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return p, nil
		}
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		for k, v := range doc {
			p[k] = v
		}
		return p, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	p.addValues(r.PostForm)
	return p, nil
}

func (p params) addValues(values map[string][]string) {
	for key, vs := range values {
		if len(vs) == 0 {
			continue
		}
		if base, field, ok := splitBracket(key); ok {
			section, _ := p[base].(map[string]any)
			if section == nil {
				section = map[string]any{}
				p[base] = section
			}
			section[field] = vs[0]
			continue
		}
		p[key] = vs[0]
	}
}

// splitBracket splits "reticulum[loglevel]" into "reticulum" and "loglevel".
func splitBracket(key string) (string, string, bool) {
	i := strings.IndexByte(key, '[')
	if i <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	return key[:i], key[i+1 : len(key)-1], true
}

// String returns the scalar parameter key, or def when it is absent.
func (p params) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	return scalar(v)
}

// Section returns the nested parameter key as flat strings.
func (p params) Section(key string) (map[string]string, bool) {
	m, ok := p[key].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = scalar(v)
	}
	return out, true
}

// scalar renders a decoded JSON value the way the settings tree stores it.
func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// decodeOutput decodes trimmed command output. Trailing data after the first
// JSON value is an error.
func decodeOutput(out string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(out)))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return data, nil
}

// envelope wraps command output as {"status":"ok","data":...}. Output that
// is not JSON is passed through untrimmed under rawKey.
func envelope(out, rawKey string) map[string]any {
	data, err := decodeOutput(out)
	if err != nil {
		return map[string]any{"status": "ok", "data": map[string]string{rawKey: out}}
	}
	return map[string]any{"status": "ok", "data": data}
}
