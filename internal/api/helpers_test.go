package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadParams_Form(t *testing.T) {
	body := "interface%5Bname%5D=Backbone&interface%5Bmode%5D=full&detail=1&plain"
	req := httptest.NewRequest(http.MethodPost, "/x?current=2", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := readParams(req, true)
	require.NoError(t, err)
	assert.Equal(t, "2", p.String("current", ""))
	assert.Equal(t, "1", p.String("detail", "0"))
	assert.Equal(t, "", p.String("plain", "x"))
	assert.Equal(t, "x", p.String("missing", "x"))

	section, ok := p.Section("interface")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"name": "Backbone", "mode": "full"}, section)
}

func TestReadParams_JSON(t *testing.T) {
	body := `{"reticulum":{"loglevel":6,"enabled":true,"name":null,"port":1000000},"hash":"ab"}`
	req := httptest.NewRequest(http.MethodPost, "/x?hash=query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	p, err := readParams(req, false)
	require.NoError(t, err)
	assert.Equal(t, "ab", p.String("hash", ""))

	section, ok := p.Section("reticulum")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"loglevel": "6", "enabled": "1", "name": "", "port": "1000000"}, section)

	_, ok = p.Section("hash")
	assert.False(t, ok)
}

func TestReadParams_EmptyAndBroken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("  "))
	req.Header.Set("Content-Type", "application/json")
	p, err := readParams(req, false)
	require.NoError(t, err)
	assert.Empty(t, p)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`["not","an","object"]`))
	req.Header.Set("Content-Type", "application/json")
	_, err = readParams(req, false)
	assert.ErrorIs(t, err, errBadBody)

	req = httptest.NewRequest(http.MethodGet, "/x?a=1", strings.NewReader(`{"b":2}`))
	req.Header.Set("Content-Type", "application/json")
	p, err = readParams(req, false)
	require.NoError(t, err)
	assert.Empty(t, p, "GET without query reads nothing")
}

func TestSplitBracket(t *testing.T) {
	tests := []struct {
		key, base, field string
		ok               bool
	}{
		{"reticulum[loglevel]", "reticulum", "loglevel", true},
		{"sort[name]", "sort", "name", true},
		{"plain", "", "", false},
		{"[field]", "", "", false},
		{"open[field", "", "", false},
	}
	for _, tt := range tests {
		base, field, ok := splitBracket(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.base, base, tt.key)
		assert.Equal(t, tt.field, field, tt.key)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/reticulum/settings/get":                         "/api/reticulum/settings/get",
		"/api/reticulum/settings/setInterface/5f1c-uuid":      "/api/reticulum/settings/setInterface",
		"/api/reticulum/settings/toggleInterface/5f1c-uuid/1": "/api/reticulum/settings/toggleInterface",
		"/api/reticulum/diagnostics/log":                      "/api/reticulum/diagnostics/log",
		"/api/reticulum/service":                              "other",
		"/metrics":                                            "/metrics",
		"/healthz":                                            "/healthz",
		"/wp-login.php":                                       "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, routeLabel(path), path)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	assert.Equal(t, "192.0.2.10", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "198.51.100.7", getClientIP(req))
}

func TestMethodRoutedEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/reticulum/service/pending", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
