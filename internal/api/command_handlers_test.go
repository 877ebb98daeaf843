package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"grimm.is/rnsgate/internal/ctlplane"
)

const testHash = "c89b4da064bf66d280f0e4d8abfd9806"

func TestUtilRNPath_HashRequired(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing", nil},
		{"empty", "hash="},
		{"nothing hex", "hash=zz%3B+ls+-l"},
		{"json empty", map[string]any{"hash": ""}},
	}
	for _, path := range []string{"/api/reticulum/utilities/rnpath", "/api/reticulum/utilities/rnprobe"} {
		for _, tt := range tests {
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				env := newTestEnv(t, nil)
				rec := env.do(t, http.MethodPost, path, tt.body)
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.JSONEq(t, `{"status":"error","message":"Destination hash is required"}`, rec.Body.String())
				env.client.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
			})
		}
	}
}

func TestUtilRNPath_SanitizesHash(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNPath(testHash), `{"hops":2,"via":"TCP"}`).Once()

	rec := env.do(t, http.MethodPost, "/api/reticulum/utilities/rnpath", "hash=%3C"+testHash+"%3E%3B+ls")
	assert.JSONEq(t, `{"status":"ok","data":{"hops":2,"via":"TCP"}}`, rec.Body.String())
}

func TestUtilRNPath_ZeroIsAHash(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNPath("0"), "Path not found\n").Once()

	rec := env.do(t, http.MethodPost, "/api/reticulum/utilities/rnpath", "hash=0")
	assert.JSONEq(t, `{"status":"ok","data":{"output":"Path not found\n"}}`, rec.Body.String())
}

func TestUtilRNProbe_Timeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
		want    int
	}{
		{"default", "", 10},
		{"in range", "&timeout=30", 30},
		{"zero", "&timeout=0", 1},
		{"negative", "&timeout=-5", 1},
		{"too large", "&timeout=600", 60},
		{"garbage", "&timeout=soon", 1},
		{"leading digits", "&timeout=15s", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.expectRun(ctlplane.RNProbe(testHash, tt.want), "Valid reply").Once()

			rec := env.do(t, http.MethodPost, "/api/reticulum/utilities/rnprobe", "hash="+testHash+tt.timeout)
			assert.JSONEq(t, `{"status":"ok","data":{"output":"Valid reply"}}`, rec.Body.String())
		})
	}
}

func TestUtilRNID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNID(""), `{"identity":"<local>"}`).Once()
	env.expectRun(ctlplane.RNID("abcd"), "Recalled identity").Once()

	rec := env.do(t, http.MethodPost, "/api/reticulum/utilities/rnid", nil)
	assert.JSONEq(t, `{"status":"ok","data":{"identity":"<local>"}}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/reticulum/utilities/rnid", map[string]any{"hash": "ab-cd"})
	assert.JSONEq(t, `{"status":"ok","data":{"output":"Recalled identity"}}`, rec.Body.String())
}

func TestUtilRNStatus_Detail(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		detail bool
	}{
		{"none", nil, false},
		{"form zero", "detail=0", false},
		{"form one", "detail=1", true},
		{"json number", map[string]any{"detail": 1}, true},
		{"json bool", map[string]any{"detail": true}, true},
		{"json false", map[string]any{"detail": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.expectRun(ctlplane.RNStatus(tt.detail), `{}`).Once()
			env.do(t, http.MethodPost, "/api/reticulum/utilities/rnstatus", tt.body)
		})
	}
}

func TestUtilRNStatus_IgnoresQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNStatus(false), `{}`).Once()
	env.do(t, http.MethodPost, "/api/reticulum/utilities/rnstatus?detail=1", nil)
}

func TestUtilRNodeConfig_SanitizesDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNodeConf("/dev/cuaU0rm"), "Device info").Once()
	env.expectRun(ctlplane.RNodeConf(""), "No devices").Once()

	env.do(t, http.MethodPost, "/api/reticulum/utilities/rnodeconfig", "device=/dev/cuaU0%3B+rm")
	env.do(t, http.MethodPost, "/api/reticulum/utilities/rnodeconfig", nil)
}

func TestUtilHelpCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	env.expectRun(ctlplane.RNCPHelp(), "usage: rncp [-h]\n").Once()
	env.expectRun(ctlplane.RNXHelp(), "usage: rnx [-h]\n").Once()

	rec := env.do(t, http.MethodGet, "/api/reticulum/utilities/rncp", nil)
	assert.JSONEq(t, `{"status":"ok","data":{"output":"usage: rncp [-h]\n"}}`, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/reticulum/utilities/rnx", nil)
	assert.JSONEq(t, `{"status":"ok","data":{"output":"usage: rnx [-h]\n"}}`, rec.Body.String())
}

func TestUtilTransportErrorIsEmptyOutput(t *testing.T) {
	env := newTestEnv(t, nil)
	env.client.On("Run", mock.Anything, ctlplane.RNStatus(false)).Return("", assert.AnError)

	rec := env.do(t, http.MethodPost, "/api/reticulum/utilities/rnstatus", nil)
	assert.JSONEq(t, `{"status":"ok","data":{"output":""}}`, rec.Body.String())
}

func TestDiagnostics_Envelope(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"object", " {\"interfaces\":[]}\n", `{"status":"ok","data":{"interfaces":[]}}`},
		{"list", `[1,2]`, `{"status":"ok","data":[1,2]}`},
		{"null", "null\n", `{"status":"ok","data":null}`},
		{"number", "42", `{"status":"ok","data":42}`},
		{"text", "rnsd not running\n", `{"status":"ok","data":{"raw":"rnsd not running\n"}}`},
		{"trailing data", `{"a":1} {"b":2}`, `{"status":"ok","data":{"raw":"{\"a\":1} {\"b\":2}"}}`},
		{"empty", "", `{"status":"ok","data":{"raw":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.expectRun(ctlplane.Diagnostic(ctlplane.DiagLog), tt.out).Once()

			rec := env.do(t, http.MethodGet, "/api/reticulum/diagnostics/log", nil)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestDiagnostics_Endpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	for endpoint, sub := range diagnosticEndpoints {
		env.expectRun(ctlplane.Diagnostic(sub), `{}`).Once()
		rec := env.do(t, http.MethodGet, "/api/reticulum/diagnostics/"+endpoint, nil)
		assert.Equal(t, http.StatusOK, rec.Code, endpoint)
	}

	rec := env.do(t, http.MethodGet, "/api/reticulum/diagnostics/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
