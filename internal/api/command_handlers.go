package api

import (
	"net/http"

	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/validation"
)

// Utility output that is not JSON comes back as {"output": ...}; diagnostics
// use {"raw": ...}. The web UI reads both keys as they are.
const (
	utilityRawKey    = "output"
	diagnosticRawKey = "raw"
)

// hashRequired is the answer of rnpath and rnprobe without a destination.
var hashRequired = map[string]string{"status": "error", "message": "Destination hash is required"}

// diagnosticEndpoints maps API endpoints to diagnostics subcommands.
var diagnosticEndpoints = map[string]string{
	"rnstatus":          ctlplane.DiagRNStatus,
	"paths":             ctlplane.DiagPaths,
	"announces":         ctlplane.DiagAnnounces,
	"propagation":       ctlplane.DiagPropagation,
	"interfaces":        ctlplane.DiagInterfaces,
	"log":               ctlplane.DiagLog,
	"generalStatus":     ctlplane.DiagGeneralStatus,
	"rnsdInfo":          ctlplane.DiagRNSDInfo,
	"lxmfInfo":          ctlplane.DiagLXMFInfo,
	"propagationDetail": ctlplane.DiagPropagationDetail,
	"interfacesDetail":  ctlplane.DiagInterfacesDetail,
}

func (s *Server) diagnostic(sub string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := s.run(r.Context(), ctlplane.Diagnostic(sub))
		WriteJSON(w, http.StatusOK, envelope(out, diagnosticRawKey))
	}
}

func (s *Server) utility(cmd ctlplane.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeUtility(w, r, cmd)
	}
}

func (s *Server) writeUtility(w http.ResponseWriter, r *http.Request, cmd ctlplane.Command) {
	out := s.run(r.Context(), cmd)
	WriteJSON(w, http.StatusOK, envelope(out, utilityRawKey))
}

// POST detail: non-zero for all interface details.
func (s *Server) handleUtilRNStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	detail := validation.ParseInt(p.String("detail", "0")) != 0
	s.writeUtility(w, r, ctlplane.RNStatus(detail))
}

// POST hash: optional destination to look up.
func (s *Server) handleUtilRNID(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	s.writeUtility(w, r, ctlplane.RNID(validation.SanitizeHash(p.String("hash", ""))))
}

// destination returns the sanitized hash parameter, or false when nothing
// usable was posted.
func destination(p params) (string, bool) {
	raw := p.String("hash", "")
	if raw == "" {
		return "", false
	}
	hash := validation.SanitizeHash(raw)
	return hash, hash != ""
}

// POST hash: required destination.
func (s *Server) handleUtilRNPath(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	hash, ok := destination(p)
	if !ok {
		WriteJSON(w, http.StatusOK, hashRequired)
		return
	}
	s.writeUtility(w, r, ctlplane.RNPath(hash))
}

// POST hash: required destination; timeout: seconds, clamped to [1, 60].
func (s *Server) handleUtilRNProbe(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	hash, ok := destination(p)
	if !ok {
		WriteJSON(w, http.StatusOK, hashRequired)
		return
	}
	timeout := validation.ClampTimeout(validation.ParseInt(p.String("timeout", "10")))
	s.writeUtility(w, r, ctlplane.RNProbe(hash, timeout))
}

// POST device: optional device node to inspect.
func (s *Server) handleUtilRNodeConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	s.writeUtility(w, r, ctlplane.RNodeConf(validation.SanitizeDevice(p.String("device", ""))))
}
