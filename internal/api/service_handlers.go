package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/i18n"
	"grimm.is/rnsgate/internal/validation"
)

var errControlPlaneDown = errors.New(i18n.MsgControlPlaneDown)

// serviceStatus reports the daemon state. A disabled service answers without
// asking the control plane; anything but a JSON object with a status key
// reads as unknown.
func (s *Server) serviceStatus(ctx context.Context) (any, error) {
	settings, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if !settings.IsEnabled() {
		return ctlplane.ServiceState{Status: ctlplane.StateDisabled}, nil
	}
	if s.client == nil {
		return nil, errControlPlaneDown
	}

	out := s.run(ctx, ctlplane.Service(ctlplane.ServiceStatus))
	if data, err := decodeOutput(out); err == nil {
		if obj, ok := data.(map[string]any); ok && obj["status"] != nil {
			return obj, nil
		}
	}
	return map[string]string{"status": ctlplane.StateUnknown}, nil
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.serviceStatus(r.Context())
	switch {
	case errors.Is(err, errControlPlaneDown):
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgControlPlaneDown)
	case err != nil:
		s.logger.Error("Failed to load settings", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgSettingsLoad, err)
	default:
		WriteJSON(w, http.StatusOK, status)
	}
}

// handleReconfigure renders the daemon configs, then restarts the daemons
// when the service is enabled and stops them otherwise. The answer is
// always {"status":"ok"}.
func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.run(r.Context(), ctlplane.Template(ctlplane.TemplateReload))

		settings, err := s.store.Load()
		switch {
		case err != nil:
			s.logger.Error("Failed to load settings for reconfigure", "error", err)
		case settings.IsEnabled():
			s.run(r.Context(), ctlplane.Service(ctlplane.ServiceRestart))
		default:
			s.run(r.Context(), ctlplane.Service(ctlplane.ServiceStop))
		}
		s.triggerStatus()
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serviceAction runs a lifecycle action and answers {"response": output}.
func (s *Server) serviceAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			WriteJSON(w, http.StatusOK, failed)
			return
		}
		out := s.run(r.Context(), ctlplane.Service(action))
		s.triggerStatus()
		WriteJSON(w, http.StatusOK, map[string]string{"response": strings.TrimSpace(out)})
	}
}

// handlePending reports whether the rendered configs differ from the files
// the daemons are running with.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	diff := s.run(r.Context(), ctlplane.Template(ctlplane.TemplateDiff))
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": strings.TrimSpace(diff) != "",
		"diff":    diff,
	})
}

// handleAudit returns recent control plane audit events, newest first.
// Query: limit (default 50), action, outcome, since (RFC 3339).
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	args := &ctlplane.AuditArgs{
		Action:  q.Get("action"),
		Outcome: q.Get("outcome"),
		Limit:   50,
	}
	if n := validation.ParseInt(q.Get("limit")); n > 0 {
		args.Limit = min(n, 1000)
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteErrorCtx(w, r, http.StatusBadRequest, i18n.MsgInvalidBody, err)
			return
		}
		args.Since = t
	}

	events, err := s.client.AuditEvents(r.Context(), args)
	if err != nil {
		s.logger.Warn("Failed to query audit trail", "error", err)
		WriteJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "events": events})
}
