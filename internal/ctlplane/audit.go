package ctlplane

import (
	"time"

	"grimm.is/rnsgate/internal/audit"
)

// record logs a command outcome, persists it when an audit store is
// configured and updates the command metrics.
func (s *Server) record(caller string, cmd Command, outcome string, elapsed time.Duration, details map[string]string) {
	switch {
	case cmd.Mutating() || outcome == audit.OutcomeRejected:
		fields := map[string]any{"caller": caller, "outcome": outcome, "duration": elapsed.String()}
		for k, v := range details {
			fields[k] = v
		}
		s.logger.Audit(cmd.String(), string(cmd.Kind), fields)
	default:
		s.logger.Debug("Command executed", "caller", caller, "command", cmd.String(),
			"outcome", outcome, "duration", elapsed.String())
	}

	if s.metrics != nil {
		s.metrics.RecordCommand(string(cmd.Kind), outcome, elapsed)
	}

	if s.audit == nil {
		return
	}
	evt := audit.Event{
		Timestamp: s.clock.Now(),
		Caller:    caller,
		Action:    string(cmd.Kind),
		Command:   cmd.String(),
		Outcome:   outcome,
		Duration:  elapsed,
		Details:   details,
	}
	if err := s.audit.Write(evt); err != nil {
		s.logger.Warn("Failed to persist audit event", "error", err)
	}
}
