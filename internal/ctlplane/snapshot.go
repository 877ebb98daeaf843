package ctlplane

import (
	"context"
	"encoding/json"
	"fmt"

	"grimm.is/rnsgate/internal/metrics"
)

// SnapshotSource feeds the metrics collector from a Runner.
type SnapshotSource struct {
	Runner Runner
}

// Snapshot implements metrics.Source.
func (s SnapshotSource) Snapshot(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot

	var state ServiceState
	if err := s.decode(ctx, Service(ServiceStatus), &state); err != nil {
		return snap, err
	}
	snap.RNSD = state.RNSD
	snap.LXMD = state.LXMD

	if state.RNSD {
		var gs GeneralStatus
		if err := s.decode(ctx, Diagnostic(DiagGeneralStatus), &gs); err != nil {
			return snap, err
		}
		snap.InterfacesTotal = gs.TotalInterfaces
		snap.InterfacesUp = gs.UpInterfaces
		snap.Bandwidth = gs.BandwidthByMedium
	}

	if state.LXMD {
		var prop PropagationStatus
		if err := s.decode(ctx, Diagnostic(DiagPropagation), &prop); err != nil {
			return snap, err
		}
		snap.PropagationStored = prop.MessageCount
	}
	return snap, nil
}

func (s SnapshotSource) decode(ctx context.Context, cmd Command, v any) error {
	out, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return fmt.Errorf("%s: unexpected output: %w", cmd, err)
	}
	return nil
}
