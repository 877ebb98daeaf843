package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/ctlplane"
)

// statusReport is what the status command gathers from the control plane.
type statusReport struct {
	Service ctlplane.ServiceState
	RNSD    ctlplane.DaemonInfo
	LXMF    ctlplane.DaemonInfo
	General *ctlplane.GeneralStatus
}

// RunStatus queries the control plane for the daemon state and prints it.
func RunStatus(configFile string) error {
	client, err := dialControlPlane(configFile)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := gatherStatus(ctx, client)
	if err != nil {
		return err
	}
	Printer.Println(renderStatus(report))
	return nil
}

func gatherStatus(ctx context.Context, runner ctlplane.Runner) (*statusReport, error) {
	var r statusReport
	if err := runJSON(ctx, runner, ctlplane.Service(ctlplane.ServiceStatus), &r.Service); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	if r.Service.Status == ctlplane.StateDisabled {
		return &r, nil
	}
	if err := runJSON(ctx, runner, ctlplane.Diagnostic(ctlplane.DiagRNSDInfo), &r.RNSD); err != nil {
		return nil, err
	}
	if err := runJSON(ctx, runner, ctlplane.Diagnostic(ctlplane.DiagLXMFInfo), &r.LXMF); err != nil {
		return nil, err
	}
	if r.RNSD.Running {
		var gs ctlplane.GeneralStatus
		if err := runJSON(ctx, runner, ctlplane.Diagnostic(ctlplane.DiagGeneralStatus), &gs); err == nil {
			r.General = &gs
		}
	}
	return &r, nil
}

func runJSON(ctx context.Context, runner ctlplane.Runner, cmd ctlplane.Command, v any) error {
	out, err := runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return fmt.Errorf("%s: unexpected output: %w", cmd, err)
	}
	return nil
}

func renderStatus(r *statusReport) string {
	var b strings.Builder
	b.WriteString(StyleHeader.Render(brand.Name+" Reticulum Status") + "\n")

	row := func(label, value string) {
		b.WriteString(StyleLabel.Render(label) + value + "\n")
	}
	row("Service", stateStyle(r.Service.Status).Render(strings.ToUpper(r.Service.Status)))
	if r.Service.Status == ctlplane.StateDisabled {
		return b.String()
	}

	daemon := func(name string, d ctlplane.DaemonInfo) {
		state := "stopped"
		if d.Running {
			state = "running"
		}
		line := stateStyle(state).Render(state)
		if d.Version != "" {
			line += " " + d.Version
		}
		if d.Uptime != nil {
			line += " (up " + *d.Uptime + ")"
		}
		if d.MessageCount != nil {
			line += fmt.Sprintf(", %d messages", *d.MessageCount)
		}
		row(name, line)
	}
	daemon("rnsd", r.RNSD)
	daemon("lxmd", r.LXMF)

	if g := r.General; g != nil {
		row("Interfaces", fmt.Sprintf("%d up / %d enabled / %d total", g.UpInterfaces, g.EnabledInterfaces, g.TotalInterfaces))

		media := make([]string, 0, len(g.BandwidthByMedium))
		for m := range g.BandwidthByMedium {
			media = append(media, m)
		}
		sort.Strings(media)

		var lines []string
		for _, m := range media {
			t := g.BandwidthByMedium[m]
			lines = append(lines, fmt.Sprintf("%-7s tx %-10s rx %s", m, formatBytes(t.TX), formatBytes(t.RX)))
		}
		if len(lines) > 0 {
			b.WriteString(StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n")
		}
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
