package ctlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/metrics"
)

const (
	diagnosticTimeout = 10 * time.Second
	versionTimeout    = 5 * time.Second
	logTailLines      = 500
)

// mediumTypes maps rnstatus interface types onto bandwidth media.
var mediumTypes = map[string]string{
	"UDPInterface":       "udp",
	"TCPServerInterface": "tcp",
	"TCPClientInterface": "tcp",
	"AutoInterface":      "auto",
	"I2PInterface":       "i2p",
	"RNodeInterface":     "radio",
	"KISSInterface":      "radio",
	"AX25KISSInterface":  "radio",
	"SerialInterface":    "serial",
}

// MediumOf returns the bandwidth medium of an rnstatus interface type.
func MediumOf(ifaceType string) string {
	if m, ok := mediumTypes[ifaceType]; ok {
		return m
	}
	return "other"
}

// GeneralStatus is the interface summary printed by "diagnostics general_status".
type GeneralStatus struct {
	TotalInterfaces   int                        `json:"total_interfaces"`
	EnabledInterfaces int                        `json:"enabled_interfaces"`
	UpInterfaces      int                        `json:"up_interfaces"`
	BandwidthByMedium map[string]metrics.Traffic `json:"bandwidth_by_medium"`
}

// DaemonInfo is printed by "diagnostics rnsd_info" and "diagnostics lxmf_info".
type DaemonInfo struct {
	Running      bool    `json:"running"`
	Version      string  `json:"version"`
	Uptime       *string `json:"uptime"`
	MessageCount *int    `json:"message_count,omitempty"`
}

// PropagationStatus is printed by "diagnostics propagation".
type PropagationStatus struct {
	Running      bool `json:"running"`
	MessageCount int  `json:"message_count"`
	PeerCount    int  `json:"peer_count"`
}

// PropagationDetail is printed by "diagnostics propagation_detail".
type PropagationDetail struct {
	Running              bool     `json:"running"`
	MessageCount         int      `json:"message_count"`
	StorageMB            float64  `json:"storage_mb"`
	StorageLimitMessages *int     `json:"storage_limit_messages"`
	StorageUsedPct       *float64 `json:"storage_used_pct"`
	PeerCount            int      `json:"peer_count"`
	Errors               []string `json:"errors"`
}

// LogTail is printed by "diagnostics log".
type LogTail struct {
	Lines      []string `json:"lines"`
	TotalLines int      `json:"total_lines,omitempty"`
	LogFile    string   `json:"log_file,omitempty"`
	Message    string   `json:"message,omitempty"`
}

type diagError struct {
	Error string `json:"error"`
}

func (e *Executor) diagnostic(ctx context.Context, sub string) any {
	cfg := e.paths.RNSConfigDir

	switch sub {
	case DiagRNStatus:
		return e.jsonFallback(ctx, "rnstatus", []string{"-j", "--config", cfg}, []string{"--config", cfg})
	case DiagPaths:
		return e.jsonFallback(ctx, "rnpath", []string{"-j", "--config", cfg}, []string{"--config", cfg})
	case DiagAnnounces, DiagInterfacesDetail:
		return e.jsonFallback(ctx, "rnstatus", []string{"-j", "-a", "--config", cfg}, []string{"-a", "--config", cfg})
	case DiagInterfaces:
		return e.jsonFallback(ctx, "rnstatus", []string{"-j", "-i", "--config", cfg}, []string{"-i", "--config", cfg})
	case DiagGeneralStatus:
		return e.generalStatus(ctx)
	case DiagRNSDInfo:
		return e.daemonInfo(ctx, e.rnsdDaemon(), false)
	case DiagLXMFInfo:
		return e.daemonInfo(ctx, e.lxmdDaemon(nil), true)
	case DiagPropagation:
		return e.propagation()
	case DiagPropagationDetail:
		return e.propagationDetail()
	case DiagLog:
		return e.logTail()
	}
	return diagError{Error: "Unknown subcommand: " + sub}
}

// runDiagnostic returns trimmed stdout, or an {"error": ...} document when the
// tool failed without printing anything.
func (e *Executor) runDiagnostic(ctx context.Context, name string, args ...string) string {
	res := e.tools.RunTool(ctx, diagnosticTimeout, name, args...)
	var msg string
	switch {
	case res.TimedOut:
		msg = "Command timed out"
	case res.NotFound:
		msg = "Command not found: " + name
	case res.Err != nil:
		msg = res.Err.Error()
	case res.ExitCode != 0 && strings.TrimSpace(res.Stdout) == "":
		msg = strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "command exited non-zero"
		}
	default:
		return strings.TrimSpace(res.Stdout)
	}
	b, _ := json.Marshal(diagError{Error: msg})
	return string(b)
}

// jsonFallback tries the JSON flavour of a tool first and falls back to its
// plain output wrapped as {"raw": ...}.
func (e *Executor) jsonFallback(ctx context.Context, name string, withJSON, plain []string) any {
	var v any
	if err := json.Unmarshal([]byte(e.runDiagnostic(ctx, name, withJSON...)), &v); err == nil {
		return v
	}
	return parseJSONOrRaw(e.runDiagnostic(ctx, name, plain...))
}

func parseJSONOrRaw(out string) any {
	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return map[string]string{"raw": out}
	}
	return v
}

func (e *Executor) generalStatus(ctx context.Context) GeneralStatus {
	cfg := e.paths.RNSConfigDir
	raw := e.jsonFallback(ctx, "rnstatus", []string{"-j", "--config", cfg}, []string{"--config", cfg})

	var ifaces []any
	switch v := raw.(type) {
	case []any:
		ifaces = v
	case map[string]any:
		ifaces, _ = v["interfaces"].([]any)
	}

	st := GeneralStatus{
		TotalInterfaces:   len(ifaces),
		BandwidthByMedium: map[string]metrics.Traffic{},
	}
	for _, item := range ifaces {
		iface, ok := item.(map[string]any)
		if !ok {
			continue
		}
		status, _ := iface["status"].(string)
		if status != "disabled" {
			st.EnabledInterfaces++
		}
		if status == "up" {
			st.UpInterfaces++
		}
		typ, _ := iface["type"].(string)
		medium := MediumOf(typ)
		t := st.BandwidthByMedium[medium]
		t.TX += toInt64(iface["txb"])
		t.RX += toInt64(iface["rxb"])
		st.BandwidthByMedium[medium] = t
	}
	return st
}

func toInt64(v any) int64 {
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return 0
}

func (e *Executor) daemonInfo(ctx context.Context, d Daemon, countMessages bool) DaemonInfo {
	proc, running := e.procs.Find(d.PIDFile, d.Binary)
	info := DaemonInfo{
		Running: running,
		Version: e.binaryVersion(ctx, d.Binary),
	}
	if running && !proc.Started.IsZero() {
		up := clock.FormatUptime(e.clock.Since(proc.Started))
		info.Uptime = &up
	}
	if running && countMessages {
		if n, err := countFiles(e.messageStore()); err == nil {
			info.MessageCount = &n
		}
	}
	return info
}

// binaryVersion returns the first line of "<binary> --version".
func (e *Executor) binaryVersion(ctx context.Context, binary string) string {
	res := e.tools.RunTool(ctx, versionTimeout, binary, "--version")
	if res.TimedOut || res.NotFound || res.Err != nil {
		return "unavailable"
	}
	out := strings.TrimSpace(res.Stdout + res.Stderr)
	if out == "" {
		return "unknown"
	}
	first, _, _ := strings.Cut(out, "\n")
	return first
}

func (e *Executor) propagation() PropagationStatus {
	d := e.lxmdDaemon(nil)
	_, running := e.procs.Find(d.PIDFile, d.Binary)
	st := PropagationStatus{Running: running}
	if running {
		if n, err := countFiles(e.messageStore()); err == nil {
			st.MessageCount = n
		}
	}
	return st
}

func (e *Executor) propagationDetail() PropagationDetail {
	d := e.lxmdDaemon(nil)
	_, running := e.procs.Find(d.PIDFile, d.Binary)
	detail := PropagationDetail{Running: running, Errors: []string{}}

	if running {
		if n, err := countFiles(e.messageStore()); err == nil {
			detail.MessageCount = n
			detail.StorageMB = dirSizeMB(e.messageStore())
		}
	}

	if limit, ok := readStorageLimit(e.lxmdConfigFile()); ok {
		detail.StorageLimitMessages = &limit
		if detail.MessageCount > 0 {
			pct := round(float64(detail.MessageCount)/float64(limit)*100, 1)
			detail.StorageUsedPct = &pct
		}
	}
	return detail
}

func (e *Executor) logTail() any {
	f, err := os.Open(e.paths.LogFile)
	if errors.Is(err, fs.ErrNotExist) {
		return LogTail{Lines: []string{}, Message: "Log file not found. Start the service first."}
	}
	if err != nil {
		return diagError{Error: err.Error()}
	}
	defer f.Close()

	tail := make([]string, 0, logTailLines)
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		total++
		if len(tail) == logTailLines {
			tail = tail[1:]
		}
		tail = append(tail, strings.ToValidUTF8(scanner.Text(), "�"))
	}
	if err := scanner.Err(); err != nil {
		return diagError{Error: err.Error()}
	}
	return LogTail{Lines: tail, TotalLines: total, LogFile: e.paths.LogFile}
}

// countFiles counts the regular files directly inside dir.
func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

func dirSizeMB(dir string) float64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return round(float64(total)/(1024*1024), 2)
}

// readStorageLimit reads the message_storage_limit line of the lxmd config.
func readStorageLimit(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	limit, found := 0, false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "message_storage_limit") {
			continue
		}
		_, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n > 0 {
			limit, found = n, true
		}
	}
	return limit, found
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
