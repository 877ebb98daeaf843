package ctlplane

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// ProcInfo identifies a running daemon.
type ProcInfo struct {
	PID     int
	Started time.Time
}

// ProcessTable finds running daemons.
type ProcessTable interface {
	// Find checks the pid file first and then scans the process table for a
	// command line containing binary.
	Find(pidfile, binary string) (ProcInfo, bool)
}

// HostProcesses looks at the real process table.
type HostProcesses struct{}

func (HostProcesses) Find(pidfile, binary string) (ProcInfo, bool) {
	if pid, err := readPIDFile(pidfile); err == nil && alive(pid) {
		return ProcInfo{PID: pid, Started: createTime(int32(pid))}, true
	}

	procs, err := process.Processes()
	if err != nil {
		return ProcInfo{}, false
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, binary) {
			continue
		}
		return ProcInfo{PID: int(p.Pid), Started: createTime(p.Pid)}, true
	}
	return ProcInfo{}, false
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		return 0, errors.New("invalid pid")
	}
	return pid, nil
}

func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// alive probes pid with signal 0.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func createTime(pid int32) time.Time {
	p, err := process.NewProcess(pid)
	if err != nil {
		return time.Time{}
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
