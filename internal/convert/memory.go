package convert

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Monitor reports whether the process is under memory pressure. It is a
// best-effort hint for housekeeping; correctness never depends on it.
type Monitor interface {
	OverThreshold() bool
}

// NoopMonitor never reports pressure.
type NoopMonitor struct{}

// OverThreshold always returns false.
func (NoopMonitor) OverThreshold() bool {
	return false
}

// ProcessMonitor probes this process's resident set size via gopsutil.
type ProcessMonitor struct {
	thresholdMB uint64
	proc        *process.Process
}

// NewProcessMonitor builds a monitor for the current process. It returns
// a no-op substitute when the process handle cannot be resolved.
func NewProcessMonitor(thresholdMB uint64) Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return NoopMonitor{}
	}
	return &ProcessMonitor{thresholdMB: thresholdMB, proc: proc}
}

// OverThreshold reports whether RSS exceeds the configured threshold.
// Probe errors read as no pressure.
func (m *ProcessMonitor) OverThreshold() bool {
	info, err := m.proc.MemoryInfo()
	if err != nil || info == nil {
		return false
	}
	return info.RSS/1024/1024 > m.thresholdMB
}
