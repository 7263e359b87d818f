package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a point-in-time view of the running client.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CpuPercent float64 `json:"cpu_percent"`
	RssBytes   uint64  `json:"rss_bytes"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
}

// Monitor reads process level statistics with gopsutil.
type Monitor struct {
	mu   sync.Mutex
	log  *slog.Logger
	proc *process.Process
}

func NewMonitor(log *slog.Logger) (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{log: log, proc: p}, nil
}

// Snapshot never fails, fields that can't be read are left empty.
func (m *Monitor) Snapshot() ProcessStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ProcessStats{PID: m.proc.Pid, Goroutines: runtime.NumGoroutine()}

	if memInfo, err := m.proc.MemoryInfo(); err != nil {
		m.log.Debug("Unable to read memory info", "err", err)
	} else {
		stats.RssBytes = memInfo.RSS
	}
	if cpu, err := m.proc.CPUPercent(); err != nil {
		m.log.Debug("Unable to read cpu usage", "err", err)
	} else {
		stats.CpuPercent = cpu
	}
	if status, err := m.proc.Status(); err != nil {
		m.log.Debug("Unable to read process status", "err", err)
	} else {
		stats.Status = status
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC
	return stats
}

// AsMap flattens a snapshot for the debug page.
func (s ProcessStats) AsMap() map[string]any {
	return map[string]any{
		"pid":          s.PID,
		"status":       s.Status,
		"cpu_percent":  s.CpuPercent,
		"rss_bytes":    s.RssBytes,
		"alloc_mem_mb": s.AllocMemMb,
		"num_gc":       s.NumGC,
		"goroutines":   s.Goroutines,
	}
}
