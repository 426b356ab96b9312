package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

type Operation int

const (
	OpRegister Operation = iota
	OpLogin
	OpLoginFailed
	OpLogout
	OpSend
	OpEdit
	OpDelete
	OpUnreadClaim
	OpDiscover
	operationCount
)

var operationNames = [operationCount]string{
	OpRegister:    "register",
	OpLogin:       "login",
	OpLoginFailed: "login_failed",
	OpLogout:      "logout",
	OpSend:        "send",
	OpEdit:        "edit",
	OpDelete:      "delete",
	OpUnreadClaim: "unread_claim",
	OpDiscover:    "discover",
}

func (o Operation) String() string {
	if o < 0 || o >= operationCount {
		return "unknown"
	}
	return operationNames[o]
}

// Stats aggregates every metric for the debug page
type Stats struct {
	StartedAt      time.Time         `json:"started_at"`
	Uptime         string            `json:"uptime"`
	Operations     map[string]uint64 `json:"operations"`
	ActiveSessions int               `json:"active_sessions"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	RssMb      uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status"`
}

// SessionCounter is satisfied by the session registry.
type SessionCounter interface {
	Count() int
}

// Monitor counts service outcomes. Counters are lock free and safe to bump
// from concurrent callers.
type Monitor struct {
	log       *slog.Logger
	startedAt time.Time
	counters  [operationCount]atomic.Uint64
	sessions  SessionCounter
}

func NewMonitor(log *slog.Logger, sessions SessionCounter) *Monitor {
	return &Monitor{log: log, startedAt: time.Now().UTC(), sessions: sessions}
}

// Incr is a no-op on a nil Monitor so services can run without one.
func (m *Monitor) Incr(op Operation) {
	if m == nil || op < 0 || op >= operationCount {
		return
	}
	m.counters[op].Add(1)
}

func (m *Monitor) Count(op Operation) uint64 {
	if m == nil || op < 0 || op >= operationCount {
		return 0
	}
	return m.counters[op].Load()
}

// Snapshot reads the counters and samples the current process.
// Process metrics that cannot be read are left at their zero value.
func (m *Monitor) Snapshot() Stats {
	stats := Stats{
		StartedAt:  m.startedAt,
		Uptime:     time.Since(m.startedAt).Truncate(time.Second).String(),
		Operations: make(map[string]uint64, operationCount),
		Goroutines: runtime.NumGoroutine(),
	}
	for op := Operation(0); op < operationCount; op++ {
		stats.Operations[op.String()] = m.counters[op].Load()
	}
	if m.sessions != nil {
		stats.ActiveSessions = m.sessions.Count()
	}

	// Go runtime metrics
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Debug("Error while retrieving process", "err", err)
		return stats
	}
	if info, err := p.MemoryInfo(); err == nil {
		stats.RssMb = info.RSS / 1024 / 1024
	} else {
		m.log.Debug("Error while finding process ram usage", "err", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	} else {
		m.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if status, err := p.Status(); err == nil {
		stats.Status = status
	} else {
		m.log.Debug("Error while finding process status", "err", err)
	}
	return stats
}
