package middleware

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// In-process counters per command: invocations, errors, latency. Exposed
// through the bot's stats and logged on shutdown.
// ══════════════════════════════════════════════════════════════════════════════

// MetricsConfig holds configuration for the metrics middleware.
type MetricsConfig struct {
	// SlowRequestThreshold defines what's considered a slow request.
	SlowRequestThreshold time.Duration

	// OnSlowRequest is called when a request exceeds the slow threshold.
	OnSlowRequest func(command string, duration time.Duration, telegramID int64)
}

// DefaultMetricsConfig returns sensible defaults for metrics middleware.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{SlowRequestThreshold: 2 * time.Second}
}

// MetricsMiddleware collects request metrics.
type MetricsMiddleware struct {
	config MetricsConfig

	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	activeRequests atomic.Int64

	mu       sync.Mutex
	commands map[string]*commandMetrics
}

type commandMetrics struct {
	count         int64
	errors        int64
	totalDuration time.Duration
	maxDuration   time.Duration
	lastInvoked   time.Time
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(config MetricsConfig) *MetricsMiddleware {
	return &MetricsMiddleware{
		config:   config,
		commands: make(map[string]*commandMetrics),
	}
}

// RequestContext tracks one in-flight request.
type RequestContext struct {
	Command    string
	TelegramID int64
	StartTime  time.Time

	middleware *MetricsMiddleware
}

// Start begins tracking a new request.
func (m *MetricsMiddleware) Start(command string, telegramID int64) *RequestContext {
	m.totalRequests.Add(1)
	m.activeRequests.Add(1)
	return &RequestContext{
		Command:    command,
		TelegramID: telegramID,
		StartTime:  time.Now(),
		middleware: m,
	}
}

// Finish records the outcome of the request.
func (rc *RequestContext) Finish(err error) {
	m := rc.middleware
	duration := time.Since(rc.StartTime)
	m.activeRequests.Add(-1)
	if err != nil {
		m.totalErrors.Add(1)
	}

	m.mu.Lock()
	cm, ok := m.commands[rc.Command]
	if !ok {
		cm = &commandMetrics{}
		m.commands[rc.Command] = cm
	}
	cm.count++
	if err != nil {
		cm.errors++
	}
	cm.totalDuration += duration
	if duration > cm.maxDuration {
		cm.maxDuration = duration
	}
	cm.lastInvoked = rc.StartTime
	m.mu.Unlock()

	if m.config.OnSlowRequest != nil && m.config.SlowRequestThreshold > 0 && duration > m.config.SlowRequestThreshold {
		m.config.OnSlowRequest(rc.Command, duration, rc.TelegramID)
	}
}

// CommandStats is a snapshot of one command's metrics.
type CommandStats struct {
	Command     string        `json:"command"`
	Count       int64         `json:"count"`
	Errors      int64         `json:"errors"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	LastInvoked time.Time     `json:"last_invoked"`
}

// Stats is a snapshot of all metrics.
type Stats struct {
	TotalRequests  int64          `json:"total_requests"`
	TotalErrors    int64          `json:"total_errors"`
	ActiveRequests int64          `json:"active_requests"`
	Commands       []CommandStats `json:"commands"`
}

// Snapshot returns the current metrics, commands sorted by count.
func (m *MetricsMiddleware) Snapshot() Stats {
	stats := Stats{
		TotalRequests:  m.totalRequests.Load(),
		TotalErrors:    m.totalErrors.Load(),
		ActiveRequests: m.activeRequests.Load(),
	}

	m.mu.Lock()
	for name, cm := range m.commands {
		cs := CommandStats{
			Command:     name,
			Count:       cm.count,
			Errors:      cm.errors,
			MaxDuration: cm.maxDuration,
			LastInvoked: cm.lastInvoked,
		}
		if cm.count > 0 {
			cs.AvgDuration = cm.totalDuration / time.Duration(cm.count)
		}
		stats.Commands = append(stats.Commands, cs)
	}
	m.mu.Unlock()

	sort.Slice(stats.Commands, func(i, j int) bool {
		if stats.Commands[i].Count != stats.Commands[j].Count {
			return stats.Commands[i].Count > stats.Commands[j].Count
		}
		return stats.Commands[i].Command < stats.Commands[j].Command
	})
	return stats
}
