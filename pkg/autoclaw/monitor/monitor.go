// Package monitor watches system resources (CPU, memory, disk,
// temperature) and raises alerts when static thresholds are crossed.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thresholds are the alert levels, in percent (temperature in °C).
type Thresholds struct {
	CPU         float64
	Memory      float64
	Disk        float64
	Temperature float64
}

// DefaultThresholds returns the stock alert levels.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 80, Memory: 85, Disk: 90, Temperature: 80}
}

// Config configures the monitor.
type Config struct {
	Thresholds Thresholds
	Interval   time.Duration
	// DiskPath is the mount point sampled for disk usage.
	DiskPath string
	// MaxAlerts bounds the in-memory alert ring.
	MaxAlerts int
}

// DefaultConfig returns monitor defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Interval:   30 * time.Second,
		DiskPath:   "/",
		MaxAlerts:  200,
	}
}

// Alert is a threshold violation.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // cpu, memory, disk, temperature
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // warning or critical
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Time      time.Time `json:"time"`
}

// Snapshot is one sample of system state.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsed    uint64
	MemoryTotal   uint64
	DiskPercent   float64
	DiskUsed      uint64
	DiskTotal     uint64
	Temperature   float64 // 0 when no sensor is available
	HasTemp       bool
	Taken         time.Time
}

// Sampler produces snapshots. The production sampler reads gopsutil;
// tests substitute their own.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// AlertFunc receives alerts as they are raised.
type AlertFunc func(Alert)

// Monitor runs the sampling loop and keeps recent alerts.
type Monitor struct {
	cfg     Config
	sampler Sampler
	history *History
	logger  *slog.Logger

	mu        sync.Mutex
	alerts    []Alert
	last      Snapshot
	hasSample bool
	callbacks []AlertFunc
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a monitor. history may be nil (alerts are then kept only
// in memory). sampler may be nil, in which case gopsutil is used.
func New(cfg Config, sampler Sampler, history *History, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if sampler == nil {
		sampler = &systemSampler{diskPath: cfg.DiskPath}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 200
	}
	return &Monitor{
		cfg:     cfg,
		sampler: sampler,
		history: history,
		logger:  logger.With("component", "monitor"),
	}
}

// OnAlert registers a callback invoked for every new alert.
func (m *Monitor) OnAlert(fn AlertFunc) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Start launches the sampling loop. It returns immediately; the loop
// stops when Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	m.logger.Info("resource monitor started", "interval", m.cfg.Interval)
	return nil
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("resource monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick takes one sample, evaluates thresholds, and dispatches alerts.
// The loop calls it on every interval; tests call it directly.
func (m *Monitor) Tick(ctx context.Context) []Alert {
	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		m.logger.Error("sampling failed", "error", err)
		return nil
	}
	if snap.Taken.IsZero() {
		snap.Taken = time.Now()
	}

	alerts := m.evaluate(snap)

	m.mu.Lock()
	m.last = snap
	m.hasSample = true
	m.alerts = append(m.alerts, alerts...)
	if over := len(m.alerts) - m.cfg.MaxAlerts; over > 0 {
		m.alerts = m.alerts[over:]
	}
	callbacks := make([]AlertFunc, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, alert := range alerts {
		m.logger.Warn("resource alert",
			"type", alert.Type,
			"severity", alert.Severity,
			"value", alert.Value,
			"threshold", alert.Threshold,
		)
		if m.history != nil {
			if err := m.history.Record(alert); err != nil {
				m.logger.Error("failed to record alert", "error", err)
			}
		}
		for _, fn := range callbacks {
			fn(alert)
		}
	}
	return alerts
}

// evaluate produces at most one alert per metric for the snapshot.
func (m *Monitor) evaluate(snap Snapshot) []Alert {
	t := m.cfg.Thresholds
	var alerts []Alert

	check := func(metric string, value, threshold float64, unit string) {
		if threshold <= 0 || value < threshold {
			return
		}
		severity := "warning"
		if value >= threshold+10 {
			severity = "critical"
		}
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			Type:      metric,
			Message:   fmt.Sprintf("%s usage at %.1f%s (threshold %.1f%s)", metric, value, unit, threshold, unit),
			Severity:  severity,
			Value:     value,
			Threshold: threshold,
			Time:      snap.Taken,
		})
	}

	check("cpu", snap.CPUPercent, t.CPU, "%")
	check("memory", snap.MemoryPercent, t.Memory, "%")
	check("disk", snap.DiskPercent, t.Disk, "%")
	if snap.HasTemp {
		check("temperature", snap.Temperature, t.Temperature, "°C")
	}
	return alerts
}

// Last returns the most recent snapshot, if any.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasSample
}

// Alerts returns alerts raised within the given window (all retained
// alerts when window is zero), newest last.
func (m *Monitor) Alerts(window time.Duration) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if window <= 0 {
		out := make([]Alert, len(m.alerts))
		copy(out, m.alerts)
		return out
	}
	cutoff := time.Now().Add(-window)
	var out []Alert
	for _, a := range m.alerts {
		if a.Time.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// ClearAlerts drops the in-memory alert ring.
func (m *Monitor) ClearAlerts() {
	m.mu.Lock()
	m.alerts = nil
	m.mu.Unlock()
}
