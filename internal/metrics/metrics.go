package metrics

import (
	"sync"
	"time"
)

// Metric is a single named measurement.
type Metric struct {
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Count      int64     `json:"count,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// TimerMetric aggregates durations for one operation.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	timers    map[string]*TimerMetric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		startTime: time.Now(),
	}
}

// IncrementCounter adds one to the named counter.
func (r *Registry) IncrementCounter(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metric, ok := r.counters[name]
	if !ok {
		metric = &Metric{Name: name}
		r.counters[name] = metric
	}
	metric.Value++
	metric.Count++
	metric.LastUpdate = time.Now()
}

// SetGauge records the current value of the named gauge.
func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metric, ok := r.gauges[name]
	if !ok {
		metric = &Metric{Name: name}
		r.gauges[name] = metric
	}
	metric.Value = value
	metric.LastUpdate = time.Now()
}

// RecordTimer adds one duration sample to the named timer.
func (r *Registry) RecordTimer(name string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(duration.Milliseconds())
	timer, ok := r.timers[name]
	if !ok {
		timer = &TimerMetric{Min: ms, Max: ms}
		r.timers[name] = timer
	}
	timer.Count++
	timer.Sum += ms
	if ms < timer.Min {
		timer.Min = ms
	}
	if ms > timer.Max {
		timer.Max = ms
	}
	timer.Average = timer.Sum / float64(timer.Count)
}

// Snapshot is an export of all registered metrics.
type Snapshot struct {
	UptimeSeconds float64                `json:"uptime_seconds"`
	Counters      map[string]Metric      `json:"counters"`
	Gauges        map[string]Metric      `json:"gauges"`
	Timers        map[string]TimerMetric `json:"timers"`
}

// GetSnapshot returns a copy of all current metrics.
func (r *Registry) GetSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(r.startTime).Seconds(),
		Counters:      make(map[string]Metric, len(r.counters)),
		Gauges:        make(map[string]Metric, len(r.gauges)),
		Timers:        make(map[string]TimerMetric, len(r.timers)),
	}
	for name, metric := range r.counters {
		snap.Counters[name] = *metric
	}
	for name, metric := range r.gauges {
		snap.Gauges[name] = *metric
	}
	for name, timer := range r.timers {
		snap.Timers[name] = *timer
	}
	return snap
}

// CounterValue returns the current value of a counter, zero when absent.
func (r *Registry) CounterValue(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if metric, ok := r.counters[name]; ok {
		return metric.Value
	}
	return 0
}
