package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics aggregates counters across all sessions. Safe for concurrent use.
type Metrics struct {
	FramesReceived  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	FramesSent      atomic.Uint64
	DecodeFailures  atomic.Uint64
	EncodeFailures  atomic.Uint64
	DetectorErrors  atomic.Uint64
	Detections      atomic.Uint64
	AlertsAnnounced atomic.Uint64
	AlertsDropped   atomic.Uint64
	SessionsTotal   atomic.Uint64
	SessionsActive  atomic.Int64

	inference *latencyWindow
	speech    *latencyWindow
	started   time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Uptime          time.Duration `json:"-"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	FramesReceived  uint64        `json:"frames_received"`
	FramesProcessed uint64        `json:"frames_processed"`
	FramesSkipped   uint64        `json:"frames_skipped"`
	FramesSent      uint64        `json:"frames_sent"`
	DecodeFailures  uint64        `json:"decode_failures"`
	EncodeFailures  uint64        `json:"encode_failures"`
	DetectorErrors  uint64        `json:"detector_errors"`
	Detections      uint64        `json:"detections"`
	AlertsAnnounced uint64        `json:"alerts_announced"`
	AlertsDropped   uint64        `json:"alerts_dropped"`
	SessionsTotal   uint64        `json:"sessions_total"`
	SessionsActive  int64         `json:"sessions_active"`
	Inference       LatencyStats  `json:"inference"`
	Speech          LatencyStats  `json:"speech"`
}

// LatencyStats summarises a recent latency window in milliseconds.
type LatencyStats struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// NewMetrics keeps the last window inference and speech timings.
func NewMetrics(window int) *Metrics {
	if window < 1 {
		window = 256
	}
	return &Metrics{
		inference: newLatencyWindow(window),
		speech:    newLatencyWindow(window),
		started:   time.Now(),
	}
}

// ObserveInference records one detector call.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.inference.observe(d)
}

// ObserveSpeech records how long one alert took to speak.
func (m *Metrics) ObserveSpeech(d time.Duration) {
	m.speech.observe(d)
}

// Latency computes stats over the current inference window.
func (m *Metrics) Latency() LatencyStats {
	return m.inference.stats()
}

// SpeechLatency computes stats over the current speech window.
func (m *Metrics) SpeechLatency() LatencyStats {
	return m.speech.stats()
}

// latencyWindow is a fixed-size ring of durations in milliseconds.
type latencyWindow struct {
	mu     sync.Mutex
	values []float64
	next   int
	filled bool
}

func newLatencyWindow(n int) *latencyWindow {
	return &latencyWindow{values: make([]float64, n)}
}

func (w *latencyWindow) observe(d time.Duration) {
	w.mu.Lock()
	w.values[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.filled = true
	}
	w.mu.Unlock()
}

func (w *latencyWindow) stats() LatencyStats {
	w.mu.Lock()
	n := w.next
	if w.filled {
		n = len(w.values)
	}
	xs := make([]float64, n)
	copy(xs, w.values[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}
	sort.Float64s(xs)
	return LatencyStats{
		Samples: n,
		MeanMs:  stat.Mean(xs, nil),
		P50Ms:   stat.Quantile(0.5, stat.Empirical, xs, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, xs, nil),
		MaxMs:   xs[n-1],
	}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	up := time.Since(m.started)
	return MetricsSnapshot{
		Uptime:          up,
		UptimeSeconds:   up.Seconds(),
		FramesReceived:  m.FramesReceived.Load(),
		FramesProcessed: m.FramesProcessed.Load(),
		FramesSkipped:   m.FramesSkipped.Load(),
		FramesSent:      m.FramesSent.Load(),
		DecodeFailures:  m.DecodeFailures.Load(),
		EncodeFailures:  m.EncodeFailures.Load(),
		DetectorErrors:  m.DetectorErrors.Load(),
		Detections:      m.Detections.Load(),
		AlertsAnnounced: m.AlertsAnnounced.Load(),
		AlertsDropped:   m.AlertsDropped.Load(),
		SessionsTotal:   m.SessionsTotal.Load(),
		SessionsActive:  m.SessionsActive.Load(),
		Inference:       m.Latency(),
		Speech:          m.SpeechLatency(),
	}
}
