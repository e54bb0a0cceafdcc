// Package alert decides when the detector runs, which detections are worth
// announcing, and queues spoken alerts for a single audio consumer.
package alert

import (
	"sync"
	"time"
)

// Sampler throttles detector invocations independently of frame arrival rate.
// Frames arriving between admissions are meant to be discarded, not buffered.
type Sampler struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewSampler creates a sampler admitting at most one frame per interval.
func NewSampler(interval time.Duration) *Sampler {
	return &Sampler{interval: interval}
}

// Admit reports whether a detection may run at now, and records it if so.
// The first call always admits.
func (s *Sampler) Admit(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now
	return true
}

// Interval returns the minimum spacing between admissions.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}
