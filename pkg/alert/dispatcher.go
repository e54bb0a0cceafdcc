package alert

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Speaker renders text as audio. Speak blocks until playback finishes.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Result is the outcome of an enqueue attempt.
type Result int

const (
	Accepted Result = iota
	Dropped
)

// String implements fmt.Stringer.
func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "dropped"
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Capacity int    `json:"capacity"`
	Queued   int    `json:"queued"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
	Spoken   uint64 `json:"spoken"`
	Failed   uint64 `json:"failed"`
}

// Dispatcher is a bounded many-producer, single-consumer alert queue in front
// of a Speaker. Enqueue never blocks: when the queue is full the alert is
// dropped, since a backlogged alert describes a scene that has moved on.
type Dispatcher struct {
	queue   chan Message
	speaker Speaker
	logger  *slog.Logger

	// SpeakTimeout bounds a single utterance. Zero means no limit.
	SpeakTimeout time.Duration

	// OnSpoken is called after each message is handled with how long Speak
	// took and its error.
	OnSpoken func(msg Message, took time.Duration, err error)

	accepted atomic.Uint64
	dropped  atomic.Uint64
	spoken   atomic.Uint64
	failed   atomic.Uint64
}

// NewDispatcher creates a dispatcher with a fixed queue capacity.
func NewDispatcher(capacity int, speaker Speaker, logger *slog.Logger) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:   make(chan Message, capacity),
		speaker: speaker,
		logger:  logger.With("component", "alert.dispatcher"),
	}
}

// Enqueue offers msg to the queue without blocking.
func (d *Dispatcher) Enqueue(msg Message) Result {
	select {
	case d.queue <- msg:
		d.accepted.Add(1)
		return Accepted
	default:
		d.dropped.Add(1)
		d.logger.Debug("alert dropped, queue full", "text", msg.Text)
		return Dropped
	}
}

// Run drains the queue into the speaker, one message at a time, until ctx is
// cancelled. Only one Run may be active per dispatcher.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "capacity", cap(d.queue))
	defer d.logger.Info("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.queue:
			d.speak(ctx, msg)
		}
	}
}

func (d *Dispatcher) speak(ctx context.Context, msg Message) {
	if d.SpeakTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.SpeakTimeout)
		defer cancel()
	}

	start := time.Now()
	err := d.speaker.Speak(ctx, msg.Text)
	took := time.Since(start)
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn("speech failed", "text", msg.Text, "error", err)
	} else {
		d.spoken.Add(1)
		d.logger.Debug("spoke alert", "text", msg.Text, "took", took)
	}

	if d.OnSpoken != nil {
		d.OnSpoken(msg, took, err)
	}
}

// Len returns the number of queued messages.
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Cap returns the queue capacity.
func (d *Dispatcher) Cap() int {
	return cap(d.queue)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Capacity: cap(d.queue),
		Queued:   len(d.queue),
		Accepted: d.accepted.Load(),
		Dropped:  d.dropped.Load(),
		Spoken:   d.spoken.Load(),
		Failed:   d.failed.Load(),
	}
}
