// Package pipeline runs the per-connection frame loop: decode, sample,
// detect, locate, announce, annotate and reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/alert"
	"github.com/teslashibe/go-wayfinder/pkg/detect"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/spatial"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// ErrTooManyDecodeFailures closes a session whose peer keeps sending
// undecodable frames.
var ErrTooManyDecodeFailures = errors.New("pipeline: too many consecutive decode failures")

// Stream is one bidirectional message transport. Read returns io.EOF when
// the peer closes normally.
type Stream interface {
	Read(ctx context.Context) (Message, error)
	Write(msg Message) error
}

// AlertSink accepts alerts without blocking.
type AlertSink interface {
	Enqueue(msg alert.Message) alert.Result
}

// Broadcaster fans session output out to passive viewers.
type Broadcaster interface {
	BroadcastFrame(jpeg []byte)
	BroadcastAlert(ev events.Alert)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Detector  detect.Detector
	Codec     vision.Codec
	Annotator vision.Annotator
	Estimator *spatial.Estimator
	Alerts    AlertSink

	Publisher events.Publisher // optional
	Viewers   Broadcaster      // optional
	Metrics   *Metrics         // optional
	Clock     func() time.Time // defaults to time.Now
	Logger    *slog.Logger
}

// State is the session's position in the frame loop.
type State int32

const (
	StateAwaitingFrame State = iota
	StateDecoding
	StateSkipped
	StateDetecting
	StateAnnotating
	StateSending
	StateClosed
)

var stateNames = [...]string{"awaiting_frame", "decoding", "skipped", "detecting", "annotating", "sending", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// SessionStats is a snapshot of one session.
type SessionStats struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	Received       uint64    `json:"received"`
	Processed      uint64    `json:"processed"`
	Skipped        uint64    `json:"skipped"`
	Sent           uint64    `json:"sent"`
	DecodeFailures uint64    `json:"decode_failures"`
	Announced      uint64    `json:"announced"`
	Tracks         int       `json:"tracks"`
}

// Session processes frames for one client connection. Its sampler and
// deduplicator are private to the connection.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	logger *slog.Logger

	sampler *alert.Sampler
	dedup   *alert.Deduplicator

	state     atomic.Int32
	startedAt time.Time

	received       atomic.Uint64
	processed      atomic.Uint64
	skipped        atomic.Uint64
	sent           atomic.Uint64
	decodeFailures atomic.Uint64
	announced      atomic.Uint64

	// loop-owned
	consecutiveFailures int
	lastOut             []byte

	closeOnce sync.Once
}

// NewSession validates cfg and prepares per-session state.
func NewSession(id string, cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Detector == nil || deps.Codec == nil || deps.Annotator == nil || deps.Estimator == nil || deps.Alerts == nil {
		return nil, errors.New("pipeline: detector, codec, annotator, estimator and alerts are required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	dedup, err := alert.NewDeduplicator(cfg.Dedup)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With("component", "session", "session", id),
		sampler:   alert.NewSampler(cfg.SampleInterval),
		dedup:     dedup,
		startedAt: deps.Clock(),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current loop state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:             s.id,
		State:          s.State().String(),
		StartedAt:      s.startedAt,
		Received:       s.received.Load(),
		Processed:      s.processed.Load(),
		Skipped:        s.skipped.Load(),
		Sent:           s.sent.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		Announced:      s.announced.Load(),
		Tracks:         s.dedup.Len(),
	}
}

// Run reads frames until the stream ends, ctx is cancelled, or an
// unrecoverable error occurs. A normal close returns nil.
func (s *Session) Run(ctx context.Context, stream Stream) (err error) {
	if m := s.deps.Metrics; m != nil {
		m.SessionsTotal.Add(1)
		m.SessionsActive.Add(1)
		defer m.SessionsActive.Add(-1)
	}
	s.logger.Info("session started")
	defer func() {
		s.close()
		st := s.Stats()
		args := []any{"received", st.Received, "processed", st.Processed, "skipped", st.Skipped, "announced", st.Announced}
		if err != nil {
			s.logger.Info("session closed", append(args, "error", err)...)
		} else {
			s.logger.Info("session closed", args...)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateAwaitingFrame)

		msg, rerr := stream.Read(ctx)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", rerr)
		}

		if herr := s.handle(ctx, stream, msg); herr != nil {
			return herr
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.dedup.Reset()
		s.lastOut = nil
	})
}

// handle runs one inbound message through the loop. A non-nil error ends the
// session.
func (s *Session) handle(ctx context.Context, stream Stream, msg Message) error {
	m := s.deps.Metrics
	s.received.Add(1)
	if m != nil {
		m.FramesReceived.Add(1)
	}

	s.setState(StateDecoding)
	frame, wire, err := s.decode(msg)
	if err != nil {
		s.decodeFailures.Add(1)
		if m != nil {
			m.DecodeFailures.Add(1)
		}
		s.consecutiveFailures++
		s.logger.Warn("frame decode failed", "error", err, "consecutive", s.consecutiveFailures)
		if s.cfg.MaxDecodeFailures > 0 && s.consecutiveFailures >= s.cfg.MaxDecodeFailures {
			return ErrTooManyDecodeFailures
		}
		return nil
	}
	s.consecutiveFailures = 0
	defer frame.Close()

	now := s.deps.Clock()
	if !s.sampler.Admit(now) {
		s.setState(StateSkipped)
		s.skipped.Add(1)
		if m != nil {
			m.FramesSkipped.Add(1)
		}
		return s.sendSkipped(stream, msg, wire)
	}

	s.setState(StateDetecting)
	overlays := s.detect(ctx, frame, now)
	s.processed.Add(1)
	if m != nil {
		m.FramesProcessed.Add(1)
	}

	s.setState(StateAnnotating)
	out, err := s.render(frame, overlays)
	if err != nil {
		if m != nil {
			m.EncodeFailures.Add(1)
		}
		s.logger.Warn("frame dropped", "error", err)
		return nil
	}

	s.setState(StateSending)
	if err := s.write(stream, EncodePayload(out, wire)); err != nil {
		return err
	}
	s.lastOut = out
	if v := s.deps.Viewers; v != nil {
		v.BroadcastFrame(out)
	}
	return nil
}

func (s *Session) decode(msg Message) (vision.Frame, Wire, error) {
	payload, wire, err := DecodePayload(msg)
	if err != nil {
		return nil, wire, err
	}
	frame, err := s.deps.Codec.Decode(payload)
	if err != nil {
		return nil, wire, err
	}
	return frame, wire, nil
}

func (s *Session) sendSkipped(stream Stream, msg Message, wire Wire) error {
	switch s.cfg.SkipPolicy {
	case SkipRaw:
		return s.write(stream, msg)
	case SkipResend:
		if s.lastOut == nil {
			return nil
		}
		return s.write(stream, EncodePayload(s.lastOut, wire))
	default:
		return nil
	}
}

func (s *Session) write(stream Stream, msg Message) error {
	if err := stream.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	s.sent.Add(1)
	if m := s.deps.Metrics; m != nil {
		m.FramesSent.Add(1)
	}
	return nil
}

// detect runs the detector and the per-detection alert path, returning the
// overlays for every located object.
func (s *Session) detect(ctx context.Context, frame vision.Frame, now time.Time) []vision.Overlay {
	m := s.deps.Metrics

	start := time.Now()
	dets, err := s.deps.Detector.Detect(ctx, frame)
	if m != nil {
		m.ObserveInference(time.Since(start))
	}
	if err != nil {
		if m != nil {
			m.DetectorErrors.Add(1)
		}
		s.logger.Warn("detection failed", "error", err)
		return nil
	}
	if m != nil {
		m.Detections.Add(uint64(len(dets)))
	}

	var overlays []vision.Overlay
	for _, d := range dets {
		est, ok := s.deps.Estimator.Estimate(d.Box, d.Label, frame.Width())
		if !ok {
			continue
		}
		overlays = append(overlays, vision.Overlay{
			Box:     d.Box,
			Caption: vision.Caption(d.Label, string(est.Direction), est.DistanceCM),
		})

		key := s.dedup.Key(d.Label, d.Box.Min.X)
		if s.dedup.ShouldAnnounce(key, est.DistanceCM, now) {
			s.announce(ctx, d.Label, est, now)
		}
	}
	return overlays
}

func (s *Session) announce(ctx context.Context, label string, est spatial.Estimate, now time.Time) {
	msg := alert.NewMessage(label, est)
	res := s.deps.Alerts.Enqueue(msg)

	s.announced.Add(1)
	if m := s.deps.Metrics; m != nil {
		m.AlertsAnnounced.Add(1)
		if res == alert.Dropped {
			m.AlertsDropped.Add(1)
		}
	}
	s.logger.Debug("alert", "text", msg.Text, "result", res)

	ev := events.Alert{
		SessionID:  s.id,
		Label:      label,
		Direction:  string(est.Direction),
		DistanceCM: est.DistanceCM,
		Proximity:  spatial.Proximity(est.DistanceCM),
		Text:       msg.Text,
		Result:     res.String(),
		Timestamp:  now,
	}
	if p := s.deps.Publisher; p != nil {
		if err := p.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish alert failed", "error", err)
		}
	}
	if v := s.deps.Viewers; v != nil {
		v.BroadcastAlert(ev)
	}
}

func (s *Session) render(frame vision.Frame, overlays []vision.Overlay) ([]byte, error) {
	annotated, err := s.deps.Annotator.Annotate(frame, overlays)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	defer annotated.Close()

	out, err := s.deps.Codec.Encode(annotated)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}
