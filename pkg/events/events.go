// Package events publishes announced alerts to an external stream.
// Events are emitted only; nothing here reads them back.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Alert is one announced alert as published.
type Alert struct {
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Direction  string    `json:"direction"`
	DistanceCM float64   `json:"distance_cm"`
	Proximity  string    `json:"proximity"`
	Text       string    `json:"text"`
	Result     string    `json:"result"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits alert events.
type Publisher interface {
	Publish(ctx context.Context, ev Alert) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Alert) error { return nil }
func (Nop) Close() error                         { return nil }

// Config controls the Kafka publisher.
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DefaultConfig returns a disabled publisher config.
func DefaultConfig() Config {
	return Config{
		Topic:        "wayfinder.alerts",
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Validate checks the config when enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("events: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("events: topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alerts as JSON, keyed by session id so one session's
// alerts stay ordered within a partition.
type KafkaPublisher struct {
	w      messageWriter
	logger *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewKafka creates an async Kafka publisher.
func NewKafka(cfg Config, logger *slog.Logger) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	p := &KafkaPublisher{logger: logger}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.failed.Add(uint64(len(msgs)))
				logger.Warn("kafka write failed", "messages", len(msgs), "err", err)
				return
			}
			p.published.Add(uint64(len(msgs)))
		},
	}
	logger.Info("kafka publisher enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return p, nil
}

// New returns a Kafka publisher when enabled, otherwise Nop.
func New(cfg Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewKafka(cfg, logger)
}

// Publish enqueues ev. With the async writer this does not wait for brokers.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Alert) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Time:  ev.Timestamp,
	})
}

// Published returns the number of messages acknowledged by the brokers.
func (p *KafkaPublisher) Published() uint64 { return p.published.Load() }

// Failed returns the number of messages that could not be written.
func (p *KafkaPublisher) Failed() uint64 { return p.failed.Load() }

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
