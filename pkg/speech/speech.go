// Package speech provides the sinks that turn alert text into sound.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

var (
	// ErrEmptyText is returned when there is nothing to say.
	ErrEmptyText = errors.New("speech: empty text")
	// ErrKeyRejected is returned when the TTS API refuses the configured key.
	ErrKeyRejected = errors.New("speech: API key rejected")
)

// Speaker renders text as audio, blocking until it has been spoken.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// HealthChecker is implemented by speakers backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Check probes s when it supports health checks. Local speakers always pass.
func Check(ctx context.Context, s Speaker) error {
	hc, ok := s.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.Health(ctx)
}

// CommandSpeaker runs a local synthesizer such as espeak-ng with the text as
// its final argument. It works offline.
type CommandSpeaker struct {
	Command string
	Args    []string
}

// NewCommandSpeaker creates a speaker for command (espeak-ng if empty).
func NewCommandSpeaker(command string, args ...string) *CommandSpeaker {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandSpeaker{Command: command, Args: args}
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	args := append(append([]string(nil), s.Args...), text)
	out, err := exec.CommandContext(ctx, s.Command, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speech: %s: %w: %s", s.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// TTSSpeaker synthesizes through a tts.Provider and plays the result.
type TTSSpeaker struct {
	provider tts.Provider
	player   Player
	logger   *slog.Logger
}

// NewTTSSpeaker combines a provider with a player.
func NewTTSSpeaker(provider tts.Provider, player Player, logger *slog.Logger) *TTSSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TTSSpeaker{
		provider: provider,
		player:   player,
		logger:   logger.With("component", "speech.tts"),
	}
}

func (s *TTSSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", keyError(err))
	}
	s.logger.Debug("playing", "bytes", len(result.Audio), "latency_ms", result.Latency.Milliseconds())
	if err := s.player.Play(ctx, result.Audio, result.Format); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// Close releases the provider.
func (s *TTSSpeaker) Close() error {
	return s.provider.Close()
}

// Health checks the provider's connectivity and credentials.
func (s *TTSSpeaker) Health(ctx context.Context) error {
	return keyError(s.provider.Health(ctx))
}

// keyError marks 401 responses so callers can tell a bad key from an outage.
func keyError(err error) error {
	var apiErr *tts.APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		return fmt.Errorf("%w: %w", ErrKeyRejected, err)
	}
	return err
}

// LogSpeaker only logs what would be said. Useful headless and in tests.
type LogSpeaker struct {
	logger *slog.Logger
}

func NewLogSpeaker(logger *slog.Logger) *LogSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSpeaker{logger: logger.With("component", "speech.log")}
}

func (s *LogSpeaker) Speak(_ context.Context, text string) error {
	s.logger.Info("speak", "text", text)
	return nil
}

// silentProvider logs the text and yields no audio.
type silentProvider struct {
	logger *slog.Logger
}

func (p silentProvider) Synthesize(_ context.Context, text string) (*tts.AudioResult, error) {
	p.logger.Info("speak (silent fallback)", "text", text)
	return &tts.AudioResult{Format: tts.FormatFor(tts.EncodingMP3), CharCount: len(text)}, nil
}

func (silentProvider) Health(context.Context) error { return nil }
func (silentProvider) Close() error                 { return nil }
