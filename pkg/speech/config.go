package speech

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

// Backend names a speech sink.
type Backend string

const (
	BackendCommand Backend = "command"
	BackendOpenAI  Backend = "openai"
	BackendLog     Backend = "log"
)

// Config selects and configures the speech sink.
type Config struct {
	Backend      Backend       `mapstructure:"backend"`
	Command      string        `mapstructure:"command"`
	Args         []string      `mapstructure:"args"`
	Player       []string      `mapstructure:"player"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	Voice        string        `mapstructure:"voice"`
	Model        string        `mapstructure:"model"`
	Speed        float64       `mapstructure:"speed"`
	Timeout      time.Duration `mapstructure:"timeout"` // per utterance, synthesis plus playback
	FallbackLog  bool          `mapstructure:"fallback_log"`
}

// DefaultConfig speaks offline through espeak-ng.
func DefaultConfig() Config {
	return Config{
		Backend: BackendCommand,
		Command: "espeak-ng",
		Args:    []string{"-s", "170"},
		Player:  DefaultPlayerCommand,
		Voice:   tts.VoiceNova,
		Model:   tts.ModelTTS1,
		Speed:   1.1,
		Timeout: 15 * time.Second,
	}
}

// Validate checks the backend selection.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendCommand:
		if c.Command == "" {
			return fmt.Errorf("speech: command backend needs a command")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("speech: openai backend: %w", tts.ErrNoAPIKey)
		}
	case BackendLog:
	default:
		return fmt.Errorf("speech: unknown backend %q", c.Backend)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("speech: timeout must be >= 0, got %v", c.Timeout)
	}
	return nil
}

// New builds the configured Speaker.
func New(cfg Config, logger *slog.Logger) (Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendOpenAI:
		openai, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIAPIKey),
			tts.WithVoice(cfg.Voice),
			tts.WithModel(cfg.Model),
			tts.WithSpeed(cfg.Speed),
			tts.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		var provider tts.Provider = openai
		if cfg.FallbackLog {
			// Keep the pipeline moving when the API is unreachable.
			provider, err = tts.NewChain(logger, openai, silentProvider{logger: logger})
			if err != nil {
				return nil, err
			}
		}
		return NewTTSSpeaker(provider, NewPipePlayer(cfg.Player), logger), nil
	case BackendLog:
		return NewLogSpeaker(logger), nil
	default:
		return NewCommandSpeaker(cfg.Command, cfg.Args...), nil
	}
}
