// Package config loads wayfinder settings: built-in defaults, then an
// optional YAML file, then WAYFINDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-wayfinder/pkg/alert"
	"github.com/teslashibe/go-wayfinder/pkg/detect/yolo"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/spatial"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

// EnvPrefix prefixes every environment override, e.g. WAYFINDER_SERVER_ADDR.
const EnvPrefix = "WAYFINDER"

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// CodecConfig controls outbound JPEG encoding.
type CodecConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

// SamplerConfig sets the detector cadence per session.
type SamplerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DispatcherConfig sizes the shared speech queue.
type DispatcherConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// Config is the full process configuration.
type Config struct {
	Log        LogConfig         `mapstructure:"log"`
	Server     web.Config        `mapstructure:"server"`
	Detector   yolo.Config       `mapstructure:"detector"`
	Codec      CodecConfig       `mapstructure:"codec"`
	Sampler    SamplerConfig     `mapstructure:"sampler"`
	Dedup      alert.DedupConfig `mapstructure:"dedup"`
	Dispatcher DispatcherConfig  `mapstructure:"dispatcher"`
	Spatial    spatial.Config    `mapstructure:"spatial"`
	Session    pipeline.Config   `mapstructure:"session"`
	Speech     speech.Config     `mapstructure:"speech"`
	Events     events.Config     `mapstructure:"events"`
}

// Default returns the built-in configuration.
func Default() Config {
	session := pipeline.DefaultConfig()
	return Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		Server:     web.DefaultConfig(),
		Detector:   yolo.DefaultConfig(),
		Codec:      CodecConfig{JPEGQuality: 80},
		Sampler:    SamplerConfig{Interval: session.SampleInterval},
		Dedup:      session.Dedup,
		Dispatcher: DispatcherConfig{Capacity: 3},
		Spatial:    spatial.DefaultConfig(),
		Session:    session,
		Speech:     speech.DefaultConfig(),
		Events:     events.DefaultConfig(),
	}
}

// Pipeline returns the per-session config with the sampler and dedup
// sections folded in.
func (c Config) Pipeline() pipeline.Config {
	p := c.Session
	p.SampleInterval = c.Sampler.Interval
	p.Dedup = c.Dedup
	return p
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.Codec.JPEGQuality < 1 || c.Codec.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("config: codec.jpeg_quality must be within [1,100], got %d", c.Codec.JPEGQuality))
	}
	if c.Dispatcher.Capacity < 1 {
		errs = append(errs, fmt.Errorf("config: dispatcher.capacity must be >= 1, got %d", c.Dispatcher.Capacity))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format))
	}
	errs = append(errs,
		c.Server.Validate(),
		c.Detector.Validate(),
		c.Spatial.Validate(),
		c.Pipeline().Validate(),
		c.Speech.Validate(),
		c.Events.Validate(),
	)
	return errors.Join(errs...)
}

// Load reads the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	// Unmarshal skips these; they are assembled by Pipeline.
	cfg.Session.SampleInterval = cfg.Sampler.Interval
	cfg.Session.Dedup = cfg.Dedup

	if cfg.Speech.OpenAIAPIKey == "" {
		cfg.Speech.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides are visible to
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.max_message_bytes", d.Server.MaxMessageBytes)

	v.SetDefault("detector.model_path", d.Detector.ModelPath)
	v.SetDefault("detector.confidence", d.Detector.MinConfidence)
	v.SetDefault("detector.nms", d.Detector.NMSThresh)
	v.SetDefault("detector.input_size", d.Detector.InputSize)

	v.SetDefault("codec.jpeg_quality", d.Codec.JPEGQuality)
	v.SetDefault("sampler.interval", d.Sampler.Interval)

	v.SetDefault("dedup.change_threshold", d.Dedup.ChangeThreshold)
	v.SetDefault("dedup.reannounce_interval", d.Dedup.ReannounceInterval)
	v.SetDefault("dedup.bucket_width", d.Dedup.BucketWidth)
	v.SetDefault("dedup.track_ttl", d.Dedup.TrackTTL)
	v.SetDefault("dedup.max_tracks", d.Dedup.MaxTracks)

	v.SetDefault("dispatcher.capacity", d.Dispatcher.Capacity)

	v.SetDefault("spatial.focal_length", d.Spatial.FocalLength)
	v.SetDefault("spatial.default_width", d.Spatial.DefaultWidth)
	v.SetDefault("spatial.min_reliable_px", d.Spatial.MinReliablePx)
	v.SetDefault("spatial.min_distance", d.Spatial.MinDistance)
	v.SetDefault("spatial.max_distance", d.Spatial.MaxDistance)
	v.SetDefault("spatial.tie_break", string(d.Spatial.TieBreak))
	// A generic map lets viper merge per-label overrides with the table.
	widths := make(map[string]any, len(d.Spatial.Widths))
	for label, w := range d.Spatial.Widths {
		widths[label] = w
	}
	v.SetDefault("spatial.widths", widths)

	v.SetDefault("session.skip_policy", string(d.Session.SkipPolicy))
	v.SetDefault("session.max_decode_failures", d.Session.MaxDecodeFailures)

	v.SetDefault("speech.backend", string(d.Speech.Backend))
	v.SetDefault("speech.command", d.Speech.Command)
	v.SetDefault("speech.args", d.Speech.Args)
	v.SetDefault("speech.player", d.Speech.Player)
	v.SetDefault("speech.openai_api_key", d.Speech.OpenAIAPIKey)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.model", d.Speech.Model)
	v.SetDefault("speech.speed", d.Speech.Speed)
	v.SetDefault("speech.timeout", d.Speech.Timeout)
	v.SetDefault("speech.fallback_log", d.Speech.FallbackLog)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.batch_timeout", d.Events.BatchTimeout)
}
