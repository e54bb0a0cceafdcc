package pipeline

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/alert"
)

// SkipPolicy decides what a session sends back for a frame the sampler
// did not admit.
type SkipPolicy string

const (
	SkipResend SkipPolicy = "resend" // last annotated output, nothing if none yet
	SkipRaw    SkipPolicy = "raw"    // echo the inbound payload
	SkipNone   SkipPolicy = "none"   // send nothing
)

// Config holds per-session settings.
type Config struct {
	SkipPolicy        SkipPolicy        `mapstructure:"skip_policy"`
	MaxDecodeFailures int               `mapstructure:"max_decode_failures"` // consecutive; 0 never closes
	SampleInterval    time.Duration     `mapstructure:"-"`
	Dedup             alert.DedupConfig `mapstructure:"-"`
}

// DefaultConfig returns session defaults.
func DefaultConfig() Config {
	return Config{
		SkipPolicy:     SkipResend,
		SampleInterval: 200 * time.Millisecond,
		Dedup:          alert.DefaultDedupConfig(),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	switch c.SkipPolicy {
	case SkipResend, SkipRaw, SkipNone:
	default:
		return fmt.Errorf("pipeline: unknown skip_policy %q", c.SkipPolicy)
	}
	if c.MaxDecodeFailures < 0 {
		return fmt.Errorf("pipeline: max_decode_failures must be >= 0, got %d", c.MaxDecodeFailures)
	}
	if c.SampleInterval < 0 {
		return fmt.Errorf("pipeline: sample interval must be >= 0, got %v", c.SampleInterval)
	}
	return c.Dedup.Validate()
}
