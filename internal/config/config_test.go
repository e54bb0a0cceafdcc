package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/spatial"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8001", cfg.Server.Addr)
	assert.Equal(t, 0.35, cfg.Detector.MinConfidence)
	assert.Equal(t, 200*time.Millisecond, cfg.Sampler.Interval)
	assert.Equal(t, 3, cfg.Dispatcher.Capacity)
	assert.Equal(t, pipeline.SkipResend, cfg.Session.SkipPolicy)
	assert.Equal(t, spatial.TieAhead, cfg.Spatial.TieBreak)
	assert.False(t, cfg.Events.Enabled)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Pipeline(), cfg.Pipeline())
	assert.Equal(t, float64(50), cfg.Spatial.Widths["person"])
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder.yaml")
	yaml := `
server:
  addr: ":9000"
sampler:
  interval: 500ms
dedup:
  change_threshold: 25
spatial:
  tie_break: side
  widths:
    person: 45
session:
  skip_policy: raw
speech:
  backend: log
events:
  enabled: true
  brokers: ["kafka-1:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("WAYFINDER_SERVER_ADDR", ":9100")
	t.Setenv("WAYFINDER_DISPATCHER_CAPACITY", "5")
	t.Setenv("WAYFINDER_DEDUP_TRACK_TTL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, 5, cfg.Dispatcher.Capacity)
	assert.Equal(t, time.Minute, cfg.Dedup.TrackTTL)
	assert.Equal(t, 25.0, cfg.Dedup.ChangeThreshold)
	assert.Equal(t, spatial.TieSide, cfg.Spatial.TieBreak)
	assert.Equal(t, 45.0, cfg.Spatial.Widths["person"])
	assert.Equal(t, 180.0, cfg.Spatial.Widths["car"], "unlisted widths keep their defaults")
	assert.Equal(t, speech.BackendLog, cfg.Speech.Backend)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Events.Brokers)

	p := cfg.Pipeline()
	assert.Equal(t, pipeline.SkipRaw, p.SkipPolicy)
	assert.Equal(t, 500*time.Millisecond, p.SampleInterval)
	assert.Equal(t, time.Minute, p.Dedup.TrackTTL)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("WAYFINDER_SPEECH_BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Speech.OpenAIAPIKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("WAYFINDER_SESSION_SKIP_POLICY", "sometimes")
	_, err = Load("")
	assert.ErrorContains(t, err, "skip_policy")
}

func TestValidate_ReportsEverySection(t *testing.T) {
	cfg := Default()
	cfg.Codec.JPEGQuality = 0
	cfg.Dispatcher.Capacity = 0
	cfg.Log.Format = "xml"
	cfg.Spatial.FocalLength = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"jpeg_quality", "dispatcher.capacity", "log.format", "focal length"} {
		assert.ErrorContains(t, err, want)
	}
}
