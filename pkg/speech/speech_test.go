package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

func TestCommandSpeaker(t *testing.T) {
	ctx := context.Background()

	out := filepath.Join(t.TempDir(), "said.txt")
	s := NewCommandSpeaker("sh", "-c", `printf '%s' "$0" > "`+out+`"`)
	require.NoError(t, s.Speak(ctx, "person left, approximately 120 centimeters away"))

	said, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "person left, approximately 120 centimeters away", string(said))

	assert.ErrorIs(t, s.Speak(ctx, "  "), ErrEmptyText)
	assert.Error(t, NewCommandSpeaker("false").Speak(ctx, "hello"))
	assert.Equal(t, "espeak-ng", NewCommandSpeaker("").Command)
}

func TestCommandSpeaker_Cancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewCommandSpeaker("sleep").Speak(ctx, "5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPipePlayer(t *testing.T) {
	out := filepath.Join(t.TempDir(), "audio.bin")
	p := NewPipePlayer([]string{"sh", "-c", "cat > " + out})

	require.NoError(t, p.Play(context.Background(), []byte("mp3-bytes"), tts.FormatFor(tts.EncodingMP3)))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(got))

	// Empty audio is a no-op and never starts the player.
	require.NoError(t, os.Remove(out))
	require.NoError(t, p.Play(context.Background(), nil, tts.AudioFormat{}))
	assert.NoFileExists(t, out)
}

func TestPipePlayer_Failure(t *testing.T) {
	p := NewPipePlayer([]string{"sh", "-c", "cat >/dev/null; exit 3"})
	assert.Error(t, p.Play(context.Background(), []byte("x"), tts.AudioFormat{}))
}

type recordingPlayer struct {
	played [][]byte
	err    error
}

func (p *recordingPlayer) Play(_ context.Context, audio []byte, _ tts.AudioFormat) error {
	p.played = append(p.played, audio)
	return p.err
}

func TestTTSSpeaker(t *testing.T) {
	mock := tts.NewMock()
	player := &recordingPlayer{}
	s := NewTTSSpeaker(mock, player, log.Discard())

	require.NoError(t, s.Speak(context.Background(), "hello"))
	assert.Equal(t, 1, mock.CallCount("Synthesize"))
	require.Len(t, player.played, 1)
	assert.Len(t, player.played[0], 5*960)

	providerErr := errors.New("quota exceeded")
	s = NewTTSSpeaker(tts.WithError(providerErr), player, log.Discard())
	assert.ErrorIs(t, s.Speak(context.Background(), "hello"), providerErr)

	player.err = errors.New("no audio device")
	s = NewTTSSpeaker(tts.NewMock(), player, log.Discard())
	assert.ErrorIs(t, s.Speak(context.Background(), "hello"), player.err)

	require.NoError(t, s.Close())
}

func TestTTSSpeaker_KeyRejected(t *testing.T) {
	unauthorized := &tts.APIError{StatusCode: 401, Code: "invalid_api_key", Provider: "openai"}
	s := NewTTSSpeaker(tts.WithError(unauthorized), &recordingPlayer{}, log.Discard())

	err := s.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrKeyRejected)
	var apiErr *tts.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_api_key", apiErr.Code)

	assert.ErrorIs(t, Check(context.Background(), s), ErrKeyRejected)

	// Other failures pass through unmarked.
	limited := &tts.APIError{StatusCode: 429, Provider: "openai"}
	s = NewTTSSpeaker(tts.WithError(limited), &recordingPlayer{}, log.Discard())
	err = Check(context.Background(), s)
	assert.ErrorIs(t, err, limited)
	assert.NotErrorIs(t, err, ErrKeyRejected)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Check(ctx, NewLogSpeaker(log.Discard())))
	assert.NoError(t, Check(ctx, NewCommandSpeaker("espeak-ng")))

	mock := tts.NewMock()
	assert.NoError(t, Check(ctx, NewTTSSpeaker(mock, &recordingPlayer{}, log.Discard())))
	assert.Equal(t, 1, mock.CallCount("Health"))
}

func TestLogSpeaker(t *testing.T) {
	assert.NoError(t, NewLogSpeaker(log.Discard()).Speak(context.Background(), "dog ahead"))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		want    any
		wantErr bool
	}{
		{"default is command", func(*Config) {}, &CommandSpeaker{}, false},
		{"log", func(c *Config) { c.Backend = BackendLog }, &LogSpeaker{}, false},
		{"openai", func(c *Config) { c.Backend = BackendOpenAI; c.OpenAIAPIKey = "sk" }, &TTSSpeaker{}, false},
		{"openai with fallback", func(c *Config) {
			c.Backend = BackendOpenAI
			c.OpenAIAPIKey = "sk"
			c.FallbackLog = true
		}, &TTSSpeaker{}, false},
		{"openai without key", func(c *Config) { c.Backend = BackendOpenAI }, nil, true},
		{"unknown", func(c *Config) { c.Backend = "morse" }, nil, true},
		{"command without binary", func(c *Config) { c.Command = "" }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			s, err := New(cfg, log.Discard())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestSilentFallback(t *testing.T) {
	chain, err := tts.NewChain(log.Discard(), tts.WithError(errors.New("offline")), silentProvider{logger: log.Discard()})
	require.NoError(t, err)

	player := &recordingPlayer{}
	s := NewTTSSpeaker(chain, player, log.Discard())
	require.NoError(t, s.Speak(context.Background(), "chair right"))
	require.Len(t, player.played, 1)
	assert.Empty(t, player.played[0])
}
