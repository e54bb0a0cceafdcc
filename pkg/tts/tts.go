// Package tts turns alert text into audio through pluggable providers.
//
// Providers return a complete audio buffer; playback is the caller's job.
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceNova),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "person left, approximately 120 centimeters away")
//	// result.Audio holds MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	CharCount int
	Latency   time.Duration // request start to full body
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding names an audio container or sample format.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3"
	EncodingWAV   Encoding = "wav"
	EncodingPCM24 Encoding = "pcm" // raw 24kHz mono PCM16
)

// SampleRateFromEncoding returns the sample rate a provider emits for enc.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// FormatFor builds the AudioFormat of a mono stream in enc.
func FormatFor(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
	}
}
