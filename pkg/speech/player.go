package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

// Player plays a complete audio buffer, blocking until playback ends.
type Player interface {
	Play(ctx context.Context, audio []byte, format tts.AudioFormat) error
}

// DefaultPlayerCommand decodes any container ffmpeg understands from stdin.
var DefaultPlayerCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"}

// PipePlayer pipes audio into an external player process. Calls to Play are
// serialized.
type PipePlayer struct {
	Command []string

	mu sync.Mutex
}

// NewPipePlayer creates a player for command (DefaultPlayerCommand if empty).
func NewPipePlayer(command []string) *PipePlayer {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	return &PipePlayer{Command: command}
}

// Play writes audio to the player's stdin and waits for it to exit.
// Cancelling ctx kills the player.
func (p *PipePlayer) Play(ctx context.Context, audio []byte, _ tts.AudioFormat) error {
	if len(audio) == 0 {
		return nil
	}
	if len(p.Command) == 0 {
		return errors.New("speech: no player command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}

	_, werr := stdin.Write(audio)
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player exited: %w", err)
	}
	if werr != nil {
		return fmt.Errorf("write audio: %w", werr)
	}
	return nil
}
