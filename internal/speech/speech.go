// Package speech reads text aloud: text is synthesized to an mp3 file and
// handed to an external audio player.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrNoText          = errors.New("no text to speak")
	ErrNoPlayer        = errors.New("no audio player configured")
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// Synthesizer converts text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays an audio file.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Speaker synthesizes text and plays it.
type Speaker struct {
	synth  Synthesizer
	player Player
	dir    string
	logger *zap.Logger
}

// NewSpeaker creates a speaker writing audio files into dir (the system temp
// directory when empty).
func NewSpeaker(synth Synthesizer, player Player, dir string, logger *zap.Logger) *Speaker {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Speaker{synth: synth, player: player, dir: dir, logger: logger.Named("speech")}
}

// Speak reads text aloud. name labels the audio file, e.g. "ai_spun_audio".
func (s *Speaker) Speak(ctx context.Context, text, name string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNoText
	}

	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	path := filepath.Join(s.dir, name+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	defer os.Remove(path)

	s.logger.Debug("playing audio", zap.String("path", path), zap.Int("bytes", len(audio)))
	if err := s.player.Play(ctx, path); err != nil {
		return fmt.Errorf("failed to play audio: %w", err)
	}
	return nil
}

// CommandPlayer plays files with an external command such as
// "cvlc --play-and-exit". The file path is appended as the last argument.
type CommandPlayer struct {
	args []string
}

// NewCommandPlayer parses a whitespace-separated command line.
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, ErrNoPlayer
	}
	return &CommandPlayer{args: args}, nil
}

// Play runs the player and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string{}, p.args[1:]...), path)
	cmd := exec.CommandContext(ctx, p.args[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", p.args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
