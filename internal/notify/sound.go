// Package notify delivers fired alerts to the user and to other systems.
package notify

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
)

var (
	// ErrSoundMissing is returned when the alert sound file does not exist.
	ErrSoundMissing = errors.New("sound file not found")
	// ErrNoPlayer is returned on platforms without a known audio command.
	ErrNoPlayer = errors.New("no audio player for platform")
)

// PlayerCommand builds the host audio command for goos.
func PlayerCommand(goos, path string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("afplay", path), nil
	case "linux":
		return exec.Command("paplay", path), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoPlayer, goos)
	}
}

// SoundPlayer plays an audio file through the host's command-line player.
// Playback is detached: Notify returns as soon as the process starts.
type SoundPlayer struct {
	path    string
	command func(path string) (*exec.Cmd, error)
}

// NewSoundPlayer checks that path exists. Callers that get ErrSoundMissing
// run without sound.
func NewSoundPlayer(path string) (*SoundPlayer, error) {
	if path == "" {
		return nil, ErrSoundMissing
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundMissing, path)
	}
	return &SoundPlayer{
		path: path,
		command: func(p string) (*exec.Cmd, error) {
			return PlayerCommand(runtime.GOOS, p)
		},
	}, nil
}

// Notify implements alert.Notifier.
func (p *SoundPlayer) Notify(e alert.Event) {
	p.Play()
}

// Play starts the player and returns without waiting for it. Errors are
// logged, never returned.
func (p *SoundPlayer) Play() {
	cmd, err := p.command(p.path)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot play alert sound")
		return
	}
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("player", cmd.Path).Msg("Failed to start audio player")
		return
	}

	// Reap the child so it does not linger as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Msg("Audio player exited with error")
		}
	}()
}
