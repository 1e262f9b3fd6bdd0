package media

import (
	"fmt"
	"os/exec"
)

// Launcher opens a section's audio in an external player.
type Launcher struct {
	audioPlayer string
	detector    *TypeDetector
}

// NewLauncher uses the first installed command among players, or the
// platform's default opener when none is.
func NewLauncher(players []string) *Launcher {
	detector, err := NewTypeDetector()
	if err != nil {
		// Fallback to a basic detector if config can't be loaded
		detector = &TypeDetector{config: &TypesConfig{}}
	}

	player := findCommand(players...)
	if player == "" {
		player = detector.GetDefaultOpener()
	}
	return &Launcher{audioPlayer: player, detector: detector}
}

// Player reports the command audio is opened with
func (l *Launcher) Player() string {
	return l.audioPlayer
}

// Command builds the player invocation for url without starting it.
func (l *Launcher) Command(url string) (*exec.Cmd, error) {
	if url == "" {
		return nil, fmt.Errorf("no audio URL")
	}
	if t := l.detector.DetectType(url); t != TypeAudio && t != TypeUnknown {
		return nil, fmt.Errorf("%s is %s, not audio", url, t)
	}
	if l.audioPlayer == "" {
		return nil, fmt.Errorf("no audio player found")
	}
	return exec.Command(l.audioPlayer, url), nil
}

// Open starts the player detached.
func (l *Launcher) Open(url string) error {
	cmd, err := l.Command(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.audioPlayer, err)
	}

	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

func findCommand(commands ...string) string {
	for _, cmd := range commands {
		if _, err := exec.LookPath(cmd); err == nil {
			return cmd
		}
	}
	return ""
}
