package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// DefaultPlayers are tried in order when no player command is configured.
// The file path is appended to each argument list.
var DefaultPlayers = [][]string{
	{"mpv", "--no-video", "--really-quiet"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	{"cvlc", "--play-and-exit", "--quiet"},
	{"afplay"},
}

// waitDelay bounds how long Play waits for a killed player's output pipes.
const waitDelay = time.Second

// CommandSink plays files by running an external player.
type CommandSink struct {
	command string
	logger  *log.Logger

	// lookPath resolves executables; replaced in tests.
	lookPath func(string) (string, error)
}

// NewCommandSink returns a sink running command with the file path as last
// argument. command is split like a shell would; when empty the first of
// DefaultPlayers found on PATH is used.
func NewCommandSink(command string, logger *log.Logger) *CommandSink {
	if logger == nil {
		logger = log.Default()
	}
	return &CommandSink{
		command:  strings.TrimSpace(command),
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

// Play runs the player on path and waits for it to exit.
func (s *CommandSink) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return ttypes.PlaybackError("unable to open audio file", err)
	}

	argv, err := s.resolve()
	if err != nil {
		return err
	}
	argv = append(argv, path)

	s.logger.Debug("Running player", "command", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ttypes.PlaybackError("playback interrupted", ctx.Err())
		}
		msg := fmt.Sprintf("%s failed", argv[0])
		if out := strings.TrimSpace(stderr.String()); out != "" {
			msg = fmt.Sprintf("%s: %s", msg, out)
		}
		return ttypes.PlaybackError(msg, err)
	}
	return nil
}

// resolve returns the player's argument list without the file path.
func (s *CommandSink) resolve() ([]string, error) {
	if s.command != "" {
		argv, err := shlex.Split(s.command)
		if err != nil || len(argv) == 0 {
			return nil, ttypes.PlaybackError(fmt.Sprintf("invalid player command %q", s.command), err)
		}
		return argv, nil
	}

	var tried []string
	for _, candidate := range DefaultPlayers {
		bin, err := s.lookPath(candidate[0])
		if err == nil {
			return append([]string{bin}, candidate[1:]...), nil
		}
		if !errors.Is(err, exec.ErrNotFound) {
			s.logger.Debug("Player lookup failed", "player", candidate[0], "error", err)
		}
		tried = append(tried, candidate[0])
	}

	return nil, ttypes.PlaybackError(
		fmt.Sprintf("no audio player found (tried %s); install one or set player_command", strings.Join(tried, ", ")),
		ErrDeviceUnavailable)
}
