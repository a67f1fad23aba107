package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/speaky-cli/speaky/internal/config"
	"github.com/speaky-cli/speaky/internal/ttypes"
)

// Sink plays an audio file.
type Sink interface {
	// Play blocks until the file at path has finished playing or ctx is done.
	// Failures are playback-stage ttypes.Errors.
	Play(ctx context.Context, path string) error
}

// New returns the Sink for backend. The auto backend uses the configured
// command if there is one, otherwise the audio device with an external player
// as fallback.
func New(backend, command string, logger *log.Logger) (Sink, error) {
	if logger == nil {
		logger = log.Default()
	}

	switch backend {
	case config.PlayerOto:
		return NewOtoSink(logger), nil
	case config.PlayerCommand:
		return NewCommandSink(command, logger), nil
	case config.PlayerAuto, "":
		if command != "" {
			return NewCommandSink(command, logger), nil
		}
		if !DeviceAvailable {
			return NewCommandSink("", logger), nil
		}
		return &fallbackSink{
			primary:  NewOtoSink(logger),
			fallback: NewCommandSink("", logger),
			logger:   logger,
		}, nil
	default:
		return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("unknown player %q", backend), nil)
	}
}

// fallbackSink tries primary and switches to fallback for good once the
// audio device cannot be opened.
type fallbackSink struct {
	primary  Sink
	fallback Sink
	logger   *log.Logger

	usingFallback bool
}

func (f *fallbackSink) Play(ctx context.Context, path string) error {
	if f.usingFallback {
		return f.fallback.Play(ctx, path)
	}

	err := f.primary.Play(ctx, path)
	if err == nil || !errors.Is(err, ErrDeviceUnavailable) {
		return err
	}

	f.logger.Debug("Audio device unavailable, using external player", "error", err)
	f.usingFallback = true
	return f.fallback.Play(ctx, path)
}

// ErrDeviceUnavailable is wrapped by errors from a Sink that could not open
// the audio device.
var ErrDeviceUnavailable = errors.New("audio device unavailable")
