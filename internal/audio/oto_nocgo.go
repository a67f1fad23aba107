//go:build nocgo
// +build nocgo

package audio

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// DeviceAvailable reports whether this build can play through the audio device.
const DeviceAvailable = false

// OtoSink is unavailable in nocgo builds; Play always fails.
type OtoSink struct {
	logger *log.Logger
}

// NewOtoSink returns an OtoSink.
func NewOtoSink(logger *log.Logger) *OtoSink {
	return &OtoSink{logger: logger}
}

// Play returns a playback error wrapping ErrDeviceUnavailable.
func (s *OtoSink) Play(context.Context, string) error {
	return ttypes.PlaybackError("audio not available in nocgo build", ErrDeviceUnavailable)
}
