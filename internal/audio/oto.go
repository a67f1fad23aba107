//go:build !nocgo
// +build !nocgo

package audio

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// DeviceAvailable reports whether this build can play through the audio device.
const DeviceAvailable = true

// resampleQuality is passed to beep.Resample when a file's sample rate
// differs from the device's.
const resampleQuality = 4

// The process-wide oto context. oto allows only one per process, so its
// sample rate is fixed by the first file played.
var (
	device     *oto.Context
	deviceRate int
	deviceErr  error
	deviceOnce sync.Once
)

func deviceBufferSize() time.Duration {
	switch runtime.GOOS {
	case "darwin":
		// CoreAudio underruns with smaller buffers.
		return 100 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// openDevice returns the audio context, creating it at sampleRate on first use.
func openDevice(sampleRate int) (*oto.Context, int, error) {
	deviceOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   deviceBufferSize(),
		})
		if err != nil {
			deviceErr = err
			return
		}
		<-ready
		device = ctx
		deviceRate = sampleRate
	})
	return device, deviceRate, deviceErr
}

// OtoSink decodes mp3 files and plays them on the system audio device.
type OtoSink struct {
	logger *log.Logger
}

// NewOtoSink returns an OtoSink. A nil logger uses the default logger.
func NewOtoSink(logger *log.Logger) *OtoSink {
	if logger == nil {
		logger = log.Default()
	}
	return &OtoSink{logger: logger}
}

// Play decodes the mp3 file at path and blocks until the device has played
// all of it. Cancelling ctx stops playback immediately.
func (s *OtoSink) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ttypes.PlaybackError("unable to open audio file", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		_ = f.Close()
		return ttypes.PlaybackError(fmt.Sprintf("unable to decode %s", path), err)
	}
	defer streamer.Close() //nolint:errcheck

	otoCtx, rate, err := openDevice(int(format.SampleRate))
	if err != nil {
		return ttypes.PlaybackError("unable to open audio device", fmt.Errorf("%w: %w", ErrDeviceUnavailable, err))
	}

	var src beep.Streamer = streamer
	if rate != int(format.SampleRate) {
		s.logger.Debug("Resampling", "from", format.SampleRate, "to", rate)
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(rate), streamer)
	}

	pcm := newPCMReader(src)
	player := otoCtx.NewPlayer(pcm)
	defer player.Close() //nolint:errcheck

	s.logger.Debug("Playing",
		"path", path,
		"sampleRate", format.SampleRate,
		"duration", format.SampleRate.D(streamer.Len()).Round(time.Millisecond))

	player.Play()

	select {
	case <-ctx.Done():
		player.Pause()
		return ttypes.PlaybackError("playback interrupted", ctx.Err())
	case <-pcm.done:
	}

	if err := streamer.Err(); err != nil {
		player.Pause()
		return ttypes.PlaybackError("unable to decode audio", err)
	}

	// The decoder is drained; wait once for what the player and device still hold.
	remaining := time.Duration(player.BufferedSize())*time.Second/time.Duration(rate*bytesPerFrame) + deviceBufferSize()
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		player.Pause()
		return ttypes.PlaybackError("playback interrupted", ctx.Err())
	case <-timer.C:
	}

	if err := player.Err(); err != nil {
		return ttypes.PlaybackError("audio device failed", err)
	}
	return nil
}
