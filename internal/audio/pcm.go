package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// Device output format: signed 16-bit little-endian stereo.
const (
	channels       = 2
	bytesPerSample = 2
	bytesPerFrame  = channels * bytesPerSample
)

// pcmReader encodes a beep.Streamer as interleaved 16-bit PCM. done is closed
// once the streamer is drained.
type pcmReader struct {
	s    beep.Streamer
	buf  [][2]float64
	done chan struct{}
	once sync.Once
}

func newPCMReader(s beep.Streamer) *pcmReader {
	return &pcmReader{s: s, done: make(chan struct{})}
}

func (r *pcmReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, io.ErrShortBuffer
	}
	if len(r.buf) < frames {
		r.buf = make([][2]float64, frames)
	}

	n, ok := r.s.Stream(r.buf[:frames])
	if n == 0 || !ok {
		r.once.Do(func() { close(r.done) })
		if n == 0 {
			return 0, io.EOF
		}
	}

	off := 0
	for _, frame := range r.buf[:n] {
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(p[off:], uint16(toInt16(frame[c])))
			off += bytesPerSample
		}
	}
	return off, nil
}

// toInt16 converts a sample in [-1, 1] to 16-bit, clipping out-of-range values.
func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}
