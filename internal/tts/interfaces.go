package tts

import (
	"context"
	"io"

	"github.com/speaky-cli/speaky/internal/cache"
	"github.com/speaky-cli/speaky/internal/config"
)

// Request fully describes one synthesis. Text, Voice and Instructions
// determine the cache key; Model and Format only shape the remote call.
type Request struct {
	Text         string
	Voice        string
	Instructions string
	Model        string
	Format       string
}

// NewRequest builds the request for text using the voice, instructions, model
// and format from s. Text is passed through unchanged, even when empty.
func NewRequest(text string, s *config.Settings) Request {
	return Request{
		Text:         text,
		Voice:        s.Voice,
		Instructions: s.Instructions,
		Model:        s.Model,
		Format:       s.Format,
	}
}

// Key returns the cache key for r.
func (r Request) Key() string {
	return cache.Key(r.Text, r.Voice, r.Instructions)
}

// Synthesizer is the remote text-to-speech capability.
type Synthesizer interface {
	// Synthesize starts synthesis of req and returns the encoded audio as a
	// stream. The caller must read the stream to EOF and close it. Errors,
	// including those surfaced while reading, are synthesis-stage ttypes.Errors.
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Store is the cache the Fetcher reads from and writes to.
type Store interface {
	Exists(key string) bool
	Path(key string) string
	Write(key string, r io.Reader) (string, error)
}
