package tts

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// Fetcher returns cached audio for a request, synthesizing it on a miss.
type Fetcher struct {
	store  Store
	synth  Synthesizer
	logger *log.Logger

	// Collapses concurrent misses for the same key within this process.
	group singleflight.Group
}

// NewFetcher creates a Fetcher. A nil logger uses the default logger.
func NewFetcher(store Store, synth Synthesizer, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		store:  store,
		synth:  synth,
		logger: logger,
	}
}

// FetchOrGenerate returns the location of the audio for req. A cached entry is
// returned without contacting the Synthesizer. Otherwise the Synthesizer's
// stream is written to the cache and the new entry's location is returned. If
// synthesis fails, at any point in the stream, the error is returned and no
// entry is created.
func (f *Fetcher) FetchOrGenerate(ctx context.Context, req Request) (string, error) {
	key := req.Key()

	if f.store.Exists(key) {
		f.logger.Debug("Cache hit", "key", key)
		return f.store.Path(key), nil
	}

	v, err, shared := f.group.Do(key, func() (any, error) {
		// Another caller may have finished while we waited for the group.
		if f.store.Exists(key) {
			return f.store.Path(key), nil
		}
		return f.generate(ctx, key, req)
	})
	if err != nil {
		return "", err
	}
	if shared {
		f.logger.Debug("Shared in-flight synthesis", "key", key)
	}

	return v.(string), nil
}

func (f *Fetcher) generate(ctx context.Context, key string, req Request) (string, error) {
	f.logger.Debug("Cache miss, synthesizing",
		"key", key,
		"model", req.Model,
		"voice", req.Voice,
		"textLength", len(req.Text))

	start := time.Now()

	body, err := f.synth.Synthesize(ctx, req)
	if err != nil {
		return "", asSynthesisError(err)
	}
	defer body.Close() //nolint:errcheck

	counter := &countingReader{r: body}
	path, err := f.store.Write(key, counter)
	if err != nil {
		if ttypes.StageOf(err) == ttypes.StageCache {
			return "", err
		}
		return "", asSynthesisError(err)
	}

	f.logger.Debug("Synthesis cached",
		"key", key,
		"bytes", counter.n,
		"duration", time.Since(start).Round(time.Millisecond),
		"path", path)

	return path, nil
}

// asSynthesisError tags errors that did not come from a stage-aware source.
func asSynthesisError(err error) error {
	if ttypes.StageOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return ttypes.SynthesisError(ttypes.CodeInterrupted, "synthesis canceled", err)
	}
	return ttypes.SynthesisError(ttypes.CodeService, "synthesis failed", err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
