package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/speaky-cli/speaky/internal/cache"
)

// Cache inspection behind --cache-info and --cache-path. Neither needs the
// API key.

func (a *app) openCache(o options) (*cache.Store, error) {
	s, err := a.settings(o, false)
	if err != nil {
		return nil, err
	}
	return cache.Open(s.CacheDir)
}

func (a *app) cacheStats(o options) error {
	store, err := a.openCache(o)
	if err != nil {
		return err
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.stdout, "Directory: %s\nEntries:   %s\nSize:      %s\n",
		store.Dir(),
		humanize.Comma(int64(stats.Entries)),
		humanize.Bytes(uint64(stats.Bytes))) //nolint:gosec
	return err
}

func (a *app) cachePath(o options) error {
	s, err := a.settings(o, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, s.CacheDir)
	return err
}
