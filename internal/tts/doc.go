// Package tts turns text into a cached audio file. The Fetcher checks the
// cache for a previous rendering of the same request and only calls the
// Synthesizer on a miss, streaming its output into the cache.
package tts
