package audio

import (
	"context"
	"sync"
)

// MockSink records played files without producing sound.
type MockSink struct {
	mu     sync.Mutex
	played []string

	// Err is returned by every Play call when set.
	Err error
}

// Play records path and returns m.Err.
func (m *MockSink) Play(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.played = append(m.played, path)
	return m.Err
}

// Played returns the paths passed to Play, in order.
func (m *MockSink) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}
