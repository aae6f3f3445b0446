package orientation

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
)

// Latest holds the most recent angles. Readers that fall behind skip the
// intermediate values.
type Latest struct {
	mu      sync.Mutex
	angles  []float64
	version uint64
	changed chan struct{}
}

func NewLatest() *Latest {
	return &Latest{changed: make(chan struct{})}
}

// Set replaces the held angles and wakes every waiting reader.
func (l *Latest) Set(angles []float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.angles = slices.Clone(angles)
	l.version++
	close(l.changed)
	l.changed = make(chan struct{})
}

// Get returns the held angles and their version. Version 0 means nothing was
// set yet.
func (l *Latest) Get() ([]float64, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.angles), l.version
}

// Next blocks until angles newer than version are held, or ctx ends.
func (l *Latest) Next(ctx context.Context, version uint64) ([]float64, uint64, error) {
	for {
		l.mu.Lock()
		if l.version > version {
			angles, current := slices.Clone(l.angles), l.version
			l.mu.Unlock()
			return angles, current, nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, version, ctx.Err()
		case <-changed:
		}
	}
}
