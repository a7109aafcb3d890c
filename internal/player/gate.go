package player

import (
	"context"
	"sync"
)

// gate blocks callers of Wait while paused
type gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{}
}

func newGate() *gate {
	open := make(chan struct{})
	close(open)
	return &gate{open: open}
}

func (g *gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.open = make(chan struct{})
}

// Resume wakes every waiter
func (g *gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.open)
}

func (g *gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns true once the gate is open, or false when ctx is done first
func (g *gate) Wait(ctx context.Context) bool {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()

	select {
	case <-open:
		return true
	case <-ctx.Done():
		return false
	}
}
