package power

import (
	"context"
	"sync"
)

// Gate is a one-shot "link is ready" signal released by the first modem
// power-up notification. Releasing it again is harmless.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}

func (g *Gate) Released() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is released or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
