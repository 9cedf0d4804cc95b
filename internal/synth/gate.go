package synth

import (
	"sync"
	"sync/atomic"
)

// Gate is a one-way readiness flag for a backend that initializes
// asynchronously. Requests arriving before Open are dropped, not queued.
type Gate struct {
	ready atomic.Bool
	done  chan struct{}
	once  sync.Once
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// OpenGate returns a gate that is already open.
func OpenGate() *Gate {
	g := NewGate()
	g.Open()
	return g
}

func (g *Gate) Open() {
	g.once.Do(func() {
		g.ready.Store(true)
		close(g.done)
	})
}

func (g *Gate) Ready() bool { return g.ready.Load() }

// Done is closed once the gate opens.
func (g *Gate) Done() <-chan struct{} { return g.done }
