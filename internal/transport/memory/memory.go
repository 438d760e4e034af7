// Package memory provides an in-process transport.Publisher used by tests
// and by the --fake CLI mode when no real PVAccess server is wanted.
package memory

import (
	"context"
	"sync"

	"github.com/epicsorbit/orbitagg/internal/transport"
)

// Publisher records every published value in order, safe for concurrent
// Publish calls and concurrent reads via Latest/All.
type Publisher struct {
	mu     sync.Mutex
	values []transport.StructuredValue
}

// New constructs an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish implements transport.Publisher.
func (p *Publisher) Publish(ctx context.Context, name string, value transport.StructuredValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, value)
	return nil
}

// Latest returns the most recently published value and whether any value
// has been published yet.
func (p *Publisher) Latest() (transport.StructuredValue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.values) == 0 {
		return transport.StructuredValue{}, false
	}
	return p.values[len(p.values)-1], true
}

// All returns a copy of every value published so far, oldest first.
func (p *Publisher) All() []transport.StructuredValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.StructuredValue, len(p.values))
	copy(out, p.values)
	return out
}

// Count returns the number of values published so far.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}
