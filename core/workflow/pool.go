package workflow

import (
	"context"
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("run pool is closed")

// Pool bounds how many executions run at once across all workflows.
type Pool struct {
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPool returns a pool with size slots. size <= 0 means unbounded.
func NewPool(size int) *Pool {
	if size <= 0 {
		return &Pool{}
	}
	p := &Pool{slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()
	if p.slots == nil {
		return ctx.Err()
	}
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (p *Pool) Release() {
	if p.slots == nil {
		return
	}
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Size is the slot count, 0 when unbounded.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// InUse reports how many slots are held.
func (p *Pool) InUse() int {
	return cap(p.slots) - len(p.slots)
}

// Close rejects further Acquire calls. Held slots can still be released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
