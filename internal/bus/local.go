package bus

import (
	"context"
	"sync"
)

// LocalBus loops envelopes back to the publishing process. It serves single
// instance deployments and tests.
type LocalBus struct {
	queue     chan Envelope
	ready     chan struct{}
	readyOnce sync.Once
}

func NewLocalBus(size int) *LocalBus {
	return &LocalBus{
		queue: make(chan Envelope, size),
		ready: make(chan struct{}),
	}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) Run(ctx context.Context, handle Handler) error {
	b.readyOnce.Do(func() { close(b.ready) })

	for {
		select {
		case env := <-b.queue:
			handle(env)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *LocalBus) Ready() <-chan struct{} {
	return b.ready
}
