package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "arena:events"

// RedisBus shares events between instances over a single redis pub/sub
// channel. Redis keeps publish order per connection; consumers use the
// room seq_id when they need commit order across instances.
type RedisBus struct {
	rdb       *redis.Client
	channel   string
	log       *log.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisBus(rdb *redis.Client, channel string, logger *log.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}

	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		log:     logger,
		ready:   make(chan struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}

	return nil
}

func (b *RedisBus) Run(ctx context.Context, handle Handler) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed so nothing published
	// after Ready is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.log.Printf("bus: subscribed to %q", b.channel)

	msgs := pubsub.Channel()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return ErrClosed
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Printf("bus: dropping malformed envelope: %v", err)
				continue
			}
			handle(env)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}
