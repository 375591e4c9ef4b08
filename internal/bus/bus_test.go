package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, b Bus, n int) (<-chan []Envelope, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []Envelope, 1)
	received := make(chan Envelope, n)

	go b.Run(ctx, func(env Envelope) { received <- env })
	go func() {
		var envs []Envelope
		for len(envs) < n {
			select {
			case env := <-received:
				envs = append(envs, env)
			case <-time.After(2 * time.Second):
				out <- envs
				return
			}
		}
		out <- envs
	}()

	select {
	case <-b.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bus never became ready")
	}

	return out, cancel
}

func TestLocalBusOrder(t *testing.T) {
	b := NewLocalBus(16)
	out, cancel := collect(t, b, 3)
	defer cancel()

	ctx := testutil.TestContext(t)
	for _, id := range []string{"a", "b", ""} {
		require.NoError(t, b.Publish(ctx, Envelope{RoomId: id, Event: json.RawMessage(`{}`)}))
	}

	envs := <-out
	require.Len(t, envs, 3)
	assert.Equal(t, "a", envs[0].RoomId)
	assert.Equal(t, "b", envs[1].RoomId)
	assert.True(t, envs[2].Global())
}

func TestLocalBusPublishHonoursContext(t *testing.T) {
	b := NewLocalBus(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Publish(ctx, Envelope{RoomId: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisBusFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := testutil.TestLogger(t)
	first := NewRedisBus(rdb, "", logger)
	second := NewRedisBus(rdb, "", logger)

	firstOut, cancelFirst := collect(t, first, 2)
	defer cancelFirst()
	secondOut, cancelSecond := collect(t, second, 2)
	defer cancelSecond()

	ctx := testutil.TestContext(t)
	require.NoError(t, first.Publish(ctx, Envelope{RoomId: "room-1", Event: json.RawMessage(`{"name":"user-joined"}`)}))
	require.NoError(t, second.Publish(ctx, Envelope{Event: json.RawMessage(`{"name":"room-created"}`)}))

	for _, out := range []<-chan []Envelope{firstOut, secondOut} {
		envs := <-out
		require.Len(t, envs, 2, "expected every instance to see every event")
		assert.Equal(t, "room-1", envs[0].RoomId)
		assert.JSONEq(t, `{"name":"user-joined"}`, string(envs[0].Event))
		assert.True(t, envs[1].Global())
	}
}

func TestRedisBusPublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	b := NewRedisBus(rdb, "", testutil.TestLogger(t))
	err := b.Publish(testutil.TestContext(t), Envelope{RoomId: "room-1"})
	assert.Error(t, err)
}
