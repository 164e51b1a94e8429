package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftplane/liftplane/core"
)

func newTestPubSub(t *testing.T) *PubSub {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPubSub(rdb, &core.NoOpLogger{})
}

func TestPublishSubscribe(t *testing.T) {
	p := newTestPubSub(t)
	ctx := context.Background()

	sub, err := p.Subscribe(ctx, "elevator:command:1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, p.Publish(ctx, "elevator:command:1", `{"command":"go_to_floor","floor":3}`))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "elevator:command:1", msg.Channel)
		assert.Contains(t, msg.Payload, "go_to_floor")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribeIsChannelScoped(t *testing.T) {
	p := newTestPubSub(t)
	ctx := context.Background()

	sub, err := p.Subscribe(ctx, "elevator:command:1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, p.Publish(ctx, "elevator:command:2", "other"))
	require.NoError(t, p.Publish(ctx, "elevator:command:1", "mine"))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "mine", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	p := newTestPubSub(t)
	ctx := context.Background()

	sub, err := p.Subscribe(ctx, "topic")
	require.NoError(t, err)

	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Channel():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed after Close")
	}
}

func TestSubscribeContextCancel(t *testing.T) {
	p := newTestPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := p.Subscribe(ctx, "topic")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-sub.Channel():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed after context cancel")
	}
}
