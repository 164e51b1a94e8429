package broker

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/liftplane/liftplane/core"
)

// Message is one pub/sub delivery
type Message struct {
	Channel string
	Payload string
}

// PubSub provides ephemeral fire-and-forget topics. Messages reach only
// currently-subscribed listeners; there is no persistence and no delivery
// guarantee.
type PubSub struct {
	rdb    *redis.Client
	logger core.Logger
}

// NewPubSub creates a pub/sub adapter on an existing Redis connection
func NewPubSub(rdb *redis.Client, logger core.Logger) *PubSub {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &PubSub{rdb: rdb, logger: logger}
}

// Publish delivers payload to the channel's current subscribers.
// Failures propagate immediately.
func (p *PubSub) Publish(ctx context.Context, channel, payload string) error {
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %v: %w", channel, err, core.ErrBrokerFailure)
	}
	return nil
}

// Subscription is an active pub/sub listener. Messages arrive on Channel
// until Close is called or the subscribe context is cancelled, after which
// the channel is closed.
type Subscription struct {
	ps     *redis.PubSub
	msgs   chan Message
	cancel context.CancelFunc
}

// Subscribe begins receiving messages on channel. The backend's
// subscription-confirmation frame is consumed here, so the returned channel
// only ever carries real payloads.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	ps := p.rdb.Subscribe(subCtx, channel)

	// Wait for the subscription confirmation before handing out the channel
	if _, err := ps.Receive(subCtx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %v: %w", channel, err, core.ErrBrokerFailure)
	}

	sub := &Subscription{
		ps:     ps,
		msgs:   make(chan Message, 16),
		cancel: cancel,
	}

	go func() {
		defer func() {
			_ = ps.Close()
			close(sub.msgs)
		}()

		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.msgs <- Message{Channel: msg.Channel, Payload: msg.Payload}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	p.logger.Debug("Subscribed to channel", map[string]interface{}{
		"channel": channel,
	})
	return sub, nil
}

// Channel returns the stream of received messages
func (s *Subscription) Channel() <-chan Message {
	return s.msgs
}

// Close unsubscribes and stops the receive loop
func (s *Subscription) Close() error {
	s.cancel()
	return nil
}
