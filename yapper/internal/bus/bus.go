// Package bus fans out "something changed" signals from the cache and view
// models to any number of watchers.
package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const metaKeyTopic = "topic"

// Bus is an in-memory topic fan-out built on watermill's GoChannel.
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
}

// New creates a bus.
func New() *Bus {
	ch := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 16},
		watermill.NopLogger{},
	)
	return &Bus{pub: ch, sub: ch}
}

// Notify signals watchers of topic. It never blocks on slow watchers.
func (b *Bus) Notify(topic string) {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(metaKeyTopic, topic)
	_ = b.pub.Publish(topic, msg)
}

// Subscribe returns a channel that receives a value after one or more
// Notify calls on topic. Bursts collapse into a single pending signal. The
// channel is closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

// Close stops every subscription.
func (b *Bus) Close() error {
	return b.sub.Close()
}
