// Package broadcast fans world updates out to spectators over an in-process
// watermill bus.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const metaKind = "kind"

// Topic returns the bus topic carrying updates for shard.
func Topic(shard string) string {
	return "world." + shard
}

// Bus publishes Updates to any number of subscribers, in order.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-memory bus.
func NewBus() *Bus {
	logger := watermill.NewStdLogger(false, false)
	return &Bus{pubsub: gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)}
}

// Publish sends u on topic. Returns once every subscriber has taken it.
func (b *Bus) Publish(topic string, u Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode %s update: %w", u.Kind, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set(metaKind, string(u.Kind))
	return b.pubsub.Publish(topic, msg)
}

// Subscribe streams decoded updates on topic until ctx is done. A consumer
// that falls more than buffer updates behind misses updates; Seq gaps show
// where.
func (b *Bus) Subscribe(ctx context.Context, topic string, buffer int) (<-chan Update, error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan Update, buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var u Update
			err := json.Unmarshal(msg.Payload, &u)
			msg.Ack()
			if err != nil {
				slog.Error("dropping undecodable update", "topic", topic, "msg_id", msg.UUID, "error", err)
				continue
			}
			select {
			case out <- u:
			default:
				slog.Debug("subscriber lagging, update dropped", "topic", topic, "seq", u.Seq)
			}
		}
	}()
	return out, nil
}

// Close stops the bus and ends every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
