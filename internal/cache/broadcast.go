package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Redis channels carrying config invalidation notices between engine instances.
const (
	WeightChannel = "reputeer:invalidate:weights"
	PolicyChannel = "reputeer:invalidate:policies"
)

// Broadcaster relays cache invalidations over a Redis pub/sub channel so a
// config write on one engine instance drops the cached entry on all of them.
type Broadcaster struct {
	client  rueidis.Client
	channel string
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster bound to one channel.
func NewBroadcaster(client rueidis.Client, channel string, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		client:  client,
		channel: channel,
		logger:  logger.Named("cache_broadcast"),
	}
}

// Publish announces that the given community's cached config is stale.
func (b *Broadcaster) Publish(ctx context.Context, communityID uint64) error {
	cmd := b.client.B().Publish().
		Channel(b.channel).
		Message(strconv.FormatUint(communityID, 10)).
		Build()

	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	return nil
}

// Listen subscribes to the channel and calls handler for every invalidation
// until the context is canceled. It blocks, so callers run it in a goroutine.
func (b *Broadcaster) Listen(ctx context.Context, handler func(communityID uint64)) error {
	cmd := b.client.B().Subscribe().Channel(b.channel).Build()

	err := b.client.Receive(ctx, cmd, func(msg rueidis.PubSubMessage) {
		communityID, err := strconv.ParseUint(msg.Message, 10, 64)
		if err != nil {
			b.logger.Warn("Ignoring malformed invalidation message",
				zap.String("channel", msg.Channel),
				zap.String("message", msg.Message))

			return
		}

		handler(communityID)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("invalidation subscription ended: %w", err)
	}

	return nil
}
