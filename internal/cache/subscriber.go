package cache

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/gunes1hakan/feature-flags/internal/observability"
)

// Subscriber listens on the invalidation channel and drops L1 entries when
// another instance (usually the admin plane) changes a project. It is the
// glue that keeps per-instance memory caches coherent without polling.
type Subscriber struct {
	client  *redis.Client
	channel string
	source  *SnapshotSource
	logger  *slog.Logger
}

// NewSubscriber creates the Pub/Sub listener.
func NewSubscriber(client *redis.Client, channel string, source *SnapshotSource, logger *slog.Logger) *Subscriber {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if source == nil {
		panic("cache: snapshot source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, channel: channel, source: source, logger: logger}
}

// Run subscribes and processes invalidation events. It blocks until the
// context is cancelled. A malformed event degrades to a warning; the loop
// never stops over one bad message.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Fail fast if the subscription itself cannot be established.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	s.logger.Info("cache invalidation subscriber started", slog.String("channel", s.channel))

	events := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache invalidation subscriber stopping...")
			return nil
		case msg, ok := <-events:
			if !ok {
				return nil
			}

			projectID, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				s.logger.Warn("ignoring malformed invalidation event",
					slog.String("payload", msg.Payload),
					slog.String("error", err.Error()),
				)
				continue
			}

			s.source.Invalidate(projectID)
			observability.CacheInvalidations.Inc()
			s.logger.Debug("invalidated cached snapshot", slog.Int64("project_id", projectID))
		}
	}
}
