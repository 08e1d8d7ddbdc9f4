package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel carrying change notices.
const DefaultChannel = "arm:visits:changed"

// Notifier is anything that can be told the record set changed.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Notifiers fans one notification out to several targets.
type Notifiers []Notifier

// Notify calls every target and joins their errors.
func (ns Notifiers) Notify(ctx context.Context) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisNotifier shares change notices between server instances that write
// to the same database.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier creates a notifier on channel (DefaultChannel if empty).
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// Notify publishes a change notice.
func (r *RedisNotifier) Notify(ctx context.Context) error {
	if err := r.client.Publish(ctx, r.channel, "changed").Err(); err != nil {
		return fmt.Errorf("publishing change notice: %w", err)
	}
	return nil
}

// Listen forwards every change notice on the channel to target until ctx
// ends. Dropped connections are re-established by the redis client.
func (r *RedisNotifier) Listen(ctx context.Context, target Notifier) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.logger.Info("listening for change notices", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.logger.Debug("change notice received", zap.String("payload", msg.Payload))
			if err := target.Notify(ctx); err != nil {
				r.logger.Warn("forwarding change notice", zap.Error(err))
			}
		}
	}
}

// Ping checks the connection.
func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
