package overrides

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event signals that the override set of a tenant changed. It carries no
// per-key delta: the only correct reaction to an ambiguous event is a full
// re-pull.
type Event struct {
	TenantID uuid.UUID
	At       time.Time
}

// Subscription is a live attachment to a tenant's change feed. Events closes
// when the subscription is released or the underlying channel is lost;
// consumers must then resubscribe and force a refresh to cover the gap.
type Subscription struct {
	Events    <-chan Event
	closeOnce sync.Once
	closeFn   func()
}

// NewSubscription wraps an event channel and a release function. Transport
// adapters use it to hand out feed attachments.
func NewSubscription(events <-chan Event, closeFn func()) *Subscription {
	return &Subscription{Events: events, closeFn: closeFn}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.closeFn)
}

// ChangeFeed publishes and delivers tenant-scoped change signals. The
// concrete transport is an adapter; consumers stay transport-agnostic.
type ChangeFeed interface {
	Subscribe(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	Publish(ctx context.Context, tenantID uuid.UUID) error
}

// RedisFeed implements ChangeFeed over Redis pub/sub, one channel per tenant.
type RedisFeed struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisFeed constructs a RedisFeed.
func NewRedisFeed(client *redis.Client, logger *slog.Logger) *RedisFeed {
	return &RedisFeed{client: client, logger: logger}
}

func feedChannel(tenantID uuid.UUID) string {
	return "authz:overrides:" + tenantID.String()
}

// Publish emits a bare changed signal for the tenant.
func (f *RedisFeed) Publish(ctx context.Context, tenantID uuid.UUID) error {
	return f.client.Publish(ctx, feedChannel(tenantID), time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// Subscribe attaches to the tenant's channel. The returned subscription's
// Events channel closes if the pub/sub connection is torn down.
func (f *RedisFeed) Subscribe(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, feedChannel(tenantID))
	// Confirm the SUBSCRIBE before the relay starts.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	events := make(chan Event, 1)
	done := make(chan struct{})

	go func() {
		defer close(events)
		src := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-src:
				if !ok {
					if f.logger != nil {
						f.logger.Warn("override feed channel lost",
							slog.String("tenant_id", tenantID.String()))
					}
					return
				}
				ev := Event{TenantID: tenantID, At: time.Now().UTC()}
				if at, err := time.Parse(time.RFC3339Nano, msg.Payload); err == nil {
					ev.At = at
				}
				select {
				case events <- ev:
				default:
					// A pending event already guarantees a re-pull;
					// further signals add nothing.
				}
			}
		}
	}()

	return NewSubscription(events, func() {
		close(done)
		_ = pubsub.Close()
	}), nil
}
