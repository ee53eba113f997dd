// Package notify declares the core's two external collaborators as pure
// interfaces: the Notification Sink the engine publishes opportunities to,
// and the Subscription Registry the sink consults. The only implementation
// in this module is LogSink, a Sink that logs alerts; the Subscription
// Registry has none. The chat bot, its persistence, and its delivery
// channels are out of scope; the core only ever depends on these
// contracts, never on a chat-layer concrete type.
package notify

import (
	"context"

	"github.com/svyatogor/spreadup/internal/model"
)

// Alert wraps one opportunity published by the engine's scan loop.
type Alert struct {
	Opportunity model.SpreadOpportunity
}

// Sink is the downstream the engine publishes detected opportunities to.
// Implementations are responsible for consulting the Subscription Registry
// per subscriber, evaluating that subscriber's filters, rate-limiting their
// own delivery independently of the core's cooldown table, and reporting
// permanent delivery failures back through the registry. Delivery is
// best-effort: the core does not guarantee an alert reaches any subscriber.
type Sink interface {
	Publish(ctx context.Context, alert Alert) error
}

// SubscriptionRegistry is the core's read-only view of chat subscribers.
// Remove is invoked by a Sink implementation when a downstream channel
// reports a permanent block; the core itself never calls it.
type SubscriptionRegistry interface {
	ListSubscribers(ctx context.Context) ([]int64, error)
	GetFilters(ctx context.Context, userID int64) (model.UserFilters, error)
	Remove(ctx context.Context, userID int64) error
}
