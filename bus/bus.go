package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/memmesh/core"
	"github.com/hupe1980/memmesh/logging"
)

// Well-known topics used by the engine's own components. Applications are
// free to publish and subscribe on any other topic string.
const (
	// TopicConsolidation carries one ConsolidationResult per completed cycle.
	TopicConsolidation = "consolidation"
	// TopicPromotions carries every memory item accepted into long-term memory.
	TopicPromotions = "promotions"
	// TopicFeedback carries agent feedback consumed by the feedback controller.
	TopicFeedback = "feedback"
)

// Knowledge is the enriched payload delivered to subscribers. Exactly one of
// Item or Result is set depending on the topic; the enrichment fields
// (PublishedAt, Confidence, Relationships) are stamped by Publish.
type Knowledge struct {
	Topic         string                    `json:"topic"`
	PublishedAt   time.Time                 `json:"published_at"`
	Confidence    float64                   `json:"confidence"`
	Relationships []string                  `json:"relationships,omitempty"`
	Item          *core.MemoryItem          `json:"item,omitempty"`
	Result        *core.ConsolidationResult `json:"result,omitempty"`
	Feedback      map[string]string         `json:"feedback,omitempty"`
}

// Subscriber handles knowledge deliveries. Implementations are identified by
// a stable id so subscriptions can be made idempotent and serialized into
// snapshots.
type Subscriber interface {
	// ID returns the stable identity of this subscriber.
	ID() string
	// Handle processes one delivery. Errors are isolated and logged by the
	// bus; they never abort delivery to other subscribers.
	Handle(k Knowledge) error
}

// HandlerFunc adapts an id and a function to the Subscriber interface.
type HandlerFunc struct {
	SubscriberID string
	Fn           func(k Knowledge) error
}

// ID returns the subscriber identity.
func (h HandlerFunc) ID() string { return h.SubscriberID }

// Handle invokes the wrapped function.
func (h HandlerFunc) Handle(k Knowledge) error { return h.Fn(k) }

// SubscriberError wraps a handler failure with the offending subscriber and
// topic. It is logged by the bus, never returned from Publish.
type SubscriberError struct {
	Topic        string
	SubscriberID string
	Err          error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %q on topic %q: %v", e.SubscriberID, e.Topic, e.Err)
}

// Unwrap exposes the handler's underlying error.
func (e *SubscriberError) Unwrap() error { return e.Err }

// Bus is a process-local publish/subscribe fan-out keyed by topic string.
// Safe for concurrent use; delivery happens synchronously in the publisher's
// goroutine.
type Bus struct {
	mu sync.RWMutex
	// registered subscribers by id, so a restored subscription table can be
	// rebound to live handlers
	registry map[string]Subscriber
	// topic -> subscriber ids in subscription order
	topics map[string][]string
	logger logging.Logger
}

// New constructs an empty bus.
func New(logger logging.Logger) *Bus {
	return &Bus{
		registry: make(map[string]Subscriber),
		topics:   make(map[string][]string),
		logger:   logging.OrNoOp(logger),
	}
}

// Subscribe registers the subscriber for the topic. Idempotent per
// (topic, subscriber id): repeated calls neither duplicate deliveries nor
// change the original subscription order. Re-subscribing an id with a new
// handler replaces the handler everywhere that id is subscribed.
func (b *Bus) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.registry[sub.ID()] = sub
	for _, id := range b.topics[topic] {
		if id == sub.ID() {
			return
		}
	}
	b.topics[topic] = append(b.topics[topic], sub.ID())
}

// Unsubscribe removes the subscriber id from the topic. Unknown pairs are a
// no-op.
func (b *Bus) Unsubscribe(topic, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.topics[topic]
	for i, id := range ids {
		if id == subscriberID {
			b.topics[topic] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

// Publish stamps PublishedAt and delivers k to every current subscriber of
// the topic in subscription order. Handler errors are logged and isolated;
// Publish itself only observes the subscriber set, so it always succeeds;
// including for topics with no listeners.
func (b *Bus) Publish(topic string, k Knowledge) {
	k.Topic = topic
	k.PublishedAt = time.Now().UTC()

	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.topics[topic]))
	for _, id := range b.topics[topic] {
		if sub, ok := b.registry[id]; ok {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Handle(k); err != nil {
			serr := &SubscriberError{Topic: topic, SubscriberID: sub.ID(), Err: err}
			b.logger.Warn("subscriber delivery failed", "topic", topic, "subscriber", sub.ID(), "error", serr)
		}
	}
}

// PublishItem enriches a promoted memory item with its fitness score at
// publish time (confidence) and its current connections (relationships), then
// publishes it on the topic.
func (b *Bus) PublishItem(topic string, item core.MemoryItem, confidence float64) {
	b.Publish(topic, Knowledge{
		Confidence:    confidence,
		Relationships: item.ConnectionIDs(),
		Item:          &item,
	})
}

// PublishResult publishes one consolidation cycle outcome on TopicConsolidation.
func (b *Bus) PublishResult(res core.ConsolidationResult) {
	b.Publish(TopicConsolidation, Knowledge{Result: &res})
}

// Table exports the topic to subscriber-id mapping for snapshotting. The
// returned map is a deep copy.
func (b *Bus) Table() map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]string, len(b.topics))
	for topic, ids := range b.topics {
		out[topic] = append([]string(nil), ids...)
	}
	return out
}

// RestoreTable replaces the subscription table with the given one. Handler
// identities survive a restore only if a subscriber with the same id is still
// registered; unknown ids are kept in the table (re-registering the id later
// reactivates the subscription) but skipped at delivery time.
func (b *Bus) RestoreTable(table map[string][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string][]string, len(table))
	for topic, ids := range table {
		next[topic] = append([]string(nil), ids...)
	}
	b.topics = next
}

// Register makes a subscriber resolvable by id without subscribing it to any
// topic. Used when restoring a snapshot whose table references the id.
func (b *Bus) Register(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry[sub.ID()] = sub
}
