package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/memmesh/core"
)

type recordingSub struct {
	id       string
	mu       sync.Mutex
	received []Knowledge
	fail     bool
}

func (r *recordingSub) ID() string { return r.id }

func (r *recordingSub) Handle(k Knowledge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, k)
	if r.fail {
		return fmt.Errorf("handler failure")
	}
	return nil
}

func (r *recordingSub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

var _ Subscriber = (*recordingSub)(nil)
var _ Subscriber = HandlerFunc{}

func TestBus_PublishWithZeroSubscribers(t *testing.T) {
	b := New(nil)
	// must return normally; nothing to assert beyond not panicking
	b.Publish("empty-topic", Knowledge{})
	b.PublishResult(core.ConsolidationResult{CycleAt: time.Now()})
}

func TestBus_DeliveryInSubscriptionOrder(t *testing.T) {
	b := New(nil)
	var order []string
	var mu sync.Mutex
	for _, id := range []string{"first", "second", "third"} {
		id := id
		b.Subscribe("t", HandlerFunc{SubscriberID: id, Fn: func(Knowledge) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}})
	}

	b.Publish("t", Knowledge{})
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestBus_SubscribeIdempotent(t *testing.T) {
	b := New(nil)
	sub := &recordingSub{id: "dup"}
	b.Subscribe("t", sub)
	b.Subscribe("t", sub)
	b.Publish("t", Knowledge{})
	if sub.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", sub.count())
	}
}

func TestBus_HandlerErrorIsolated(t *testing.T) {
	b := New(nil)
	failing := &recordingSub{id: "failing", fail: true}
	healthy := &recordingSub{id: "healthy"}
	b.Subscribe("t", failing)
	b.Subscribe("t", healthy)

	b.Publish("t", Knowledge{})
	if failing.count() != 1 || healthy.count() != 1 {
		t.Fatalf("error must not block fan-out: failing=%d healthy=%d", failing.count(), healthy.count())
	}
}

func TestBus_LateSubscriberMissesEarlierPublish(t *testing.T) {
	b := New(nil)
	b.Publish("t", Knowledge{})
	late := &recordingSub{id: "late"}
	b.Subscribe("t", late)
	if late.count() != 0 {
		t.Fatal("late subscriber must not see earlier publishes")
	}
	b.Publish("t", Knowledge{})
	if late.count() != 1 {
		t.Fatalf("expected one delivery after subscribing, got %d", late.count())
	}
}

func TestBus_PublishItemEnrichment(t *testing.T) {
	b := New(nil)
	sub := &recordingSub{id: "enrich"}
	b.Subscribe(TopicPromotions, sub)

	item := core.MemoryItem{
		ID:          "item-1",
		Content:     "promoted",
		Connections: map[string]struct{}{"item-2": {}},
		Tier:        core.TierLTM,
	}
	before := time.Now().UTC()
	b.PublishItem(TopicPromotions, item, 0.83)

	if sub.count() != 1 {
		t.Fatalf("expected one delivery, got %d", sub.count())
	}
	got := sub.received[0]
	if got.Topic != TopicPromotions || got.Confidence != 0.83 {
		t.Fatalf("enrichment wrong: %+v", got)
	}
	if got.Item == nil || got.Item.ID != "item-1" {
		t.Fatalf("item missing from delivery: %+v", got)
	}
	if len(got.Relationships) != 1 || got.Relationships[0] != "item-2" {
		t.Fatalf("relationships not derived from connections: %v", got.Relationships)
	}
	if got.PublishedAt.Before(before) {
		t.Fatalf("published_at not stamped: %v", got.PublishedAt)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	sub := &recordingSub{id: "gone"}
	b.Subscribe("t", sub)
	b.Unsubscribe("t", "gone")
	b.Publish("t", Knowledge{})
	if sub.count() != 0 {
		t.Fatalf("unsubscribed handler received delivery")
	}
}

func TestBus_TableRoundTrip(t *testing.T) {
	b := New(nil)
	sub := &recordingSub{id: "keeper"}
	b.Subscribe("a", sub)
	b.Subscribe("b", sub)
	table := b.Table()

	// mutating the export must not touch the bus
	table["a"] = append(table["a"], "intruder")
	if got := b.Table(); len(got["a"]) != 1 {
		t.Fatalf("table export not isolated: %v", got)
	}

	restored := New(nil)
	restored.Register(sub)
	restored.RestoreTable(b.Table())
	restored.Publish("a", Knowledge{})
	restored.Publish("b", Knowledge{})
	if sub.count() != 2 {
		t.Fatalf("restored table did not rebind subscriber, got %d deliveries", sub.count())
	}
}

func TestBus_RestoredUnknownIDSkippedUntilRegistered(t *testing.T) {
	b := New(nil)
	b.RestoreTable(map[string][]string{"t": {"ghost"}})
	b.Publish("t", Knowledge{}) // ghost unresolved, must not panic

	ghost := &recordingSub{id: "ghost"}
	b.Register(ghost)
	b.Publish("t", Knowledge{})
	if ghost.count() != 1 {
		t.Fatalf("registered id should reactivate restored subscription, got %d", ghost.count())
	}
}
