package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/strata/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Broker)(nil)
	_ ext.RecordsCreated      = (*Broker)(nil)
	_ ext.RecordsUpdated      = (*Broker)(nil)
	_ ext.RecordsDeleted      = (*Broker)(nil)
	_ ext.RecordsSoftDeleted  = (*Broker)(nil)
	_ ext.RecordsRestored     = (*Broker)(nil)
	_ ext.CollectionReady     = (*Broker)(nil)
	_ ext.CollectionDestroyed = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker fans persistence events out to subscribers. Publishing never
// blocks the repository call that produced the event.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger
	now    func() time.Time

	subscribers sync.Map // subscriberID → *Subscriber

	totalDelivered atomic.Int64
	totalEvents    atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker creates a broker. A nil logger uses slog.Default().
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		now:        time.Now,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a subscriber on topics. An existing subscriber with
// the same id is replaced and closed.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	if old, loaded := b.subscribers.Swap(subscriberID, sub); loaded {
		b.topics.UnsubscribeAll(subscriberID)
		old.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to more topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	sub, ok := b.Subscriber(subscriberID)
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// Subscriber returns a subscriber by id.
func (b *Broker) Subscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Close closes every subscriber.
func (b *Broker) Close() {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker closed")
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalEvents     int64 `json:"total_events"`
	TotalDelivered  int64 `json:"total_delivered"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalEvents:     b.totalEvents.Load(),
		TotalDelivered:  b.totalDelivered.Load(),
	}
}

func (b *Broker) publish(evt *Event) {
	b.totalEvents.Add(1)
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalDelivered.Add(int64(delivered))
}

func (b *Broker) record(typ EventType, m ext.Mutation) error {
	data, err := json.Marshal(RecordEventData{
		Op:         m.Op,
		Collection: m.Collection,
		UserID:     m.UserID,
		IDs:        m.IDs,
		Affected:   m.Affected,
	})
	if err != nil {
		return err
	}
	b.publish(&Event{
		Type:      typ,
		Timestamp: b.now().UTC(),
		Tenant:    m.Tenant,
		Entity:    m.Entity,
		Data:      data,
	})
	return nil
}

func (b *Broker) collection(typ EventType, c ext.Collection, elapsed time.Duration) error {
	data, err := json.Marshal(CollectionEventData{
		Collection: c.Name,
		TenantID:   c.TenantID,
		ElapsedMs:  elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	b.publish(&Event{
		Type:      typ,
		Timestamp: b.now().UTC(),
		Entity:    c.Entity,
		Data:      data,
	})
	return nil
}

// ── Record hooks ────────────────────────────────────

// OnRecordsCreated implements ext.RecordsCreated.
func (b *Broker) OnRecordsCreated(_ context.Context, m ext.Mutation) error {
	return b.record(EventRecordsCreated, m)
}

// OnRecordsUpdated implements ext.RecordsUpdated.
func (b *Broker) OnRecordsUpdated(_ context.Context, m ext.Mutation) error {
	return b.record(EventRecordsUpdated, m)
}

// OnRecordsDeleted implements ext.RecordsDeleted.
func (b *Broker) OnRecordsDeleted(_ context.Context, m ext.Mutation) error {
	return b.record(EventRecordsDeleted, m)
}

// OnRecordsSoftDeleted implements ext.RecordsSoftDeleted.
func (b *Broker) OnRecordsSoftDeleted(_ context.Context, m ext.Mutation) error {
	return b.record(EventRecordsSoftDeleted, m)
}

// OnRecordsRestored implements ext.RecordsRestored.
func (b *Broker) OnRecordsRestored(_ context.Context, m ext.Mutation) error {
	return b.record(EventRecordsRestored, m)
}

// ── Collection hooks ────────────────────────────────

// OnCollectionReady implements ext.CollectionReady.
func (b *Broker) OnCollectionReady(_ context.Context, c ext.Collection, elapsed time.Duration) error {
	return b.collection(EventCollectionReady, c, elapsed)
}

// OnCollectionDestroyed implements ext.CollectionDestroyed.
func (b *Broker) OnCollectionDestroyed(_ context.Context, c ext.Collection) error {
	return b.collection(EventCollectionDestroyed, c, 0)
}
