package events

import (
	"encoding/json"
	"sync"
	"time"

	"stoyanka/internal/metrics"
	"stoyanka/internal/models"
)

const (
	EventInventoryChanged   = "inventory_changed"
	EventReservationChanged = "reservation_changed"
)

// InventoryChangedPayload describes the slot count snapshot for a space.
type InventoryChangedPayload struct {
	SpaceID        string `json:"space_id"`
	AvailableSpots int64  `json:"available_spots"`
	TotalSpots     int64  `json:"total_spots"`
	IsOnline       bool   `json:"is_online"`
	Version        int64  `json:"version"`
}

// ReservationChangedPayload carries the full reservation snapshot so that
// consumers can merge it by version without a follow-up fetch.
type ReservationChangedPayload struct {
	Reservation models.Reservation `json:"reservation"`
}

// Event represents a lightweight domain event scoped to one entity topic.
type Event struct {
	Topic     string
	Type      string
	Payload   []byte
	Version   int64
	CreatedAt time.Time
}

// SpaceTopic returns the subscription topic for a parking space.
func SpaceTopic(spaceID string) string {
	return "space:" + spaceID
}

// ReservationTopic returns the subscription topic for a reservation.
func ReservationTopic(reservationID string) string {
	return "reservation:" + reservationID
}

// Subscription is a cancellable stream of events for one topic.
// Cancel is idempotent and safe to call from any goroutine.
type Subscription struct {
	topic string
	C     chan Event
	bus   *Bus
	once  sync.Once
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus provides in-process pub/sub with per-topic fan-out. Delivery is
// best-effort: a subscriber that cannot keep up loses events, which is
// acceptable because every payload carries the entity version and the
// poll path re-fetches the authoritative record.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a buffered subscription for a topic.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = models.EventBufferSize
	}
	sub := &Subscription{topic: topic, C: make(chan Event, buffer), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub
}

// remove detaches and closes the subscription. Closing under the write
// lock keeps it ordered against in-flight Publish sends, which hold the
// read lock.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.topic)
		}
	}
	close(sub.C)
}

// SubscriberCount returns the number of active subscriptions for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish delivers the event to current topic subscribers without blocking.
func (b *Bus) Publish(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.Topic] {
		select {
		case sub.C <- event:
		default:
			// Slow consumer; it will catch up from its poll cycle.
		}
	}
}

// PublishReservationChanged broadcasts a reservation snapshot on its topic.
func (b *Bus) PublishReservationChanged(r *models.Reservation) {
	if b == nil || r == nil {
		return
	}
	raw, err := json.Marshal(ReservationChangedPayload{Reservation: *r})
	if err != nil {
		return
	}
	metrics.IncEvent(EventReservationChanged)
	b.Publish(Event{
		Topic:   ReservationTopic(r.ID),
		Type:    EventReservationChanged,
		Payload: raw,
		Version: r.Version,
	})
}

// PublishInventoryChanged broadcasts the slot count snapshot for a space.
func (b *Bus) PublishInventoryChanged(s *models.ParkingSpace) {
	if b == nil || s == nil {
		return
	}
	raw, err := json.Marshal(InventoryChangedPayload{
		SpaceID:        s.ID,
		AvailableSpots: s.AvailableSpots,
		TotalSpots:     s.TotalSpots,
		IsOnline:       s.IsOnline,
		Version:        s.Version,
	})
	if err != nil {
		return
	}
	metrics.IncEvent(EventInventoryChanged)
	b.Publish(Event{
		Topic:   SpaceTopic(s.ID),
		Type:    EventInventoryChanged,
		Payload: raw,
		Version: s.Version,
	})
}
