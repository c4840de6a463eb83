package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the delivery pipeline
const (
	TypeDelivered      = "delivered"
	TypeChannelFailed  = "channel_failed"
	TypeQueued         = "queued"
	TypeRetryCompleted = "retry_completed"
)

// DeliveryEvent is one entry of the live operator feed. It never carries
// form field values.
type DeliveryEvent struct {
	Type      string    `json:"type"`
	FormType  string    `json:"formType,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Via       string    `json:"via,omitempty"`
	MessageID int64     `json:"messageId,omitempty"`
	PendingID string    `json:"pendingId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Succeeded int       `json:"succeeded,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher is what the dispatcher needs from the hub
type Publisher interface {
	Publish(evt DeliveryEvent)
}

const subscriberBuffer = 32

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than block delivery.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan DeliveryEvent]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan DeliveryEvent]struct{})}
}

// Subscribe returns a channel of events and a function that releases it.
func (h *Hub) Subscribe() (<-chan DeliveryEvent, func()) {
	ch := make(chan DeliveryEvent, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(evt DeliveryEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow subscribers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
