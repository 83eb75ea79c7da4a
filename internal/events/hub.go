package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"wagateway/internal/constants"
	"wagateway/internal/metrics"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	TypeInboundMessage  Type = "message.inbound"
	TypeOutboundMessage Type = "message.outbound"
	TypeDeliveryStatus  Type = "message.status"
	TypeTemplateStatus  Type = "template.status"
	TypeTokenRefreshed  Type = "token.refreshed"
)

// Event is one entry of the live feed.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher is implemented by Hub. Services depend on this so they can run
// without a live feed.
type Publisher interface {
	Publish(evt Event)
}

// Hub fans gateway events out to websocket subscribers. Slow subscribers
// lose events rather than blocking publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	logger      *logrus.Logger
	metrics     *metrics.Registry
	buffer      int
	now         func() time.Time
}

func NewHub(logger *logrus.Logger, registry *metrics.Registry) *Hub {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		logger:      logger,
		metrics:     registry,
		buffer:      constants.EventSubscriberBuffer,
		now:         time.Now,
	}
}

// Publish stamps evt with an id and timestamp when missing and delivers it to
// every subscriber without blocking.
func (h *Hub) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.WithFields(logrus.Fields{
				"subscriber": id,
				"event_id":   evt.ID,
				"event_type": evt.Type,
			}).Debug("Dropped event for slow subscriber")
		}
	}
}

// Subscribe registers a subscriber that is removed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, string) {
	id := uuid.New().String()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	count := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.SetEventSubscribers(count)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(id)
	}()
	return ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
		close(ch)
	}
	count := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		h.metrics.SetEventSubscribers(count)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	h.metrics.SetEventSubscribers(0)
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// text frames until the client goes away or the hub closes the subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server's per-request write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept event stream connection")
		return
	}
	defer conn.CloseNow()

	// The feed is write-only; CloseRead handles control frames and cancels
	// ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())
	events, id := h.Subscribe(ctx)
	h.logger.WithField("subscriber", id).Info("Event stream subscriber connected")

	writeTimeout := time.Duration(constants.EventWriteTimeoutSec) * time.Second
	for {
		select {
		case <-ctx.Done():
			h.logger.WithField("subscriber", id).Info("Event stream subscriber disconnected")
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "event hub closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancel()
			if err != nil {
				h.logger.WithError(err).WithField("subscriber", id).Debug("Failed to write event")
				return
			}
		}
	}
}
