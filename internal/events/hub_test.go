package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wagateway/internal/metrics"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() (*Hub, *metrics.Registry) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	registry := metrics.NewRegistry()
	return NewHub(logger, registry), registry
}

func TestHub_PublishFillsIDAndTimestamp(t *testing.T) {
	hub, _ := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := hub.Subscribe(ctx)
	hub.Publish(Event{Type: TypeInboundMessage, Data: map[string]interface{}{"kind": "text"}})

	select {
	case evt := <-ch:
		assert.NotEmpty(t, evt.ID)
		assert.False(t, evt.Timestamp.IsZero())
		assert.Equal(t, TypeInboundMessage, evt.Type)
		assert.Equal(t, "text", evt.Data["kind"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_PublishKeepsExplicitID(t *testing.T) {
	hub, _ := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := hub.Subscribe(ctx)
	hub.Publish(Event{ID: "fixed", Type: TypeTemplateStatus})
	assert.Equal(t, "fixed", (<-ch).ID)
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub, _ := newTestHub()
	hub.buffer = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := hub.Subscribe(ctx)
	hub.Publish(Event{ID: "1"})
	hub.Publish(Event{ID: "2"})

	assert.Equal(t, "1", (<-ch).ID)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.ID)
	default:
	}
}

func TestHub_UnsubscribeOnContextCancel(t *testing.T) {
	hub, registry := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := hub.Subscribe(ctx)
	assert.Equal(t, 1, hub.SubscriberCount())
	assert.Equal(t, float64(1), registry.GaugeValue(metrics.EventSubscribers, nil))

	cancel()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, float64(0), registry.GaugeValue(metrics.EventSubscribers, nil))
}

func TestHub_UnsubscribeTwice(t *testing.T) {
	hub, _ := newTestHub()
	_, id := hub.Subscribe(context.Background())
	hub.Unsubscribe(id)
	assert.NotPanics(t, func() { hub.Unsubscribe(id) })
}

func TestHub_Close(t *testing.T) {
	hub, _ := newTestHub()
	ch, _ := hub.Subscribe(context.Background())
	hub.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount())
	assert.NotPanics(t, func() { hub.Publish(Event{Type: TypeTokenRefreshed}) })
}

func TestHub_ServeHTTPStreamsEvents(t *testing.T) {
	hub, _ := newTestHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: TypeOutboundMessage, Data: map[string]interface{}{"mode": "template"}})

	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, TypeOutboundMessage, evt.Type)
	assert.Equal(t, "template", evt.Data["mode"])
	assert.NotEmpty(t, evt.ID)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
