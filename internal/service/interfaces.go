package service

import (
	"context"
	"time"

	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"
	"wagateway/pkg/whatsapp/types"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("wagateway/service")

// ConversationStore is the persistence contract the gateway core needs.
// RecordInbound and RecordOutbound upsert the conversation and insert the
// message in one transaction.
type ConversationStore interface {
	GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error)
	LastMessageTime(ctx context.Context, conversationID int64) (time.Time, bool, error)
	RecordInbound(ctx context.Context, rec models.InboundRecord) (*models.Conversation, error)
	RecordOutbound(ctx context.Context, rec models.OutboundRecord) (*models.Conversation, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus) (bool, error)
}

// TokenSource supplies the bearer credential for Cloud API calls.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (models.Credential, error)
	Invalidate()
}

// MessageSender posts outbound messages.
type MessageSender interface {
	SendMessage(ctx context.Context, accessToken string, msg *types.OutboundMessage) (*types.SendMessageResponse, error)
}

// ReadMarker sends read receipts.
type ReadMarker interface {
	MarkRead(ctx context.Context, accessToken, messageID string) error
}

// TextReplier sends a free-form reply inside the service window.
type TextReplier interface {
	SendText(ctx context.Context, to, body string) (*models.DispatchResult, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// runtime holds the collaborators shared by the dispatcher and the webhook
// processor.
type runtime struct {
	events  events.Publisher
	metrics *metrics.Registry
	now     func() time.Time
}

func newRuntime(opts []Option) runtime {
	rt := runtime{
		events:  noopPublisher{},
		metrics: metrics.GetRegistry(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&rt)
	}
	return rt
}

// Option customizes a Dispatcher or WebhookProcessor.
type Option func(*runtime)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(rt *runtime) { rt.now = now }
}

// WithMetrics records into registry instead of the global one.
func WithMetrics(registry *metrics.Registry) Option {
	return func(rt *runtime) { rt.metrics = registry }
}

// WithEvents publishes gateway events to publisher.
func WithEvents(publisher events.Publisher) Option {
	return func(rt *runtime) {
		if publisher != nil {
			rt.events = publisher
		}
	}
}
