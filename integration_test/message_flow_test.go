package integration_test

import (
	"context"
	"testing"
	"time"

	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactPhone = "962799123456"

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(evts []events.Event) []events.Type {
	types := make([]events.Type, len(evts))
	for i, evt := range evts {
		types[i] = evt.Type
	}
	return types
}

func TestInboundTextWithAutoReply(t *testing.T) {
	env := NewTestEnvironment(t, "inbound_auto_reply")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, _ := env.hub.Subscribe(ctx)

	env.ProcessWebhook(TextMessageWebhook(contactPhone, "Omar Haddad", "wamid.IN1", "Hello, is anyone there?", env.Now()))

	conv, err := env.db.GetConversation(ctx, contactPhone)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "Omar Haddad", conv.ContactName)
	assert.True(t, conv.IsActive)

	inbound, err := env.db.GetMessage(ctx, "wamid.IN1")
	require.NoError(t, err)
	require.NotNil(t, inbound)
	assert.Equal(t, models.DirectionInbound, inbound.Direction)
	assert.Equal(t, models.MessageTypeText, inbound.Type)
	assert.Equal(t, "Hello, is anyone there?", inbound.Content)

	sends := env.Requests("send")
	require.Len(t, sends, 1)
	assert.Equal(t, contactPhone, sends[0].Body["to"])
	assert.Equal(t, "text", sends[0].Body["type"])
	assert.Equal(t, testAccessToken, sends[0].Authorization)

	reads := env.Requests("read")
	require.Len(t, reads, 1)
	assert.Equal(t, "wamid.IN1", reads[0].Body["message_id"])

	reply, err := env.db.GetMessage(ctx, "wamid.OUT1")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, models.DirectionOutbound, reply.Direction)
	assert.Equal(t, models.DeliveryStatusSent, reply.Status)
	assert.Equal(t, conv.ID, reply.ConversationID)

	assert.Equal(t, []events.Type{
		events.TypeInboundMessage,
		events.TypeTokenRefreshed,
		events.TypeOutboundMessage,
	}, eventTypes(drain(feed)))
}

func TestInboundRedeliveryIsIgnored(t *testing.T) {
	env := NewTestEnvironment(t, "redelivery")
	payload := TextMessageWebhook(contactPhone, "Omar", "wamid.IN1", "help please", env.Now())

	env.ProcessWebhook(payload)
	env.ProcessWebhook(payload)

	assert.Len(t, env.Requests("send"), 1)
	assert.Len(t, env.Requests("read"), 1)
	assert.Equal(t, 1.0, env.registry.CounterValue(metrics.DuplicateMessagesTotal, nil))

	messages, err := env.db.RecentMessages(context.Background(), contactPhone, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestInboundWithoutKeywordOnlyMarksRead(t *testing.T) {
	env := NewTestEnvironment(t, "no_keyword")

	env.ProcessWebhook(TextMessageWebhook(contactPhone, "Omar", "wamid.IN1", "just checking in", env.Now()))

	assert.Empty(t, env.Requests("send"))
	assert.Len(t, env.Requests("read"), 1)
}

func TestInteractiveReplyIsStored(t *testing.T) {
	env := NewTestEnvironment(t, "interactive")

	env.ProcessWebhook(ButtonReplyWebhook(contactPhone, "wamid.BTN1", "interview_yes", "Yes, book me", env.Now()))

	msg, err := env.db.GetMessage(context.Background(), "wamid.BTN1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.MessageTypeInteractive, msg.Type)
	assert.Equal(t, "interview_yes", msg.Content)
	assert.Empty(t, env.Requests("send"))
}

func TestSendFollowsServiceWindow(t *testing.T) {
	env := NewTestEnvironment(t, "service_window")
	ctx := context.Background()

	// Unknown contact: template
	result, err := env.dispatcher.Send(ctx, contactPhone, "Your interview is confirmed", "job_invitation")
	require.NoError(t, err)
	assert.Equal(t, models.SendModeTemplate, result.Mode)

	// The contact writes back, opening the window
	env.Advance(time.Hour)
	env.ProcessWebhook(TextMessageWebhook(contactPhone, "Omar", "wamid.IN1", "thanks, see you then", env.Now()))

	env.Advance(23 * time.Hour)
	result, err = env.dispatcher.Send(ctx, contactPhone, "Reminder: interview tomorrow", "job_invitation")
	require.NoError(t, err)
	assert.Equal(t, models.SendModeText, result.Mode)

	// More than 24h after the last message in either direction
	env.Advance(24*time.Hour + time.Second)
	result, err = env.dispatcher.Send(ctx, contactPhone, "Are you still interested?", "job_invitation")
	require.NoError(t, err)
	assert.Equal(t, models.SendModeTemplate, result.Mode)

	sends := env.Requests("send")
	require.Len(t, sends, 3)
	assert.Equal(t, "template", sends[0].Body["type"])
	assert.Equal(t, "text", sends[1].Body["type"])
	assert.Equal(t, "template", sends[2].Body["type"])
	template := sends[2].Body["template"].(map[string]interface{})
	assert.Equal(t, "job_invitation", template["name"])
}

func TestDeliveryStatusLifecycle(t *testing.T) {
	env := NewTestEnvironment(t, "delivery_status")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := env.dispatcher.SendText(ctx, contactPhone, "Welcome aboard")
	require.NoError(t, err)

	feed, _ := env.hub.Subscribe(ctx)

	env.ProcessWebhook(StatusWebhook(result.MessageID, contactPhone, "delivered", env.Now()))
	msg, err := env.db.GetMessage(ctx, result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, msg.Status)

	env.ProcessWebhook(StatusWebhook(result.MessageID, contactPhone, "read", env.Now()))
	msg, err = env.db.GetMessage(ctx, result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusRead, msg.Status)

	// Receipts for messages sent elsewhere are ignored
	env.ProcessWebhook(StatusWebhook("wamid.UNKNOWN", contactPhone, "delivered", env.Now()))

	assert.Equal(t, []events.Type{events.TypeDeliveryStatus, events.TypeDeliveryStatus}, eventTypes(drain(feed)))
}

func TestProviderRejectionIsNotRecorded(t *testing.T) {
	env := NewTestEnvironment(t, "provider_rejection")
	env.FailNextSends(1)

	result, err := env.dispatcher.SendText(context.Background(), contactPhone, "hello")

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProviderAPI))
	assert.Len(t, env.Requests("send"), 1, "sends are never retried")

	conv, err := env.db.GetConversation(context.Background(), contactPhone)
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestInvitationPayload(t *testing.T) {
	env := NewTestEnvironment(t, "invitation")

	result, err := env.dispatcher.SendInvitation(context.Background(), contactPhone, "Omar", "apply/abc123")
	require.NoError(t, err)
	assert.Equal(t, "job_invitation", result.TemplateName)

	sends := env.Requests("send")
	require.Len(t, sends, 1)
	template := sends[0].Body["template"].(map[string]interface{})
	components := template["components"].([]interface{})
	require.Len(t, components, 2)

	body := components[0].(map[string]interface{})
	assert.Equal(t, "body", body["type"])
	button := components[1].(map[string]interface{})
	assert.Equal(t, "button", button["type"])
	assert.Equal(t, "url", button["sub_type"])
	assert.Equal(t, "0", button["index"])
	params := button["parameters"].([]interface{})
	assert.Equal(t, "apply/abc123", params[0].(map[string]interface{})["text"])

	msg, err := env.db.GetMessage(context.Background(), result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeTemplate, msg.Type)
	assert.Equal(t, "job_invitation", msg.TemplateName)
}

func TestTemplateStatusUpdate(t *testing.T) {
	env := NewTestEnvironment(t, "template_status")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, _ := env.hub.Subscribe(ctx)

	env.ProcessWebhook(TemplateStatusWebhook("job_invitation", "APPROVED"))

	evts := drain(feed)
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeTemplateStatus, evts[0].Type)
	assert.Equal(t, 1.0, env.registry.CounterValue(metrics.TemplateStatusTotal, map[string]string{"event": "APPROVED"}))
	assert.Empty(t, env.Requests("send"))
}
