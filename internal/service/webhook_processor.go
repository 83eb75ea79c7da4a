package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"

	"wagateway/internal/constants"
	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/models"
	"wagateway/internal/validation"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// WebhookProcessor applies verified webhook callbacks: it records inbound
// messages, answers keyword auto-replies, sends read receipts and tracks
// delivery and template status updates. It never reports failures to the
// caller; everything is logged.
type WebhookProcessor struct {
	runtime
	store     ConversationStore
	replier   TextReplier
	marker    ReadMarker
	tokens    TokenSource
	responder *AutoResponder
	logger    *logrus.Logger
}

func NewWebhookProcessor(store ConversationStore, replier TextReplier, marker ReadMarker, tokens TokenSource, responder *AutoResponder, logger *logrus.Logger, opts ...Option) *WebhookProcessor {
	if responder == nil {
		responder = NewAutoResponder(models.AutoResponseConfig{})
	}
	return &WebhookProcessor{
		runtime:   newRuntime(opts),
		store:     store,
		replier:   replier,
		marker:    marker,
		tokens:    tokens,
		responder: responder,
		logger:    logger,
	}
}

// ProcessWebhook handles one raw callback body.
func (p *WebhookProcessor) ProcessWebhook(ctx context.Context, body []byte) {
	defer p.recoverPanic("webhook")

	ctx, span := tracer.Start(ctx, "webhook.process")
	defer span.End()
	span.SetAttributes(attribute.Int("webhook.body_bytes", len(body)))

	var envelope types.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.logger.WithError(err).Warn("Skipping webhook: malformed payload")
		return
	}
	if envelope.Object != constants.ExpectedWebhookObject {
		p.logger.WithField("object", envelope.Object).Warn("Skipping webhook: unexpected object")
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			p.processChange(ctx, change)
		}
	}
}

// processChange handles one entry.changes[] element. A failure here never
// affects sibling changes.
func (p *WebhookProcessor) processChange(ctx context.Context, change types.WebhookChange) {
	defer p.recoverPanic("change " + change.Field)

	kind := change.Kind()
	p.metrics.RecordWebhookChange(string(kind))

	switch kind {
	case types.ChangeFieldMessages:
		p.processMessages(ctx, change.Value)
	case types.ChangeFieldTemplateStatusUpdate:
		p.processTemplateStatus(ctx, change.Value)
	case types.ChangeFieldUnknown:
		p.logger.WithField(LogFieldField, change.Field).Info("Ignoring unsupported webhook field")
	}
}

func (p *WebhookProcessor) processMessages(ctx context.Context, raw json.RawMessage) {
	value, skipped, err := types.DecodeMessagesValue(raw)
	if err != nil {
		p.logger.WithError(err).Warn("Skipping messages change: malformed value")
		return
	}
	for _, skipErr := range skipped {
		p.logger.WithError(skipErr).Warn("Skipping malformed entry in messages change")
	}

	for i := range value.Messages {
		p.processInbound(ctx, value, &value.Messages[i])
	}
	for i := range value.Statuses {
		p.processStatus(ctx, &value.Statuses[i])
	}
}

func (p *WebhookProcessor) processInbound(ctx context.Context, value *types.MessagesValue, msg *types.InboundMessage) {
	defer p.recoverPanic("message")

	fields := messageFields(ctx, msg.From, msg.ID)
	fields[LogFieldMessageKind] = msg.Type

	if err := validation.ValidateMessageID(msg.ID); err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("Skipping inbound message: invalid message id")
		return
	}
	body, err := msg.Body()
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("Skipping inbound message: missing payload")
		return
	}

	timestamp := msg.Timestamp.Time
	if timestamp.IsZero() {
		timestamp = p.now().UTC()
	}
	msgType, content := storedForm(body)

	conv, err := p.store.RecordInbound(ctx, models.InboundRecord{
		PhoneNumber: msg.From,
		ContactName: value.ContactName(msg.From),
		MessageID:   msg.ID,
		Type:        msgType,
		Content:     content,
		Timestamp:   timestamp,
	})
	if stderrors.Is(err, models.ErrDuplicateMessage) {
		p.metrics.RecordDuplicateMessage()
		p.logger.WithFields(fields).Info("Skipping inbound message: already processed")
		return
	}
	if err != nil {
		perr := apperrors.NewPersistenceError("record inbound message", err)
		p.logger.WithError(err).WithFields(fields).WithFields(apperrors.Fields(perr)).Error("Failed to record inbound message")
		return
	}

	fields[LogFieldConversationID] = conv.ID
	p.metrics.RecordInboundMessage(string(msg.Kind()))
	p.logger.WithFields(fields).Info("Recorded inbound message")
	p.events.Publish(events.Event{
		Type: events.TypeInboundMessage,
		Data: map[string]interface{}{
			"message_id":      msg.ID,
			"from":            SanitizePhoneNumber(msg.From),
			"kind":            string(msg.Kind()),
			"conversation_id": conv.ID,
		},
	})

	switch b := body.(type) {
	case types.TextBody:
		p.autoReply(ctx, msg.From, b.Text, fields)
	case types.MediaBody:
		p.logger.WithFields(fields).WithField("mime_type", b.Mime).Info("Received media message")
	case types.InteractiveBody:
		p.logger.WithFields(fields).WithField("reply_type", b.ReplyType).Info("Received interactive reply")
	case types.UnknownBody:
		p.logger.WithFields(fields).Info("Received unsupported message kind")
	}

	p.markRead(ctx, msg.ID, fields)
}

// storedForm maps a decoded body onto the persisted type and content.
// Kinds outside the closed set are stored as TEXT with a placeholder.
func storedForm(body types.Body) (models.MessageType, string) {
	switch b := body.(type) {
	case types.TextBody:
		return models.MessageTypeText, b.Text
	case types.MediaBody:
		return mediaType(b.Kind), b.MediaID
	case types.InteractiveBody:
		return models.MessageTypeInteractive, b.SelectedID
	case types.UnknownBody:
		return models.MessageTypeText, fmt.Sprintf("[%s]", b.RawType)
	}
	return models.MessageTypeText, ""
}

func mediaType(kind types.MessageKind) models.MessageType {
	switch kind {
	case types.MessageKindImage:
		return models.MessageTypeImage
	case types.MessageKindDocument:
		return models.MessageTypeDocument
	case types.MessageKindAudio:
		return models.MessageTypeAudio
	case types.MessageKindVideo:
		return models.MessageTypeVideo
	}
	return models.MessageTypeText
}

func (p *WebhookProcessor) autoReply(ctx context.Context, to, text string, fields logrus.Fields) {
	reply, ok := p.responder.Match(text)
	if !ok {
		return
	}

	_, err := p.replier.SendText(ctx, to, reply)
	p.metrics.RecordAutoReply(err)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("Failed to send auto-reply")
		return
	}
	p.logger.WithFields(fields).Info("Sent auto-reply")
}

// markRead is best-effort.
func (p *WebhookProcessor) markRead(ctx context.Context, messageID string, fields logrus.Fields) {
	cred, err := p.tokens.GetAccessToken(ctx)
	if err == nil {
		err = p.marker.MarkRead(ctx, cred.Token, messageID)
		var apiErr *whatsapp.APIError
		if stderrors.As(err, &apiErr) && apiErr.IsAuthFailure() {
			p.tokens.Invalidate()
		}
	}
	p.metrics.RecordReadReceipt(err)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("Failed to send read receipt")
	}
}

func (p *WebhookProcessor) processStatus(ctx context.Context, update *types.StatusUpdate) {
	fields := messageFields(ctx, update.RecipientID, update.ID)
	fields[LogFieldStatus] = update.Status

	status, ok := models.ParseDeliveryStatus(update.Status)
	if !ok {
		p.logger.WithFields(fields).Info("Ignoring unsupported delivery status")
		return
	}
	p.metrics.RecordDeliveryStatus(string(status))

	if status == models.DeliveryStatusFailed {
		for _, e := range update.Errors {
			p.logger.WithFields(fields).WithFields(logrus.Fields{
				LogFieldProviderCode: e.Code,
				"title":              e.Title,
			}).Warn("Provider reported delivery failure")
		}
	}

	updated, err := p.store.UpdateMessageStatus(ctx, update.ID, status)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("Failed to update message status")
		return
	}
	if !updated {
		p.logger.WithFields(fields).Debug("Status update for unknown message")
		return
	}

	p.events.Publish(events.Event{
		Type: events.TypeDeliveryStatus,
		Data: map[string]interface{}{
			"message_id": update.ID,
			"status":     string(status),
		},
	})
}

func (p *WebhookProcessor) processTemplateStatus(ctx context.Context, raw json.RawMessage) {
	var value types.TemplateStatusValue
	if err := json.Unmarshal(raw, &value); err != nil {
		p.logger.WithError(err).Warn("Skipping template status change: malformed value")
		return
	}

	p.metrics.RecordTemplateStatus(value.Event)
	entry := p.logger.WithFields(logrus.Fields{
		LogFieldEvent:    value.Event,
		LogFieldTemplate: value.MessageTemplateName,
		"language":       value.MessageTemplateLanguage,
		"template_id":    value.MessageTemplateID,
	})
	if value.Reason != "" {
		entry = entry.WithField("reason", value.Reason)
	}
	entry.Info("Template status changed")

	p.events.Publish(events.Event{
		Type: events.TypeTemplateStatus,
		Data: map[string]interface{}{
			"template": value.MessageTemplateName,
			"language": value.MessageTemplateLanguage,
			"event":    value.Event,
			"reason":   value.Reason,
		},
	})
}

func (p *WebhookProcessor) recoverPanic(scope string) {
	if r := recover(); r != nil {
		p.logger.WithFields(logrus.Fields{
			"panic": fmt.Sprint(r),
			"scope": scope,
			"stack": string(debug.Stack()),
		}).Error("Recovered from panic while processing webhook")
	}
}
