package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"wagateway/internal/constants"
	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/models"
	"wagateway/internal/validation"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DispatcherConfig holds template defaults.
type DispatcherConfig struct {
	TemplateLanguage   string
	InvitationTemplate string
}

// DispatcherConfigFromModel reads the template defaults from the WhatsApp
// config section.
func DispatcherConfigFromModel(c models.WhatsAppConfig) DispatcherConfig {
	return DispatcherConfig{
		TemplateLanguage:   c.TemplateLanguage,
		InvitationTemplate: c.InvitationTemplate,
	}
}

// Dispatcher decides between free-form and templated sends, performs the
// provider call and records the accepted message. Sends are never retried.
type Dispatcher struct {
	runtime
	cfg    DispatcherConfig
	client MessageSender
	tokens TokenSource
	store  ConversationStore
	logger *logrus.Logger
}

func NewDispatcher(cfg DispatcherConfig, client MessageSender, tokens TokenSource, store ConversationStore, logger *logrus.Logger, opts ...Option) *Dispatcher {
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = constants.DefaultTemplateLanguage
	}
	if cfg.InvitationTemplate == "" {
		cfg.InvitationTemplate = constants.DefaultInvitationTemplate
	}
	return &Dispatcher{
		runtime: newRuntime(opts),
		cfg:     cfg,
		client:  client,
		tokens:  tokens,
		store:   store,
		logger:  logger,
	}
}

// Send delivers content to a contact inside the service window. A contact
// with no conversation, or whose last message is more than 24 hours old, is
// new; a new contact gets templateName when one is given and free-form text
// otherwise.
func (d *Dispatcher) Send(ctx context.Context, to, content, templateName string) (*models.DispatchResult, error) {
	to = validation.NormalizePhoneNumber(to)
	if err := validation.ValidatePhoneNumber(to); err != nil {
		return nil, err
	}

	isNew, err := d.isNewContact(ctx, to)
	if err != nil {
		return nil, err
	}

	if isNew && templateName != "" {
		d.logger.WithFields(logrus.Fields{
			LogFieldPhone:    SanitizePhoneNumber(to),
			LogFieldTemplate: templateName,
		}).Info("Contact outside the service window, sending template")
		return d.SendTemplate(ctx, to, templateName, d.cfg.TemplateLanguage, nil)
	}
	return d.SendText(ctx, to, content)
}

func (d *Dispatcher) isNewContact(ctx context.Context, phone string) (bool, error) {
	conv, err := d.store.GetConversation(ctx, phone)
	if err != nil {
		return false, apperrors.NewPersistenceError("get conversation", err)
	}
	if conv == nil {
		return true, nil
	}

	last, ok, err := d.store.LastMessageTime(ctx, conv.ID)
	if err != nil {
		return false, apperrors.NewPersistenceError("get last message time", err)
	}
	if !ok {
		return true, nil
	}
	return d.now().Sub(last) > constants.ServiceWindow, nil
}

// SendText sends a free-form text message.
func (d *Dispatcher) SendText(ctx context.Context, to, body string) (*models.DispatchResult, error) {
	to = validation.NormalizePhoneNumber(to)
	if err := validation.ValidatePhoneNumber(to); err != nil {
		return nil, err
	}
	if err := validation.ValidateTextBody(body); err != nil {
		return nil, err
	}

	msg := &types.OutboundMessage{
		MessagingProduct: types.MessagingProduct,
		RecipientType:    types.RecipientIndividual,
		To:               to,
		Type:             types.MessageKindText,
		Text:             &types.TextPayload{Body: body},
	}
	return d.deliver(ctx, models.SendModeText, msg, models.OutboundRecord{
		Type:    models.MessageTypeText,
		Content: body,
	})
}

// SendTemplate sends a pre-approved template. params fill the body
// placeholders in order.
func (d *Dispatcher) SendTemplate(ctx context.Context, to, templateName, languageCode string, params []string) (*models.DispatchResult, error) {
	var components []types.TemplateComponent
	if len(params) > 0 {
		components = append(components, bodyComponent(params...))
	}
	return d.sendTemplate(ctx, to, templateName, languageCode, components, params)
}

// SendInvitation sends the invitation template with the contact's name in
// the body and link as the parameter of the first URL button.
func (d *Dispatcher) SendInvitation(ctx context.Context, to, name, link string) (*models.DispatchResult, error) {
	if err := validation.ValidateStringLength(strings.TrimSpace(name), "name", 1, 256); err != nil {
		return nil, err
	}
	if err := validation.ValidateStringLength(strings.TrimSpace(link), "link", 1, 2000); err != nil {
		return nil, err
	}

	components := []types.TemplateComponent{
		bodyComponent(name),
		{
			Type:       types.ComponentButton,
			SubType:    types.ButtonSubTypeURL,
			Index:      "0",
			Parameters: []types.TemplateParameter{{Type: types.ParameterText, Text: link}},
		},
	}
	return d.sendTemplate(ctx, to, d.cfg.InvitationTemplate, d.cfg.TemplateLanguage, components, []string{name, link})
}

func (d *Dispatcher) sendTemplate(ctx context.Context, to, templateName, languageCode string, components []types.TemplateComponent, params []string) (*models.DispatchResult, error) {
	to = validation.NormalizePhoneNumber(to)
	if err := validation.ValidatePhoneNumber(to); err != nil {
		return nil, err
	}
	if err := validation.ValidateTemplateName(templateName); err != nil {
		return nil, err
	}
	if err := validation.ValidateTemplateParameters(params); err != nil {
		return nil, err
	}
	if languageCode == "" {
		languageCode = d.cfg.TemplateLanguage
	}

	msg := &types.OutboundMessage{
		MessagingProduct: types.MessagingProduct,
		RecipientType:    types.RecipientIndividual,
		To:               to,
		Type:             types.MessageKindTemplate,
		Template: &types.TemplatePayload{
			Name:       templateName,
			Language:   types.TemplateLanguage{Code: languageCode},
			Components: components,
		},
	}
	return d.deliver(ctx, models.SendModeTemplate, msg, models.OutboundRecord{
		Type:         models.MessageTypeTemplate,
		Content:      templateContent(templateName, params),
		TemplateName: templateName,
	})
}

func bodyComponent(params ...string) types.TemplateComponent {
	parameters := make([]types.TemplateParameter, len(params))
	for i, p := range params {
		parameters[i] = types.TemplateParameter{Type: types.ParameterText, Text: p}
	}
	return types.TemplateComponent{Type: types.ComponentBody, Parameters: parameters}
}

// templateContent is the stored content of a template send.
func templateContent(name string, params []string) string {
	if len(params) == 0 {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(params, ", "))
}

// deliver performs the provider call and records the accepted message. A
// persistence failure after the provider accepted the message is returned
// together with the result.
func (d *Dispatcher) deliver(ctx context.Context, mode models.SendMode, msg *types.OutboundMessage, rec models.OutboundRecord) (result *models.DispatchResult, err error) {
	ctx, span := tracer.Start(ctx, "dispatcher.send")
	defer span.End()
	span.SetAttributes(attribute.String("send.mode", string(mode)))

	start := time.Now()
	defer func() {
		sendErr := err
		if result != nil {
			sendErr = nil
		}
		d.metrics.RecordOutbound(string(mode), time.Since(start), sendErr)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	cred, err := d.tokens.GetAccessToken(ctx)
	if err != nil {
		d.logger.WithError(err).WithFields(apperrors.Fields(err)).Error("Failed to obtain access token for send")
		return nil, err
	}

	resp, err := d.client.SendMessage(ctx, cred.Token, msg)
	if err != nil {
		return nil, d.sendFailed(ctx, msg.To, mode, err)
	}

	result = &models.DispatchResult{
		MessageID: resp.MessageID(),
		To:        msg.To,
		Mode:      mode,
	}
	if msg.Template != nil {
		result.TemplateName = msg.Template.Name
	}

	fields := messageFields(ctx, msg.To, result.MessageID)
	fields[LogFieldSendMode] = mode
	d.logger.WithFields(fields).Info("Outbound message accepted")

	rec.PhoneNumber = msg.To
	rec.MessageID = result.MessageID
	rec.Timestamp = d.now().UTC()
	conv, storeErr := d.store.RecordOutbound(ctx, rec)
	if storeErr != nil {
		err = apperrors.NewPersistenceError("record outbound message", storeErr).
			WithContext("message_id", result.MessageID)
		d.logger.WithError(storeErr).WithFields(fields).Error("Failed to record accepted outbound message")
		return result, err
	}

	data := map[string]interface{}{
		"message_id": result.MessageID,
		"to":         SanitizePhoneNumber(msg.To),
		"mode":       string(mode),
	}
	if conv != nil {
		data["conversation_id"] = conv.ID
	}
	if result.TemplateName != "" {
		data["template"] = result.TemplateName
	}
	d.events.Publish(events.Event{Type: events.TypeOutboundMessage, Data: data})
	return result, nil
}

// sendFailed maps a send error onto the error taxonomy. An auth rejection
// invalidates the cached credential once so the next call re-resolves it;
// the message itself is not resent.
func (d *Dispatcher) sendFailed(ctx context.Context, to string, mode models.SendMode, err error) error {
	fields := messageFields(ctx, to, "")
	delete(fields, LogFieldMessageID)
	fields[LogFieldSendMode] = mode

	var apiErr *whatsapp.APIError
	if !stderrors.As(err, &apiErr) {
		d.logger.WithError(err).WithFields(fields).Error("Failed to reach the WhatsApp API")
		return apperrors.Wrap(err, apperrors.ErrCodeProviderAPI, "whatsapp API call failed").
			WithUserMessage("WhatsApp API is unreachable")
	}

	if apiErr.IsAuthFailure() {
		d.tokens.Invalidate()
		d.logger.WithFields(fields).Warn("WhatsApp rejected the access token, credential invalidated")
	}

	fields[LogFieldStatusCode] = apiErr.StatusCode
	fields[LogFieldProviderCode] = apiErr.Detail.Code
	d.logger.WithError(err).WithFields(fields).Error("WhatsApp rejected outbound message")

	return apperrors.NewProviderAPIError(apiErr.Endpoint, apiErr.StatusCode, apiErr.Detail.Code, apiErr.Detail.Message, apiErr).
		WithContext("body", apiErr.Body)
}
