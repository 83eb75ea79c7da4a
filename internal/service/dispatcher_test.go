package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var dispatchNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	store      *mockStore
	tokens     *mockTokens
	client     *mockClient
	registry   *metrics.Registry
	events     *recordingPublisher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		store:    &mockStore{},
		tokens:   &mockTokens{},
		client:   &mockClient{},
		registry: metrics.NewRegistry(),
		events:   &recordingPublisher{},
	}
	f.dispatcher = NewDispatcher(DispatcherConfig{}, f.client, f.tokens, f.store, quietLogger(),
		WithClock(func() time.Time { return dispatchNow }),
		WithMetrics(f.registry),
		WithEvents(f.events),
	)
	return f
}

func (f *dispatcherFixture) assertExpectations(t *testing.T) {
	f.store.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

// expectConversation makes testPhone's last message lastAt.
func (f *dispatcherFixture) expectConversation(lastAt time.Time) {
	conv := &models.Conversation{ID: 7, PhoneNumber: testPhone}
	f.store.On("GetConversation", mock.Anything, testPhone).Return(conv, nil).Once()
	f.store.On("LastMessageTime", mock.Anything, int64(7)).Return(lastAt, true, nil).Once()
}

func (f *dispatcherFixture) expectAccepted(t *testing.T, messageID string, capture **types.OutboundMessage) {
	f.tokens.On("GetAccessToken", mock.Anything).Return(credential(), nil).Once()
	f.client.On("SendMessage", mock.Anything, testToken, mock.AnythingOfType("*types.OutboundMessage")).
		Run(func(args mock.Arguments) {
			if capture != nil {
				*capture = args.Get(2).(*types.OutboundMessage)
			}
		}).
		Return(acceptResponse(t, messageID), nil).Once()
}

func TestSend_ServiceWindowDecision(t *testing.T) {
	tests := []struct {
		name     string
		lastAt   time.Time
		wantMode models.SendMode
	}{
		{"last message 24h minus 1s ago", dispatchNow.Add(-24*time.Hour + time.Second), models.SendModeText},
		{"last message exactly 24h ago", dispatchNow.Add(-24 * time.Hour), models.SendModeText},
		{"last message 24h plus 1s ago", dispatchNow.Add(-24*time.Hour - time.Second), models.SendModeTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture()
			f.expectConversation(tt.lastAt)

			var sent *types.OutboundMessage
			f.expectAccepted(t, "wamid.OUT", &sent)
			f.store.On("RecordOutbound", mock.Anything, mock.Anything).Return(&models.Conversation{ID: 7}, nil).Once()

			result, err := f.dispatcher.Send(context.Background(), testPhone, "Hello again", "job_invitation")

			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, result.Mode)
			assert.Equal(t, "wamid.OUT", result.MessageID)
			if tt.wantMode == models.SendModeTemplate {
				assert.Equal(t, types.MessageKindTemplate, sent.Type)
				assert.Equal(t, "job_invitation", sent.Template.Name)
				assert.Equal(t, "en", sent.Template.Language.Code)
			} else {
				assert.Equal(t, types.MessageKindText, sent.Type)
				assert.Equal(t, "Hello again", sent.Text.Body)
			}
			f.assertExpectations(t)
		})
	}
}

func TestSend_NoConversationUsesTemplate(t *testing.T) {
	f := newDispatcherFixture()
	f.store.On("GetConversation", mock.Anything, testPhone).Return(nil, nil).Once()

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.T1", &sent)
	f.store.On("RecordOutbound", mock.Anything, mock.MatchedBy(func(rec models.OutboundRecord) bool {
		return rec.PhoneNumber == testPhone &&
			rec.MessageID == "wamid.T1" &&
			rec.Type == models.MessageTypeTemplate &&
			rec.TemplateName == "job_invitation" &&
			rec.Timestamp.Equal(dispatchNow)
	})).Return(&models.Conversation{ID: 1, TemplateRequired: true}, nil).Once()

	result, err := f.dispatcher.Send(context.Background(), "+"+testPhone, "ignored", "job_invitation")

	require.NoError(t, err)
	assert.Equal(t, models.SendModeTemplate, result.Mode)
	assert.Equal(t, "job_invitation", result.TemplateName)
	assert.Equal(t, testPhone, sent.To)
	assert.Empty(t, sent.Template.Components)
	f.assertExpectations(t)
}

func TestSend_ConversationWithoutMessagesUsesTemplate(t *testing.T) {
	f := newDispatcherFixture()
	f.store.On("GetConversation", mock.Anything, testPhone).Return(&models.Conversation{ID: 3}, nil).Once()
	f.store.On("LastMessageTime", mock.Anything, int64(3)).Return(time.Time{}, false, nil).Once()
	f.expectAccepted(t, "wamid.T2", nil)
	f.store.On("RecordOutbound", mock.Anything, mock.Anything).Return(&models.Conversation{ID: 3}, nil).Once()

	result, err := f.dispatcher.Send(context.Background(), testPhone, "hi", "job_invitation")

	require.NoError(t, err)
	assert.Equal(t, models.SendModeTemplate, result.Mode)
}

func TestSend_NewContactWithoutTemplateSendsText(t *testing.T) {
	f := newDispatcherFixture()
	f.store.On("GetConversation", mock.Anything, testPhone).Return(nil, nil).Once()

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.X", &sent)
	f.store.On("RecordOutbound", mock.Anything, mock.Anything).Return(&models.Conversation{ID: 1}, nil).Once()

	result, err := f.dispatcher.Send(context.Background(), testPhone, "plain text", "")

	require.NoError(t, err)
	assert.Equal(t, models.SendModeText, result.Mode)
	assert.Equal(t, "plain text", sent.Text.Body)
}

func TestSend_StoreLookupFailure(t *testing.T) {
	f := newDispatcherFixture()
	f.store.On("GetConversation", mock.Anything, testPhone).Return(nil, fmt.Errorf("database is locked")).Once()

	result, err := f.dispatcher.Send(context.Background(), testPhone, "hi", "job_invitation")

	assert.Nil(t, result)
	assert.Equal(t, apperrors.ErrCodeDatabaseQuery, apperrors.GetCode(err))
	f.client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendText_PersistsOutbound(t *testing.T) {
	f := newDispatcherFixture()

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.TXT", &sent)
	f.store.On("RecordOutbound", mock.Anything, models.OutboundRecord{
		PhoneNumber: testPhone,
		MessageID:   "wamid.TXT",
		Type:        models.MessageTypeText,
		Content:     "Your interview is at 10:00",
		Timestamp:   dispatchNow,
	}).Return(&models.Conversation{ID: 9}, nil).Once()

	result, err := f.dispatcher.SendText(context.Background(), testPhone, "Your interview is at 10:00")

	require.NoError(t, err)
	assert.Equal(t, &models.DispatchResult{MessageID: "wamid.TXT", To: testPhone, Mode: models.SendModeText}, result)
	assert.Equal(t, types.MessagingProduct, sent.MessagingProduct)
	assert.Equal(t, types.RecipientIndividual, sent.RecipientType)
	assert.Nil(t, sent.Template)

	assert.Equal(t, float64(1), f.registry.CounterValue(metrics.OutboundMessagesTotal,
		map[string]string{"mode": "text", "outcome": metrics.OutcomeSuccess}))
	published := f.events.ofType(events.TypeOutboundMessage)
	require.Len(t, published, 1)
	assert.Equal(t, "wamid.TXT", published[0].Data["message_id"])
	assert.Equal(t, int64(9), published[0].Data["conversation_id"])
	f.assertExpectations(t)
}

func TestSendText_ValidationFailsBeforeAnyCall(t *testing.T) {
	f := newDispatcherFixture()

	_, err := f.dispatcher.SendText(context.Background(), "12ab", "hello")
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))

	_, err = f.dispatcher.SendText(context.Background(), testPhone, "  ")
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))

	f.tokens.AssertNotCalled(t, "GetAccessToken", mock.Anything)
	f.client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendTemplate_BodyParameters(t *testing.T) {
	f := newDispatcherFixture()

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.TPL", &sent)
	f.store.On("RecordOutbound", mock.Anything, mock.MatchedBy(func(rec models.OutboundRecord) bool {
		return rec.Content == "interview_reminder [Alice, Monday]" && rec.TemplateName == "interview_reminder"
	})).Return(&models.Conversation{ID: 2}, nil).Once()

	result, err := f.dispatcher.SendTemplate(context.Background(), testPhone, "interview_reminder", "ar", []string{"Alice", "Monday"})

	require.NoError(t, err)
	assert.Equal(t, models.SendModeTemplate, result.Mode)
	assert.Equal(t, "ar", sent.Template.Language.Code)
	require.Len(t, sent.Template.Components, 1)
	body := sent.Template.Components[0]
	assert.Equal(t, types.ComponentBody, body.Type)
	assert.Equal(t, []types.TemplateParameter{{Type: "text", Text: "Alice"}, {Type: "text", Text: "Monday"}}, body.Parameters)
	f.assertExpectations(t)
}

func TestSendTemplate_InvalidName(t *testing.T) {
	f := newDispatcherFixture()

	_, err := f.dispatcher.SendTemplate(context.Background(), testPhone, "Bad Name", "", nil)

	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
	f.client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendInvitation_Components(t *testing.T) {
	f := newDispatcherFixture()

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.INV", &sent)
	f.store.On("RecordOutbound", mock.Anything, mock.MatchedBy(func(rec models.OutboundRecord) bool {
		return rec.Type == models.MessageTypeTemplate && rec.TemplateName == "job_invitation"
	})).Return(&models.Conversation{ID: 4}, nil).Once()

	result, err := f.dispatcher.SendInvitation(context.Background(), testPhone, "Alice", "jobs/abc123")

	require.NoError(t, err)
	assert.Equal(t, "job_invitation", result.TemplateName)
	require.Len(t, sent.Template.Components, 2)

	body := sent.Template.Components[0]
	assert.Equal(t, types.ComponentBody, body.Type)
	assert.Empty(t, body.SubType)
	assert.Equal(t, []types.TemplateParameter{{Type: "text", Text: "Alice"}}, body.Parameters)

	button := sent.Template.Components[1]
	assert.Equal(t, types.ComponentButton, button.Type)
	assert.Equal(t, types.ButtonSubTypeURL, button.SubType)
	assert.Equal(t, "0", button.Index)
	assert.Equal(t, []types.TemplateParameter{{Type: "text", Text: "jobs/abc123"}}, button.Parameters)
	f.assertExpectations(t)
}

func TestSendInvitation_ConfiguredTemplate(t *testing.T) {
	f := newDispatcherFixture()
	f.dispatcher.cfg.InvitationTemplate = "candidate_invite"

	var sent *types.OutboundMessage
	f.expectAccepted(t, "wamid.INV2", &sent)
	f.store.On("RecordOutbound", mock.Anything, mock.Anything).Return(&models.Conversation{ID: 4}, nil).Once()

	_, err := f.dispatcher.SendInvitation(context.Background(), testPhone, "Alice", "https://example.com/j/1")

	require.NoError(t, err)
	assert.Equal(t, "candidate_invite", sent.Template.Name)
}

func TestSendInvitation_RequiresNameAndLink(t *testing.T) {
	f := newDispatcherFixture()

	_, err := f.dispatcher.SendInvitation(context.Background(), testPhone, "", "link")
	assert.Error(t, err)
	_, err = f.dispatcher.SendInvitation(context.Background(), testPhone, "Alice", " ")
	assert.Error(t, err)
	f.tokens.AssertNotCalled(t, "GetAccessToken", mock.Anything)
}

func TestSend_ProviderRejectionIsNotRetried(t *testing.T) {
	f := newDispatcherFixture()
	apiErr := &whatsapp.APIError{
		StatusCode: http.StatusBadRequest,
		Endpoint:   "/123/messages",
		Detail:     types.ErrorDetail{Code: 131047, Message: "Re-engagement message"},
		Body:       `{"error":{"code":131047}}`,
	}
	f.tokens.On("GetAccessToken", mock.Anything).Return(credential(), nil).Once()
	f.client.On("SendMessage", mock.Anything, testToken, mock.Anything).Return(nil, apiErr).Once()

	result, err := f.dispatcher.SendText(context.Background(), testPhone, "hello")

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderAPI, apperrors.GetCode(err))
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatusCode(err))

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 131047, appErr.Context["provider_code"])
	assert.Equal(t, apiErr.Body, appErr.Context["body"])

	f.client.AssertNumberOfCalls(t, "SendMessage", 1)
	f.tokens.AssertNotCalled(t, "Invalidate")
	f.store.AssertNotCalled(t, "RecordOutbound", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), f.registry.CounterValue(metrics.OutboundMessagesTotal,
		map[string]string{"mode": "text", "outcome": metrics.OutcomeFailure}))
}

func TestSend_AuthFailureInvalidatesOnce(t *testing.T) {
	f := newDispatcherFixture()
	apiErr := &whatsapp.APIError{
		StatusCode: http.StatusUnauthorized,
		Endpoint:   "/123/messages",
		Detail:     types.ErrorDetail{Code: 190, Message: "Error validating access token"},
	}
	f.tokens.On("GetAccessToken", mock.Anything).Return(credential(), nil).Once()
	f.tokens.On("Invalidate").Return().Once()
	f.client.On("SendMessage", mock.Anything, testToken, mock.Anything).Return(nil, apiErr).Once()

	_, err := f.dispatcher.SendText(context.Background(), testPhone, "hello")

	assert.Equal(t, apperrors.ErrCodeProviderAPI, apperrors.GetCode(err))
	f.client.AssertNumberOfCalls(t, "SendMessage", 1)
	f.tokens.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestSend_NetworkFailure(t *testing.T) {
	f := newDispatcherFixture()
	f.tokens.On("GetAccessToken", mock.Anything).Return(credential(), nil).Once()
	f.client.On("SendMessage", mock.Anything, testToken, mock.Anything).Return(nil, fmt.Errorf("dial tcp: connection refused")).Once()

	_, err := f.dispatcher.SendText(context.Background(), testPhone, "hello")

	assert.Equal(t, apperrors.ErrCodeProviderAPI, apperrors.GetCode(err))
	f.tokens.AssertNotCalled(t, "Invalidate")
}

func TestSend_TokenFailureStopsSend(t *testing.T) {
	f := newDispatcherFixture()
	authErr := apperrors.NewProviderAuthError(fmt.Errorf("all sources failed"))
	f.tokens.On("GetAccessToken", mock.Anything).Return(models.Credential{}, authErr).Once()

	_, err := f.dispatcher.SendText(context.Background(), testPhone, "hello")

	assert.Equal(t, apperrors.ErrCodeProviderAuth, apperrors.GetCode(err))
	f.client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_PersistenceFailureAfterAccept(t *testing.T) {
	f := newDispatcherFixture()
	f.expectAccepted(t, "wamid.SAVED", nil)
	f.store.On("RecordOutbound", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("disk I/O error")).Once()

	result, err := f.dispatcher.SendText(context.Background(), testPhone, "hello")

	require.NotNil(t, result)
	assert.Equal(t, "wamid.SAVED", result.MessageID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseQuery, apperrors.GetCode(err))
	assert.Empty(t, f.events.ofType(events.TypeOutboundMessage))
	assert.Equal(t, float64(1), f.registry.CounterValue(metrics.OutboundMessagesTotal,
		map[string]string{"mode": "text", "outcome": metrics.OutcomeSuccess}))
}

func TestTemplateContent(t *testing.T) {
	assert.Equal(t, "hello_world", templateContent("hello_world", nil))
	assert.Equal(t, "job_invitation [Alice, link]", templateContent("job_invitation", []string{"Alice", "link"}))
}
