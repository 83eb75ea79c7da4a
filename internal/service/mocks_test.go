package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"wagateway/internal/events"
	"wagateway/internal/models"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPhone = "962799123456"
	testToken = "test-token"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	args := m.Called(ctx, phoneNumber)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}

func (m *mockStore) LastMessageTime(ctx context.Context, conversationID int64) (time.Time, bool, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *mockStore) RecordInbound(ctx context.Context, rec models.InboundRecord) (*models.Conversation, error) {
	args := m.Called(ctx, rec)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}

func (m *mockStore) RecordOutbound(ctx context.Context, rec models.OutboundRecord) (*models.Conversation, error) {
	args := m.Called(ctx, rec)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}

func (m *mockStore) UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus) (bool, error) {
	args := m.Called(ctx, messageID, status)
	return args.Bool(0), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) GetAccessToken(ctx context.Context) (models.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Credential), args.Error(1)
}

func (m *mockTokens) Invalidate() {
	m.Called()
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) SendMessage(ctx context.Context, accessToken string, msg *types.OutboundMessage) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, accessToken, msg)
	resp, _ := args.Get(0).(*types.SendMessageResponse)
	return resp, args.Error(1)
}

func (m *mockClient) MarkRead(ctx context.Context, accessToken, messageID string) error {
	args := m.Called(ctx, accessToken, messageID)
	return args.Error(0)
}

type mockReplier struct {
	mock.Mock
}

func (m *mockReplier) SendText(ctx context.Context, to, body string) (*models.DispatchResult, error) {
	args := m.Called(ctx, to, body)
	result, _ := args.Get(0).(*models.DispatchResult)
	return result, args.Error(1)
}

type mockMaintainer struct {
	mock.Mock
}

func (m *mockMaintainer) DeactivateStaleConversations(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockStaleCounter struct {
	mock.Mock
}

func (m *mockStaleCounter) StaleOutboundCount(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, evt := range p.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func credential() models.Credential {
	return models.Credential{
		Token:     testToken,
		ExpiresAt: time.Now().Add(time.Hour),
		Source:    models.CredentialSourceStatic,
	}
}

// acceptResponse builds the provider's synchronous accept body.
func acceptResponse(t *testing.T, messageID string) *types.SendMessageResponse {
	t.Helper()
	var resp types.SendMessageResponse
	raw := `{"messaging_product":"whatsapp","contacts":[{"input":"` + testPhone + `","wa_id":"` + testPhone + `"}],"messages":[{"id":"` + messageID + `"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return &resp
}
