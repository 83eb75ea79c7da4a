package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wagateway/pkg/whatsapp/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultTimeout    = 15 * time.Second
	maxErrorBodyBytes = 64 << 10
	systemUserScope   = "whatsapp_business_messaging,whatsapp_business_management"
)

var tracer = otel.Tracer("wagateway/whatsapp")

// WhatsAppClient talks to the Cloud API over HTTP. It implements both
// types.WAClient and types.OAuthClient.
type WhatsAppClient struct {
	baseURL       string
	apiVersion    string
	phoneNumberID string
	appID         string
	appSecret     string
	systemUserID  string
	client        *http.Client
}

// NewClient creates a Graph API client. A zero Timeout falls back to 15s.
func NewClient(config types.ClientConfig) *WhatsAppClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClientWithHTTP(config, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client that uses the given HTTP client.
func NewClientWithHTTP(config types.ClientConfig, httpClient *http.Client) *WhatsAppClient {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := config.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return &WhatsAppClient{
		baseURL:       baseURL,
		apiVersion:    version,
		phoneNumberID: config.PhoneNumberID,
		appID:         config.AppID,
		appSecret:     config.AppSecret,
		systemUserID:  config.SystemUserID,
		client:        httpClient,
	}
}

func (c *WhatsAppClient) endpoint(path string) string {
	return c.baseURL + "/" + c.apiVersion + path
}

// SendMessage posts a text or template message and returns the provider's
// synchronous accept response.
func (c *WhatsAppClient) SendMessage(ctx context.Context, accessToken string, msg *types.OutboundMessage) (*types.SendMessageResponse, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if msg.MessagingProduct == "" {
		msg.MessagingProduct = types.MessagingProduct
	}

	var resp types.SendMessageResponse
	path := fmt.Sprintf(types.EndpointMessages, c.phoneNumberID)
	if err := c.doJSON(ctx, http.MethodPost, path, accessToken, msg, &resp); err != nil {
		return nil, err
	}
	if resp.MessageID() == "" {
		return nil, fmt.Errorf("send accepted without a message id")
	}
	return &resp, nil
}

// MarkRead sends a read receipt for an inbound message.
func (c *WhatsAppClient) MarkRead(ctx context.Context, accessToken, messageID string) error {
	receipt := types.ReadReceipt{
		MessagingProduct: types.MessagingProduct,
		Status:           types.ReadStatus,
		MessageID:        messageID,
	}
	var resp types.StatusResponse
	path := fmt.Sprintf(types.EndpointMessages, c.phoneNumberID)
	if err := c.doJSON(ctx, http.MethodPost, path, accessToken, receipt, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("mark read for %s was not acknowledged", messageID)
	}
	return nil
}

// DebugToken introspects inputToken using accessToken as the caller identity.
func (c *WhatsAppClient) DebugToken(ctx context.Context, accessToken, inputToken string) (*types.DebugTokenData, error) {
	query := url.Values{}
	query.Set("input_token", inputToken)

	var resp types.DebugTokenResponse
	if err := c.doJSON(ctx, http.MethodGet, types.EndpointDebugToken+"?"+query.Encode(), accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// AppAccessToken obtains an app-level credential via client_credentials.
func (c *WhatsAppClient) AppAccessToken(ctx context.Context) (*types.AccessTokenResponse, error) {
	if c.appID == "" || c.appSecret == "" {
		return nil, fmt.Errorf("app id and app secret are required for the token exchange")
	}
	query := url.Values{}
	query.Set("client_id", c.appID)
	query.Set("client_secret", c.appSecret)
	query.Set("grant_type", "client_credentials")

	var resp types.AccessTokenResponse
	if err := c.doJSON(ctx, http.MethodGet, types.EndpointOAuthToken+"?"+query.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("app token response did not contain an access token")
	}
	return &resp, nil
}

// SystemUserAccessToken exchanges an app credential for a system-user
// credential scoped to business messaging.
func (c *WhatsAppClient) SystemUserAccessToken(ctx context.Context, appAccessToken string) (*types.AccessTokenResponse, error) {
	if c.systemUserID == "" {
		return nil, fmt.Errorf("system user id is required for the token exchange")
	}
	form := url.Values{}
	form.Set("business_app", c.appID)
	form.Set("scope", systemUserScope)
	form.Set("appsecret_proof", appSecretProof(appAccessToken, c.appSecret))

	var resp types.AccessTokenResponse
	path := fmt.Sprintf(types.EndpointSystemUserToken, c.systemUserID) + "?" + form.Encode()
	if err := c.doJSON(ctx, http.MethodPost, path, appAccessToken, nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("system user token response did not contain an access token")
	}
	return &resp, nil
}

func (c *WhatsAppClient) doJSON(ctx context.Context, method, path, accessToken string, payload, out interface{}) error {
	endpoint := strings.SplitN(path, "?", 2)[0]
	ctx, span := tracer.Start(ctx, "whatsapp "+method+" "+endpoint)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("graph.endpoint", endpoint),
	)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp, endpoint)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newAPIError(resp *http.Response, endpoint string) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Body:       string(raw),
	}
	var envelope types.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Detail = envelope.Error
	}
	return apiErr
}
