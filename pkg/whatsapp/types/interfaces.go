package types

import (
	"context"
	"time"
)

// WAClient drives the Cloud API messaging endpoints. Every call takes the
// bearer token explicitly so credential lifecycle stays with the caller.
type WAClient interface {
	SendMessage(ctx context.Context, accessToken string, msg *OutboundMessage) (*SendMessageResponse, error)
	MarkRead(ctx context.Context, accessToken, messageID string) error
	DebugToken(ctx context.Context, accessToken, inputToken string) (*DebugTokenData, error)
}

// OAuthClient performs the app-credential exchange used to mint a
// system-user token.
type OAuthClient interface {
	AppAccessToken(ctx context.Context) (*AccessTokenResponse, error)
	SystemUserAccessToken(ctx context.Context, appAccessToken string) (*AccessTokenResponse, error)
}

// ClientConfig holds the Graph API coordinates for one business phone number.
type ClientConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AppID         string
	AppSecret     string
	SystemUserID  string
	Timeout       time.Duration
}
