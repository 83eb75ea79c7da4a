package whatsapp

import (
	"fmt"
	"net/http"

	"wagateway/pkg/whatsapp/types"
)

// OAuth error code Graph returns for an expired or revoked access token.
const oauthInvalidTokenCode = 190

// APIError is a non-2xx response from the Graph API. Body holds the raw
// response so callers can surface it unchanged.
type APIError struct {
	StatusCode int
	Endpoint   string
	Detail     types.ErrorDetail
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail.Message != "" {
		return fmt.Sprintf("graph api %s returned %d: (#%d) %s", e.Endpoint, e.StatusCode, e.Detail.Code, e.Detail.Message)
	}
	return fmt.Sprintf("graph api %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsAuthFailure reports whether the provider rejected the bearer credential.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Detail.Code == oauthInvalidTokenCode
}
