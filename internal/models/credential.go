package models

import "time"

// CredentialSource names the fallback step that produced a credential.
type CredentialSource string

const (
	CredentialSourceStatic   CredentialSource = "static"
	CredentialSourceSystem   CredentialSource = "system"
	CredentialSourceExchange CredentialSource = "exchange"
)

// Credential is a bearer token with the instant after which it must not be used.
type Credential struct {
	Token     string           `json:"-"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Source    CredentialSource `json:"source"`
}

// ValidAt reports whether the credential can still be used at now, keeping
// margin in reserve before expiry.
func (c Credential) ValidAt(now time.Time, margin time.Duration) bool {
	return c.Token != "" && now.Before(c.ExpiresAt.Add(-margin))
}
