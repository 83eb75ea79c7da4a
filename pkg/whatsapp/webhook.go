package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	signaturePrefix    = "sha256="
	handshakeSubscribe = "subscribe"
)

// WebhookVerifier authenticates callbacks with the app's shared secret and
// answers the one-time subscription handshake.
type WebhookVerifier struct {
	secret      []byte
	verifyToken string
}

// NewWebhookVerifier creates a verifier. An empty secret makes Verify reject
// every request.
func NewWebhookVerifier(secret, verifyToken string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:      []byte(secret),
		verifyToken: verifyToken,
	}
}

// Verify reports whether signatureHeader equals "sha256=" + hex(HMAC-SHA256(secret, rawBody)).
// The comparison is constant time. Missing header and missing secret both
// yield false.
func (v *WebhookVerifier) Verify(rawBody []byte, signatureHeader string) bool {
	if len(v.secret) == 0 || signatureHeader == "" {
		return false
	}
	expected := signaturePrefix + hmacHex(v.secret, rawBody)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// VerifyHandshake checks the GET subscription challenge parameters.
func (v *WebhookVerifier) VerifyHandshake(mode, token string) bool {
	return v.verifyToken != "" && mode == handshakeSubscribe && token == v.verifyToken
}

// Sign returns the header value a provider would send for body. Used by tests
// and local tooling.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hmacHex([]byte(secret), body)
}

// appSecretProof is the HMAC of an access token keyed with the app secret,
// required by Graph when "Require App Secret" is enabled.
func appSecretProof(accessToken, appSecret string) string {
	return hmacHex([]byte(appSecret), []byte(accessToken))
}

func hmacHex(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
