package whatsapp

// SignatureVerifier authenticates inbound webhook callbacks.
type SignatureVerifier interface {
	Verify(rawBody []byte, signatureHeader string) bool
	VerifyHandshake(mode, token string) bool
}
