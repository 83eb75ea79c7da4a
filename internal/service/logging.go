package service

import (
	"context"

	"wagateway/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizePhoneNumber masks all but the last digits of a wa_id.
func SanitizePhoneNumber(phone string) string {
	return privacy.MaskPhoneNumber(phone)
}

// SanitizeMessageID masks a provider message id.
func SanitizeMessageID(msgID string) string {
	return privacy.MaskMessageID(msgID)
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// messageFields returns the standard fields for one message. Phone numbers
// and ids are masked unless verbose logging is on.
func messageFields(ctx context.Context, phone, messageID string) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return logrus.Fields{
			LogFieldPhone:     phone,
			LogFieldMessageID: messageID,
		}
	}
	return logrus.Fields{
		LogFieldPhone:     SanitizePhoneNumber(phone),
		LogFieldMessageID: SanitizeMessageID(messageID),
	}
}
