package service

// Logging Standards for the gateway
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldPhone          = "phone"
	LogFieldMessageID      = "message_id"
	LogFieldConversationID = "conversation_id"
	LogFieldTemplate       = "template"

	// Service and operation fields
	LogFieldComponent = "component"
	LogFieldOperation = "operation"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldField       = "field"
	LogFieldMessageKind = "kind"
	LogFieldSendMode    = "mode"
	LogFieldStatus      = "status"
	LogFieldDirection   = "direction" // "inbound" or "outbound"

	// Credential fields
	LogFieldTokenSource = "source"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Request correlation
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Network and external services
	LogFieldMethod       = "method"
	LogFieldURL          = "url"
	LogFieldRemoteIP     = "remote_ip"
	LogFieldUserAgent    = "user_agent"
	LogFieldSize         = "size_bytes"
	LogFieldEndpoint     = "endpoint"
	LogFieldStatusCode   = "status_code"
	LogFieldProviderCode = "provider_code"

	// Error and debugging
	LogFieldErrorCode = "error_code"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Raw webhook payload sizes, token cache hits
//
// INFO: General information about application flow and key events.
//   - Inbound messages persisted, outbound sends accepted
//   - Template status transitions
//
// WARN: Something unexpected happened, but the application can continue.
//   - Unsupported webhook fields or message kinds
//   - Read receipt or auto-reply failures
//   - Credential invalidated after a provider auth failure
//
// ERROR: Error events that might still allow the application to continue.
//   - Persistence failures
//   - Provider rejections of outbound sends
//   - Recovered panics while processing a webhook

// Standard Log Message Patterns
//
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
// External services: "[Service] request completed" / "Failed to connect to [service]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldPhone:       SanitizePhoneNumber(from),
//     LogFieldMessageID:   SanitizeMessageID(id),
//     LogFieldMessageKind: "text",
//     LogFieldDirection:   "inbound",
// }).Info("Recorded inbound message")
