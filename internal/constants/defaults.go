package constants

import "time"

// Provider defaults
const (
	DefaultGraphAPIBaseURL    = "https://graph.facebook.com"
	DefaultGraphAPIVersion    = "v21.0"
	DefaultTemplateLanguage   = "en"
	DefaultInvitationTemplate = "job_invitation"
	ExpectedWebhookObject     = "whatsapp_business_account"
	WebhookSignatureHeader    = "X-Hub-Signature-256"
	SystemUserTokenScope      = "whatsapp_business_messaging,whatsapp_business_management"
	DefaultTestMessage        = "Hello from the WhatsApp gateway! This is a test message."
)

// Credential lifecycle
const (
	TokenCacheKey        = "whatsapp_access_token"
	TokenCacheTTL        = 24 * time.Hour
	TokenSafetyMargin    = 5 * time.Minute
	TokenRefreshAttempts = 2
	TokenRetryInitialMs  = 250
	TokenRetryMaxMs      = 2000
)

// Customer-service window
const (
	ServiceWindow = 24 * time.Hour
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBusyTimeoutMs = 5000
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 15
	DefaultGracefulShutdownSec   = 30
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultWebhookMaxBodyBytes   = 1 << 20
	ServerErrorChannelSize       = 1
)

// Event hub
const (
	EventSubscriberBuffer = 64
	EventWriteTimeoutSec  = 5
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Validation limits
const (
	MinPhoneNumberLength  = 8
	MaxPhoneNumberLength  = 15
	MaxMessageIDLength    = 256
	MaxTextBodyLength     = 4096
	MaxTemplateNameLength = 512
	MaxTemplateParameters = 20
)

// Encryption
const (
	EncryptionSalt            = "wagateway-at-rest-v1"
	EncryptionIterations      = 100000
	EncryptionKeySize         = 32
	EncryptionNonceSize       = 12
	MinEncryptionSecretLength = 32
)

// Background maintenance
const (
	MaintenanceIntervalHours  = 24
	ConversationInactiveAfter = 30 * 24 * time.Hour
	DeliveryCheckInterval     = 5 * time.Minute
	DeliveryStaleThreshold    = 15 * time.Minute
	WebhookProcessTimeoutSec  = 30
)
