package models

// Config holds the application configuration
type Config struct {
	WhatsApp     WhatsAppConfig     `json:"whatsapp"`
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Retry        RetryConfig        `json:"retry"`
	Tracing      TracingConfig      `json:"tracing"`
	AutoResponse AutoResponseConfig `json:"autoResponse"`
	LogLevel     string             `json:"log_level"`
}

// WhatsAppConfig holds Cloud API credentials and endpoints. Secrets are
// normally supplied through the environment rather than the config file.
type WhatsAppConfig struct {
	APIBaseURL         string `json:"api_base_url"`
	APIVersion         string `json:"api_version"`
	PhoneNumberID      string `json:"phone_number_id"`
	BusinessAccountID  string `json:"business_account_id"`
	AccessToken        string `json:"access_token"`
	SystemUserToken    string `json:"system_user_token"`
	SystemUserID       string `json:"system_user_id"`
	AppID              string `json:"app_id"`
	AppSecret          string `json:"app_secret"`
	VerifyToken        string `json:"verify_token"`
	WebhookSecret      string `json:"webhook_secret"`
	TimeoutSec         int    `json:"timeout_sec"`
	TemplateLanguage   string `json:"template_language"`
	InvitationTemplate string `json:"invitation_template"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path              string `json:"path"`
	BusyTimeoutMs     int    `json:"busyTimeoutMs"`
	EnableEncryption  bool   `json:"enableEncryption"`
	EncryptionSecret  string `json:"-"`
	MaxRetryAttempts  int    `json:"maxRetryAttempts"`
	MaxOpenConns      int    `json:"maxOpenConns"`
	ConnMaxLifetimeMs int    `json:"connMaxLifetimeMs"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                int   `json:"port"`
	ReadTimeoutSec      int   `json:"readTimeoutSec"`
	WriteTimeoutSec     int   `json:"writeTimeoutSec"`
	IdleTimeoutSec      int   `json:"idleTimeoutSec"`
	WebhookMaxBodyBytes int64 `json:"webhookMaxBodyBytes"`
	DisableEvents       bool  `json:"disableEvents"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// AutoResponseConfig holds keyword rules for inbound text messages. An empty
// rule list falls back to the built-in greeting and help rules.
type AutoResponseConfig struct {
	Disabled bool               `json:"disabled"`
	Rules    []AutoResponseRule `json:"rules"`
}

// AutoResponseRule replies with Reply when any keyword occurs in the message.
type AutoResponseRule struct {
	Keywords []string `json:"keywords"`
	Reply    string   `json:"reply"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
