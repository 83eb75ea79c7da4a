package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"wagateway/internal/constants"
	"wagateway/internal/models"
	"wagateway/internal/security"

	"github.com/joho/godotenv"
)

var (
	ErrMissingPhoneNumberID = models.ConfigError{Message: "missing WhatsApp phone number id"}
	ErrMissingDBPath        = models.ConfigError{Message: "missing database path"}
	ErrMissingCredentials   = models.ConfigError{Message: "no WhatsApp credential source configured (set WHATSAPP_ACCESS_TOKEN, WHATSAPP_SYSTEM_USER_TOKEN, or WHATSAPP_APP_ID/WHATSAPP_APP_SECRET/WHATSAPP_SYSTEM_USER_ID)"}
)

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig reads the JSON config at path, applies defaults and environment
// overrides, then validates the result. An empty path builds the
// configuration from the environment alone.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.WhatsApp.APIBaseURL == "" {
		c.WhatsApp.APIBaseURL = constants.DefaultGraphAPIBaseURL
	}
	if c.WhatsApp.APIVersion == "" {
		c.WhatsApp.APIVersion = constants.DefaultGraphAPIVersion
	}
	if c.WhatsApp.TimeoutSec <= 0 {
		c.WhatsApp.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.WhatsApp.TemplateLanguage == "" {
		c.WhatsApp.TemplateLanguage = constants.DefaultTemplateLanguage
	}
	if c.WhatsApp.InvitationTemplate == "" {
		c.WhatsApp.InvitationTemplate = constants.DefaultInvitationTemplate
	}

	if c.Database.BusyTimeoutMs <= 0 {
		c.Database.BusyTimeoutMs = constants.DefaultDatabaseBusyTimeoutMs
	}
	if c.Database.MaxRetryAttempts <= 0 {
		c.Database.MaxRetryAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.WebhookMaxBodyBytes <= 0 {
		c.Server.WebhookMaxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "wagateway"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("WHATSAPP_API_URL", &c.WhatsApp.APIBaseURL)
	setString("WHATSAPP_API_VERSION", &c.WhatsApp.APIVersion)
	setString("WHATSAPP_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	setString("WHATSAPP_BUSINESS_ACCOUNT_ID", &c.WhatsApp.BusinessAccountID)

	// SECURITY: credentials and secrets should be set via environment variables
	setString("WHATSAPP_ACCESS_TOKEN", &c.WhatsApp.AccessToken)
	setString("WHATSAPP_SYSTEM_USER_TOKEN", &c.WhatsApp.SystemUserToken)
	setString("WHATSAPP_SYSTEM_USER_ID", &c.WhatsApp.SystemUserID)
	setString("WHATSAPP_APP_ID", &c.WhatsApp.AppID)
	setString("WHATSAPP_APP_SECRET", &c.WhatsApp.AppSecret)
	setString("WHATSAPP_VERIFY_TOKEN", &c.WhatsApp.VerifyToken)
	setString("WHATSAPP_WEBHOOK_SECRET", &c.WhatsApp.WebhookSecret)

	setString("DB_PATH", &c.Database.Path)
	setString("WAGATEWAY_ENCRYPTION_SECRET", &c.Database.EncryptionSecret)
	if v := os.Getenv("WAGATEWAY_ENABLE_ENCRYPTION"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Database.EnableEncryption = enabled
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	setString("WAGATEWAY_LOG_LEVEL", &c.LogLevel)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
}

func validate(c *models.Config) error {
	if c.WhatsApp.PhoneNumberID == "" {
		return ErrMissingPhoneNumberID
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}

	w := c.WhatsApp
	hasExchange := w.AppID != "" && w.AppSecret != "" && w.SystemUserID != ""
	if w.AccessToken == "" && w.SystemUserToken == "" && !hasExchange {
		return ErrMissingCredentials
	}

	if c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}
	if c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}

	for i, rule := range c.AutoResponse.Rules {
		if len(rule.Keywords) == 0 || strings.TrimSpace(rule.Reply) == "" {
			return models.ConfigError{Message: fmt.Sprintf("auto-response rule %d needs keywords and a reply", i)}
		}
	}

	if c.Database.EnableEncryption && len(c.Database.EncryptionSecret) < constants.MinEncryptionSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("encryption secret must be at least %d characters (set WAGATEWAY_ENCRYPTION_SECRET)", constants.MinEncryptionSecretLength)}
	}
	return nil
}

// IsProduction reports whether WAGATEWAY_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("WAGATEWAY_ENV") == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		// In production, webhook authentication is mandatory
		if c.WhatsApp.WebhookSecret == "" {
			return models.ConfigError{Message: "WhatsApp webhook secret is required in production (set WHATSAPP_WEBHOOK_SECRET environment variable)"}
		}
		if c.WhatsApp.VerifyToken == "" {
			return models.ConfigError{Message: "WhatsApp verify token is required in production (set WHATSAPP_VERIFY_TOKEN environment variable)"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		// In development, warn if secrets are missing
		if c.WhatsApp.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: WhatsApp webhook secret not set. Every signed callback will be rejected until WHATSAPP_WEBHOOK_SECRET is set.\n")
		}
	}

	return nil
}
