package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}

func TestParseDeliveryStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected DeliveryStatus
		ok       bool
	}{
		{"sent", DeliveryStatusSent, true},
		{"delivered", DeliveryStatusDelivered, true},
		{"READ", DeliveryStatusRead, true},
		{"failed", DeliveryStatusFailed, true},
		{"deleted", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			status, ok := ParseDeliveryStatus(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestCredential_ValidAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	margin := 5 * time.Minute

	tests := []struct {
		name     string
		cred     Credential
		expected bool
	}{
		{"fresh", Credential{Token: "t", ExpiresAt: now.Add(time.Hour)}, true},
		{"inside margin", Credential{Token: "t", ExpiresAt: now.Add(4 * time.Minute)}, false},
		{"exactly at margin", Credential{Token: "t", ExpiresAt: now.Add(margin)}, false},
		{"expired", Credential{Token: "t", ExpiresAt: now.Add(-time.Minute)}, false},
		{"empty token", Credential{ExpiresAt: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cred.ValidAt(now, margin))
		})
	}
}
