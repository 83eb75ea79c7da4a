package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"wagateway/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		verbose    bool
		expected   logrus.Level
	}{
		{"info", "info", false, logrus.InfoLevel},
		{"warn", "warn", false, logrus.WarnLevel},
		{"error", "error", false, logrus.ErrorLevel},
		{"debug capped without verbose", "debug", false, logrus.InfoLevel},
		{"trace capped without verbose", "trace", false, logrus.InfoLevel},
		{"invalid falls back to info", "loud", false, logrus.InfoLevel},
		{"verbose wins", "error", true, logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(io.Discard)

			applyLogLevel(logger, tt.configured, tt.verbose)

			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func testRetryConfig() models.RetryConfig {
	return models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 2, MaxAttempts: 1}
}

func TestOpenDatabase(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{
		Database: models.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
		Retry:    testRetryConfig(),
	}

	db, err := openDatabase(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpenDatabase_GivesUp(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{
		Database: models.DatabaseConfig{Path: ""},
		Retry:    testRetryConfig(),
	}

	_, err := openDatabase(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize database after retries")
}
