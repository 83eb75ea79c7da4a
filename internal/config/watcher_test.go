package config

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"wagateway/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewConfigWatcher(t *testing.T) {
	logger := quietLogger()
	watcher := NewConfigWatcher("config.json", logger)

	assert.Equal(t, "config.json", watcher.configPath)
	assert.Equal(t, logger, watcher.logger)
	assert.Empty(t, watcher.callbacks)
	assert.Nil(t, watcher.GetConfig())
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	clearGatewayEnv(t)
	watcher := NewConfigWatcher("/nonexistent/config.json", quietLogger())

	err := watcher.Start(context.Background())
	assert.Error(t, err)
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	clearGatewayEnv(t)
	path := writeConfig(t, validConfig)

	watcher := NewConfigWatcher(path, quietLogger())
	watcher.interval = 10 * time.Millisecond

	var mu sync.Mutex
	var reloaded *models.Config
	watcher.OnConfigChange(func(c *models.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = c
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "info", watcher.GetConfig().LogLevel)

	updated := strings.Replace(validConfig, `"database"`, `"log_level": "warn", "database"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.LogLevel == "warn"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_CallbackPanicIsContained(t *testing.T) {
	clearGatewayEnv(t)
	path := writeConfig(t, validConfig)
	watcher := NewConfigWatcher(path, quietLogger())
	watcher.config = &models.Config{}

	called := false
	watcher.OnConfigChange(func(*models.Config) { panic("boom") })
	watcher.OnConfigChange(func(*models.Config) { called = true })

	assert.NotPanics(t, watcher.reloadConfig)
	assert.True(t, called)
}
