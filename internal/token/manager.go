package token

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wagateway/internal/constants"
	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"
	"wagateway/internal/retry"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// resolveTimeout bounds one run of the fallback chain. It is detached from
// the caller so that a cancelled waiter cannot fail the shared resolution.
const resolveTimeout = 60 * time.Second

var (
	errStaticNotConfigured   = stderrors.New("static token not configured")
	errSystemNotConfigured   = stderrors.New("system user token not configured")
	errExchangeNotConfigured = stderrors.New("app id, app secret and system user id are required for the exchange")
)

// GraphClient is the subset of the Cloud API client the manager needs.
type GraphClient interface {
	DebugToken(ctx context.Context, accessToken, inputToken string) (*types.DebugTokenData, error)
	AppAccessToken(ctx context.Context) (*types.AccessTokenResponse, error)
	SystemUserAccessToken(ctx context.Context, appAccessToken string) (*types.AccessTokenResponse, error)
}

// Config lists the credential sources in fallback order.
type Config struct {
	StaticToken     string
	SystemUserToken string
	AppID           string
	AppSecret       string
	SystemUserID    string

	TTL          time.Duration
	SafetyMargin time.Duration
	Backoff      retry.BackoffConfig
}

// ConfigFromModel builds a manager Config from the WhatsApp config section.
func ConfigFromModel(c models.WhatsAppConfig) Config {
	return Config{
		StaticToken:     c.AccessToken,
		SystemUserToken: c.SystemUserToken,
		AppID:           c.AppID,
		AppSecret:       c.AppSecret,
		SystemUserID:    c.SystemUserID,
	}
}

// Info describes the credential currently in use.
type Info struct {
	Source    models.CredentialSource `json:"source"`
	ExpiresAt time.Time               `json:"expires_at"`
	Debug     *types.DebugTokenData   `json:"debug,omitempty"`
}

// Manager acquires, caches and refreshes the bearer credential used for every
// outbound Cloud API call.
type Manager struct {
	cfg     Config
	client  GraphClient
	cache   Cache
	logger  *logrus.Logger
	metrics *metrics.Registry
	backoff *retry.Backoff
	events  events.Publisher
	now     func() time.Time
	group   singleflight.Group

	// generation advances on every invalidation; a flight that started
	// under an older generation must not write the cache.
	mu         sync.Mutex
	generation uint64
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics records into registry instead of the global one.
func WithMetrics(registry *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = registry }
}

// WithEvents announces every freshly resolved credential on publisher.
func WithEvents(publisher events.Publisher) Option {
	return func(m *Manager) { m.events = publisher }
}

func NewManager(cfg Config, client GraphClient, cache Cache, logger *logrus.Logger, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.TokenCacheTTL
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = constants.TokenSafetyMargin
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = retry.TokenRefreshConfig()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	m := &Manager{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		logger:  logger,
		metrics: metrics.GetRegistry(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	backoffCfg := cfg.Backoff
	backoffCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Token network call failed, retrying")
	}
	m.backoff = retry.NewBackoff(backoffCfg)
	return m
}

// GetAccessToken returns a credential valid for at least the safety margin.
// Concurrent callers that miss the cache share one resolution. When every
// source fails the error carries ErrCodeProviderAuth and joins each step's
// cause.
func (m *Manager) GetAccessToken(ctx context.Context) (models.Credential, error) {
	if cred, ok := m.cached(); ok {
		m.metrics.RecordTokenCacheHit()
		return cred, nil
	}

	ch := m.group.DoChan(constants.TokenCacheKey, func() (interface{}, error) {
		gen := m.currentGeneration()

		// Another flight may have filled the cache while we queued
		if cred, ok := m.cached(); ok {
			return cred, nil
		}

		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()

		cred, err := m.resolve(resolveCtx)
		if err != nil {
			return models.Credential{}, err
		}
		if !m.store(gen, cred) {
			m.logger.WithField("source", cred.Source).Debug("Credential resolved across an invalidation, not cached")
			return cred, nil
		}
		if m.events != nil {
			m.events.Publish(events.Event{
				Type: events.TypeTokenRefreshed,
				Data: map[string]interface{}{
					"source":     string(cred.Source),
					"expires_at": cred.ExpiresAt,
				},
			})
		}
		return cred, nil
	})

	select {
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Credential{}, res.Err
		}
		return res.Val.(models.Credential), nil
	}
}

// Invalidate drops the cached credential so the next call re-resolves.
func (m *Manager) Invalidate() {
	m.invalidate("explicit")
}

func (m *Manager) invalidate(reason string) {
	m.mu.Lock()
	m.generation++
	m.cache.Delete(constants.TokenCacheKey)
	m.mu.Unlock()
	// Later callers start a new flight instead of joining the stale one
	m.group.Forget(constants.TokenCacheKey)

	m.metrics.RecordTokenInvalidation(reason)
	m.logger.WithField("reason", reason).Info("Access token invalidated")
}

// Refresh invalidates the cache and resolves a fresh credential.
func (m *Manager) Refresh(ctx context.Context) (models.Credential, error) {
	m.invalidate("manual_refresh")
	return m.GetAccessToken(ctx)
}

// TokenInfo introspects the current credential through debug_token.
func (m *Manager) TokenInfo(ctx context.Context) (*Info, error) {
	cred, err := m.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	data, err := m.client.DebugToken(ctx, cred.Token, cred.Token)
	if err != nil {
		return nil, fmt.Errorf("debug_token failed: %w", err)
	}
	return &Info{Source: cred.Source, ExpiresAt: cred.ExpiresAt, Debug: data}, nil
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// store caches cred unless an invalidation happened since gen was read.
func (m *Manager) store(gen uint64, cred models.Credential) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	m.cache.Set(constants.TokenCacheKey, cred)
	return true
}

func (m *Manager) cached() (models.Credential, bool) {
	cred, ok := m.cache.Get(constants.TokenCacheKey)
	if !ok || !cred.ValidAt(m.now(), m.cfg.SafetyMargin) {
		return models.Credential{}, false
	}
	return cred, true
}

type step struct {
	source models.CredentialSource
	run    func(context.Context) (string, error)
}

func (m *Manager) resolve(ctx context.Context) (models.Credential, error) {
	steps := []step{
		{models.CredentialSourceStatic, m.staticToken},
		{models.CredentialSourceSystem, m.systemToken},
		{models.CredentialSourceExchange, m.exchangeToken},
	}

	var failures []error
	for _, s := range steps {
		token, err := s.run(ctx)
		if err == nil && token != "" {
			m.metrics.RecordTokenResolution(string(s.source), nil)
			m.logger.WithField("source", s.source).Info("Access token resolved")
			// The provider's own expiry is ignored; the cache TTL governs reuse
			return models.Credential{
				Token:     token,
				ExpiresAt: m.now().Add(m.cfg.TTL),
				Source:    s.source,
			}, nil
		}
		if err == nil {
			err = stderrors.New("empty token")
		}
		m.metrics.RecordTokenResolution(string(s.source), err)
		m.logger.WithError(err).WithField("source", s.source).Debug("Token source unavailable, trying next")
		failures = append(failures, fmt.Errorf("%s: %w", s.source, err))
	}

	return models.Credential{}, apperrors.NewProviderAuthError(stderrors.Join(failures...))
}

func (m *Manager) staticToken(context.Context) (string, error) {
	if m.cfg.StaticToken == "" {
		return "", errStaticNotConfigured
	}
	return m.cfg.StaticToken, nil
}

func (m *Manager) systemToken(ctx context.Context) (string, error) {
	token := m.cfg.SystemUserToken
	if token == "" {
		return "", errSystemNotConfigured
	}

	data, err := retry.Do(ctx, m.backoff, func(ctx context.Context) (*types.DebugTokenData, error) {
		return m.client.DebugToken(ctx, token, token)
	}, isTransient)
	if err != nil {
		return "", fmt.Errorf("debug_token: %w", err)
	}
	if !data.IsValid {
		return "", stderrors.New("system user token reported invalid")
	}
	if data.ExpiresAt > 0 && !m.now().Before(time.Unix(data.ExpiresAt, 0)) {
		return "", stderrors.New("system user token expired")
	}
	return token, nil
}

func (m *Manager) exchangeToken(ctx context.Context) (string, error) {
	if m.cfg.AppID == "" || m.cfg.AppSecret == "" || m.cfg.SystemUserID == "" {
		return "", errExchangeNotConfigured
	}

	app, err := retry.Do(ctx, m.backoff, m.client.AppAccessToken, isTransient)
	if err != nil {
		return "", fmt.Errorf("app access token: %w", err)
	}

	system, err := retry.Do(ctx, m.backoff, func(ctx context.Context) (*types.AccessTokenResponse, error) {
		return m.client.SystemUserAccessToken(ctx, app.AccessToken)
	}, isTransient)
	if err != nil {
		return "", fmt.Errorf("system user exchange: %w", err)
	}
	return system.AccessToken, nil
}

// isTransient retries transport failures and provider 5xx answers; 4xx
// answers are final.
func isTransient(err error) bool {
	var apiErr *whatsapp.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
