package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wagateway/internal/database"
	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"
	"wagateway/internal/service"
	"wagateway/internal/token"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testPhoneNumberID = "106540352242922"
	testAPIVersion    = "v21.0"
	testAccessToken   = "integration-token"
)

// GraphRequest is one call the fake Cloud API received.
type GraphRequest struct {
	Kind          string
	Authorization string
	Body          map[string]interface{}
}

// TestEnvironment wires the real store, client, token manager, dispatcher and
// webhook processor against a fake Cloud API.
type TestEnvironment struct {
	t          *testing.T
	name       string
	dbPath     string
	db         *database.Database
	graph      *httptest.Server
	tokens     *token.Manager
	dispatcher *service.Dispatcher
	processor  *service.WebhookProcessor
	hub        *events.Hub
	registry   *metrics.Registry
	cleanup    []func()

	clockMu sync.Mutex
	now     time.Time

	mockAPILock     sync.RWMutex
	mockAPIRequests []GraphRequest
	sendFailures    int
	nextMessageID   int
}

// NewTestEnvironment builds an isolated environment with its own database file
// and fake provider.
func NewTestEnvironment(t *testing.T, name string) *TestEnvironment {
	t.Helper()

	env := &TestEnvironment{
		t:      t,
		name:   name,
		dbPath: filepath.Join(t.TempDir(), name+".db"),
		now:    time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.New(env.dbPath, database.Options{})
	require.NoError(t, err)
	env.db = db
	env.addCleanup(func() { _ = db.Close() })

	env.graph = httptest.NewServer(http.HandlerFunc(env.handleGraph))
	env.addCleanup(env.graph.Close)

	env.registry = metrics.NewRegistry()
	env.hub = events.NewHub(logger, env.registry)
	env.addCleanup(env.hub.Close)

	client := whatsapp.NewClient(types.ClientConfig{
		BaseURL:       env.graph.URL,
		APIVersion:    testAPIVersion,
		PhoneNumberID: testPhoneNumberID,
		Timeout:       5 * time.Second,
	})

	env.tokens = token.NewManager(token.Config{StaticToken: testAccessToken}, client, token.NewMemoryCache(), logger,
		token.WithClock(env.Now), token.WithMetrics(env.registry), token.WithEvents(env.hub))

	opts := []service.Option{
		service.WithClock(env.Now),
		service.WithMetrics(env.registry),
		service.WithEvents(env.hub),
	}
	env.dispatcher = service.NewDispatcher(service.DispatcherConfig{}, client, env.tokens, db, logger, opts...)
	env.processor = service.NewWebhookProcessor(db, env.dispatcher, client, env.tokens,
		service.NewAutoResponder(models.AutoResponseConfig{}), logger, opts...)

	t.Cleanup(env.Cleanup)
	return env
}

func (env *TestEnvironment) addCleanup(fn func()) {
	env.cleanup = append(env.cleanup, fn)
}

// Cleanup releases resources in reverse order. It is safe to call twice.
func (env *TestEnvironment) Cleanup() {
	for i := len(env.cleanup) - 1; i >= 0; i-- {
		env.cleanup[i]()
	}
	env.cleanup = nil
}

// Now is the environment's clock.
func (env *TestEnvironment) Now() time.Time {
	env.clockMu.Lock()
	defer env.clockMu.Unlock()
	return env.now
}

// Advance moves the clock forward.
func (env *TestEnvironment) Advance(d time.Duration) {
	env.clockMu.Lock()
	defer env.clockMu.Unlock()
	env.now = env.now.Add(d)
}

// FailNextSends makes the next n message sends answer with a provider error.
func (env *TestEnvironment) FailNextSends(n int) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.sendFailures = n
}

// Requests returns the fake provider calls of the given kind ("send" or "read").
func (env *TestEnvironment) Requests(kind string) []GraphRequest {
	env.mockAPILock.RLock()
	defer env.mockAPILock.RUnlock()

	var out []GraphRequest
	for _, req := range env.mockAPIRequests {
		if req.Kind == kind {
			out = append(out, req)
		}
	}
	return out
}

// ProcessWebhook runs a raw callback through the processor.
func (env *TestEnvironment) ProcessWebhook(payload []byte) {
	env.processor.ProcessWebhook(context.Background(), payload)
}

func (env *TestEnvironment) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != fmt.Sprintf("/%s/%s/messages", testAPIVersion, testPhoneNumberID) {
		http.NotFound(w, r)
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	kind := "send"
	if body["status"] == "read" {
		kind = "read"
	}

	env.mockAPILock.Lock()
	env.mockAPIRequests = append(env.mockAPIRequests, GraphRequest{
		Kind:          kind,
		Authorization: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		Body:          body,
	})
	fail := kind == "send" && env.sendFailures > 0
	if fail {
		env.sendFailures--
	}
	env.nextMessageID++
	id := fmt.Sprintf("wamid.OUT%d", env.nextMessageID)
	env.mockAPILock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case kind == "read":
		_, _ = w.Write([]byte(`{"success":true}`))
	case fail:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"(#131047) Re-engagement message","type":"OAuthException","code":131047}}`))
	default:
		_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","contacts":[{"input":"%v","wa_id":"%v"}],"messages":[{"id":"%s"}]}`,
			body["to"], body["to"], id)
	}
}
