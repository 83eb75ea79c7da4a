package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wagateway/internal/constants"
	apperrors "wagateway/internal/errors"
	"wagateway/internal/httputil"
	"wagateway/internal/metrics"
	"wagateway/internal/middleware"
	"wagateway/internal/models"
	"wagateway/internal/privacy"
	"wagateway/internal/service"
	"wagateway/internal/token"
	"wagateway/internal/tracing"
	"wagateway/pkg/whatsapp"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxAPIBodyBytes = 64 << 10

// WebhookHandler processes a verified callback body.
type WebhookHandler interface {
	ProcessWebhook(ctx context.Context, body []byte)
}

// MessageDispatcher is the outbound surface exposed over HTTP.
type MessageDispatcher interface {
	Send(ctx context.Context, to, content, templateName string) (*models.DispatchResult, error)
	SendText(ctx context.Context, to, body string) (*models.DispatchResult, error)
	SendTemplate(ctx context.Context, to, templateName, languageCode string, params []string) (*models.DispatchResult, error)
	SendInvitation(ctx context.Context, to, name, link string) (*models.DispatchResult, error)
}

// TokenAdmin backs the token maintenance endpoints.
type TokenAdmin interface {
	Refresh(ctx context.Context) (models.Credential, error)
	TokenInfo(ctx context.Context) (*token.Info, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP server routes to.
type Dependencies struct {
	Verifier   whatsapp.SignatureVerifier
	Processor  WebhookHandler
	Dispatcher MessageDispatcher
	Tokens     TokenAdmin
	Health     HealthChecker
	Events     http.Handler

	// Verbose lets request handlers log unmasked phone numbers and content.
	Verbose bool
}

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	cfg    *models.Config
	deps   Dependencies
	server *http.Server
}

func NewServer(cfg *models.Config, deps Dependencies, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		cfg:    cfg,
		deps:   deps,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	if s.deps.Verbose {
		s.router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := context.WithValue(r.Context(), service.VerboseContextKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook").Subrouter()
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, "whatsapp"))
	webhook.HandleFunc("", s.handleWebhookVerify()).Methods(http.MethodGet)
	webhook.HandleFunc("", s.handleWebhook()).Methods(http.MethodPost)

	s.router.HandleFunc("/token/refresh", s.handleTokenRefresh()).Methods(http.MethodPost)
	s.router.HandleFunc("/token/info", s.handleTokenInfo()).Methods(http.MethodGet)

	s.router.HandleFunc("/send-test-message", s.handleSendTestMessage()).Methods(http.MethodPost)
	s.router.HandleFunc("/send-template-message", s.handleSendTemplateMessage()).Methods(http.MethodPost)
	s.router.HandleFunc("/send-message", s.handleSendMessage()).Methods(http.MethodPost)
	s.router.HandleFunc("/invitation", s.handleInvitation()).Methods(http.MethodPost)

	if s.deps.Events != nil && !s.cfg.Server.DisableEvents {
		s.router.Handle("/events", s.deps.Events).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, apperrors.NewNotFoundError("route", r.URL.Path))
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Health != nil {
			if err := s.deps.Health.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check failed")
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// handleWebhookVerify answers the subscription handshake.
func (s *Server) handleWebhookVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !s.deps.Verifier.VerifyHandshake(query.Get("hub.mode"), query.Get("hub.verify_token")) {
			s.logger.WithField(service.LogFieldRemoteIP, httputil.GetClientIP(r)).Warn("Webhook verification failed")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		s.logger.Info("Webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(query.Get("hub.challenge")))
	}
}

// handleWebhook authenticates and processes a callback. Anything past the
// signature check is acknowledged with 200 so the provider does not retry.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registry := metrics.GetRegistry()

		body, err := httputil.ReadLimitedBody(r, s.cfg.Server.WebhookMaxBodyBytes)
		if err != nil {
			registry.RecordWebhookRequest("unreadable")
			if errors.Is(err, httputil.ErrBodyTooLarge) {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		if !s.deps.Verifier.Verify(body, r.Header.Get(constants.WebhookSignatureHeader)) {
			registry.RecordWebhookRequest("invalid_signature")
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldRemoteIP:  httputil.GetClientIP(r),
			}).Warn("Rejected webhook with invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		// Processing may outlast the server WriteTimeout; the acknowledgement
		// written afterwards must still reach the provider.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		// The provider may drop the connection once it has its 200; processing
		// must not be cancelled with it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), constants.WebhookProcessTimeoutSec*time.Second)
		defer cancel()
		s.deps.Processor.ProcessWebhook(ctx, body)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timeout := apperrors.NewTimeoutError("webhook processing", (constants.WebhookProcessTimeoutSec * time.Second).String())
			apperrors.Entry(s.logger, timeout).Warn("Webhook processing ran past its deadline")
		}

		registry.RecordWebhookRequest("accepted")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

type tokenRefreshResponse struct {
	Success   bool                    `json:"success"`
	Message   string                  `json:"message"`
	Source    models.CredentialSource `json:"source,omitempty"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
}

func (s *Server) handleTokenRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := s.deps.Tokens.Refresh(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		expiresAt := cred.ExpiresAt
		s.writeJSON(w, http.StatusOK, tokenRefreshResponse{
			Success:   true,
			Message:   "Token refreshed",
			Source:    cred.Source,
			ExpiresAt: &expiresAt,
		})
	}
}

func (s *Server) handleTokenInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.deps.Tokens.TokenInfo(r.Context())
		if err != nil {
			if _, ok := apperrors.AsAppError(err); !ok {
				err = apperrors.Wrap(err, apperrors.ErrCodeProviderAPI, "token introspection failed")
			}
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, info)
	}
}

type sendTestMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type sendTemplateMessageRequest struct {
	To           string   `json:"to"`
	TemplateName string   `json:"template_name"`
	LanguageCode string   `json:"language_code"`
	Parameters   []string `json:"parameters"`
}

type sendMessageRequest struct {
	To           string `json:"to"`
	Message      string `json:"message"`
	TemplateName string `json:"template_name"`
}

type invitationRequest struct {
	To   string `json:"to"`
	Name string `json:"name"`
	Link string `json:"link"`
}

type sendResponse struct {
	Success      bool            `json:"success"`
	MessageID    string          `json:"message_id"`
	Mode         models.SendMode `json:"mode"`
	TemplateName string          `json:"template_name,omitempty"`
	Warning      string          `json:"warning,omitempty"`
}

func (s *Server) handleSendTestMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendTestMessageRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Message == "" {
			req.Message = constants.DefaultTestMessage
		}
		result, err := s.deps.Dispatcher.SendText(r.Context(), req.To, req.Message)
		s.writeSendResult(w, r, result, err)
	}
}

func (s *Server) handleSendTemplateMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendTemplateMessageRequest
		if !s.decode(w, r, &req) {
			return
		}
		result, err := s.deps.Dispatcher.SendTemplate(r.Context(), req.To, req.TemplateName, req.LanguageCode, req.Parameters)
		s.writeSendResult(w, r, result, err)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if !s.decode(w, r, &req) {
			return
		}
		result, err := s.deps.Dispatcher.Send(r.Context(), req.To, req.Message, req.TemplateName)
		s.writeSendResult(w, r, result, err)
	}
}

func (s *Server) handleInvitation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invitationRequest
		if !s.decode(w, r, &req) {
			return
		}
		result, err := s.deps.Dispatcher.SendInvitation(r.Context(), req.To, req.Name, req.Link)
		s.writeSendResult(w, r, result, err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("Request body must be valid JSON"))
		return false
	}
	return true
}

// writeSendResult answers 200 whenever the provider accepted the message. A
// persistence failure after acceptance is reported as a warning because the
// message is already on its way.
func (s *Server) writeSendResult(w http.ResponseWriter, r *http.Request, result *models.DispatchResult, err error) {
	if result == nil {
		if err == nil {
			err = apperrors.New(apperrors.ErrCodeInternalError, "send returned no result")
		}
		s.writeError(w, r, err)
		return
	}

	resp := sendResponse{
		Success:      true,
		MessageID:    result.MessageID,
		Mode:         result.Mode,
		TemplateName: result.TemplateName,
	}
	if err != nil {
		s.errorEntry(err).WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
			Error("Message accepted but not recorded")
		resp.Warning = apperrors.GetUserMessage(err)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := apperrors.HTTPStatusCode(err)

	entry := s.errorEntry(err).WithFields(logrus.Fields{
		service.LogFieldRequestID:  requestID,
		service.LogFieldURL:        r.URL.Path,
		service.LogFieldStatusCode: status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	s.writeJSON(w, status, apperrors.ToHTTPResponse(err, requestID))
}

// errorEntry logs the error context with phone numbers and tokens masked.
func (s *Server) errorEntry(err error) *logrus.Entry {
	return s.logger.WithError(err).WithFields(privacy.MaskSensitiveFields(apperrors.Fields(err)))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
