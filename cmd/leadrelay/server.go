package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/events"
	"leadrelay/internal/httputil"
	"leadrelay/internal/middleware"
	"leadrelay/internal/models"
	"leadrelay/internal/service"
	"leadrelay/internal/tracing"
	"leadrelay/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *mux.Router
	handler    http.Handler
	logger     *logrus.Logger
	cfg        *models.Config
	dispatcher service.Dispatcher
	hub        *events.Hub
	limiter    *RateLimiter
	validator  atomic.Pointer[validation.Validator]
	verbose    bool
	server     *http.Server
}

func NewServer(cfg *models.Config, dispatcher service.Dispatcher, hub *events.Hub, logger *logrus.Logger) *Server {
	rateLimit := cfg.Server.RateLimit
	if rateLimit <= 0 {
		rateLimit = constants.DefaultRateLimit
	}
	window := time.Duration(cfg.Server.RateWindowSec) * time.Second
	if window <= 0 {
		window = time.Duration(constants.DefaultRateWindowSec) * time.Second
	}

	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		hub:        hub,
		limiter:    NewRateLimiter(rateLimit, window),
	}
	s.validator.Store(validation.NewValidator(cfg.Validation.RequiredFields))

	s.setupRoutes()
	// CORS sits outside the router so preflights reach it before method matching
	s.handler = middleware.CORSMiddleware(cfg.Server.AllowedOrigins)(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.cfg.Server.TrustForwarded))
	if s.logger.IsLevelEnabled(logrus.DebugLevel) {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/submissions", s.handleSubmission()).Methods(http.MethodPost)
	api.HandleFunc("/pending", s.requireAdmin(s.handleListPending())).Methods(http.MethodGet)
	api.HandleFunc("/pending/retry", s.requireAdmin(s.handleRetryAll())).Methods(http.MethodPost)
	api.HandleFunc("/selftest", s.requireAdmin(s.handleSelfTest())).Methods(http.MethodPost)
	api.HandleFunc("/events", s.requireAdmin(s.handleEvents())).Methods(http.MethodGet)
}

// UpdateRequiredFields swaps the validation rules; used on config reload
func (s *Server) UpdateRequiredFields(required map[string][]string) {
	s.validator.Store(validation.NewValidator(required))
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port <= 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return service.WithVerbose(context.Background(), s.verbose)
		},
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

type submissionRequest struct {
	Fields   models.FieldSet `json:"fields"`
	FormType string          `json:"formType"`
	Context  struct {
		PageURL          string `json:"pageUrl"`
		UserAgent        string `json:"userAgent"`
		ScreenResolution string `json:"screenResolution"`
		Referrer         string `json:"referrer"`
	} `json:"context"`
}

type queuedResponse struct {
	OK      bool   `json:"ok"`
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

func (s *Server) handleSubmission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := s.logger.WithField(service.LogFieldRequestID, tracing.GetRequestID(ctx))

		clientIP := httputil.GetClientIP(r, s.cfg.Server.TrustForwarded)
		if !s.limiter.Allow(clientIP) {
			log.WithField(service.LogFieldRemoteIP, clientIP).Warn("Submission rate limit exceeded")
			s.writeError(w, errors.NewRateLimitError(s.limiter.limit, s.limiter.window.String()))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxSubmissionBodyBytes)
		var req submissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid submission body").
				WithUserMessage("Некорректный формат заявки"))
			return
		}

		if err := validation.ValidateFormType(req.FormType); err != nil {
			s.writeError(w, err)
			return
		}

		fields := validation.CoerceFields(req.Fields)
		if err := s.validator.Load().ValidateSubmission(fields, req.FormType); err != nil {
			log.WithFields(errors.Fields(err)).Info("Submission rejected by validation")
			s.writeError(w, err)
			return
		}

		env := models.ClientContext{
			PageURL:          req.Context.PageURL,
			UserAgent:        req.Context.UserAgent,
			ScreenResolution: req.Context.ScreenResolution,
			Referrer:         req.Context.Referrer,
		}
		if env.UserAgent == "" {
			env.UserAgent = r.UserAgent()
		}
		if env.Referrer == "" {
			env.Referrer = r.Referer()
		}
		if env.PageURL == "" {
			env.PageURL = r.Referer()
		}

		result, err := s.dispatcher.Dispatch(ctx, fields, req.FormType, env)
		if err != nil {
			if appErr, ok := errors.As(err); ok && appErr.Code == errors.ErrCodeTotalDeliveryFailure {
				queued, _ := appErr.Context["queued"].(bool)
				writeJSON(w, http.StatusServiceUnavailable, queuedResponse{
					OK:      false,
					Queued:  queued,
					Message: errors.GetUserMessage(err),
				})
				return
			}
			log.WithError(err).Error("Submission dispatch failed")
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.dispatcher.ListPending(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleRetryAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.dispatcher.RetryAll(r.Context())
		if err != nil && summary == nil {
			s.writeError(w, err)
			return
		}
		if err != nil {
			s.logger.WithError(err).Warn("Pending retry interrupted")
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleSelfTest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.dispatcher.SelfTest(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// requireAdmin guards operator routes with the admin bearer token. Without a
// configured token the routes do not exist.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := s.cfg.Server.AdminToken
		if expected == "" {
			http.NotFound(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			// browsers cannot set headers on a websocket handshake
			token = r.URL.Query().Get("token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldURL:       r.URL.Path,
			}).Warn("Rejected operator request with invalid admin token")
			s.writeError(w, errors.New(errors.ErrCodeAuthentication, "invalid admin token").WithUserMessage("Unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatusCode(err), errors.ToHTTPResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
