package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campuswatch/internal/metrics"
	"campuswatch/internal/middleware"
	"campuswatch/internal/models"
	"campuswatch/internal/service"
	"campuswatch/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	ingestion *service.IngestionService
	cfg       *models.Config
	server    *http.Server
}

func NewServer(cfg *models.Config, ingestion *service.IngestionService, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		ingestion: ingestion,
		cfg:       cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook/whatsapp").Subrouter()
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, "whatsapp"))
	webhook.HandleFunc("", s.handleWebhookVerification()).Methods(http.MethodGet)
	webhook.HandleFunc("", s.handleWebhookDelivery()).Methods(http.MethodPost)
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
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// handleWebhookVerification answers the platform's subscription handshake:
// GET with hub.mode=subscribe and a matching hub.verify_token must echo
// hub.challenge verbatim.
func (s *Server) handleWebhookVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		mode := query.Get("hub.mode")
		token := query.Get("hub.verify_token")
		challenge := query.Get("hub.challenge")

		if mode != "subscribe" || !s.ingestion.VerifyToken(token) {
			s.logger.WithField("mode", mode).Warn("Webhook verification rejected")
			metrics.IncrementCounter("webhook_verification_failures", nil, "Rejected subscription handshakes")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		s.logger.Info("Webhook verification succeeded")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	}
}

// handleWebhookDelivery accepts a message batch. Past the signature check,
// only a top-level parse failure produces a non-2xx; per-message failures
// are internal so the platform never retries a batch we have already begun
// processing.
func (s *Server) handleWebhookDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, int64(s.cfg.Server.MaxWebhookBodyBytes)); err != nil {
			s.logger.WithError(err).Warn("Webhook payload too large")
			http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
			return
		}

		body, err := verifySignature(r, s.cfg.Webhook.AppSecret, int64(s.cfg.Server.MaxWebhookBodyBytes))
		if err != nil {
			s.logger.WithError(err).Warn("Webhook signature verification failed")
			metrics.IncrementCounter("webhook_signature_failures", nil, "Deliveries rejected for bad signatures")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload models.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.logger.WithError(err).Warn("Webhook payload is not valid JSON")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"invalid payload"}`))
			return
		}

		s.ingestion.Ingest(r.Context(), &payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}
}
