package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/feed"
	"github.com/soulxhy/tubewatch/internal/log"
	"github.com/soulxhy/tubewatch/internal/metrics"
	"github.com/soulxhy/tubewatch/internal/queue"
)

// Server receives push notifications over HTTP: the GET subscription
// handshake and the POST notification pipeline (verify, parse, enqueue).
type Server struct {
	cfg     config.WebhookConfig
	sink    EventSink
	parser  *feed.Parser
	mhandle http.Handler
	logger  *slog.Logger
	server  *http.Server
}

// New creates a webhook server. metricsHandler may be nil to disable the
// /metrics route.
func New(cfg config.WebhookConfig, sink EventSink, metricsHandler http.Handler) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Server{
		cfg:     cfg,
		sink:    sink,
		parser:  feed.NewParser(),
		mhandle: metricsHandler,
		logger:  log.WithComponent("webhook"),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.cfg.Listen, "path", s.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get(s.cfg.Path, s.handleChallenge)
	r.Post(s.cfg.Path, s.handleNotification)
	if s.mhandle != nil {
		r.Handle("/metrics", s.mhandle)
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleChallenge answers the hub's subscription-verification handshake by
// echoing hub.challenge. An absent challenge still returns 200 with an empty
// body.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	if challenge != "" {
		s.logger.Info("subscription handshake",
			"hub.mode", r.URL.Query().Get("hub.mode"),
			"hub.topic", r.URL.Query().Get("hub.topic"),
			"hub.lease_seconds", r.URL.Query().Get("hub.lease_seconds"),
		)
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleNotification runs the inbound pipeline: size limit, signature check,
// parse, enqueue. Once events are accepted the response is committed to 204;
// dispatch outcomes never surface here.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limitedReader := io.LimitReader(r.Body, s.cfg.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusInternalServerError)
		return
	}
	if int64(len(body)) > s.cfg.MaxBodySize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	signature := r.Header.Get(s.cfg.SignatureHeader)
	if err := verifySignature(body, signature, s.cfg.Secret); err != nil {
		s.logger.Warn("signature verification failed",
			"header", s.cfg.SignatureHeader,
			"present", signature != "",
		)
		metrics.NotificationsReceived.WithLabelValues(metrics.ResultSignatureMismatch).Inc()
		http.Error(w, msgSignatureMismatch, http.StatusForbidden)
		return
	}

	events, err := s.parser.Parse(body)
	if err != nil {
		var pe *feed.ParseError
		switch {
		case errors.As(err, &pe):
			s.logger.Warn("notification body is not well-formed XML", "error", pe.Unwrap())
		case errors.Is(err, feed.ErrNoValidEntries):
			s.logger.Warn("notification had no valid entries")
		}
		metrics.NotificationsReceived.WithLabelValues(metrics.ResultInvalidXML).Inc()
		http.Error(w, msgInvalidXML, http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		deliveryID, err := s.sink.Enqueue(ctx, ev)
		if errors.Is(err, queue.ErrDuplicateDelivery) {
			s.logger.Info("duplicate notification acknowledged", "video_id", ev.VideoID)
			metrics.NotificationsReceived.WithLabelValues(metrics.ResultDuplicate).Inc()
			continue
		}
		if err != nil {
			s.logger.Error("failed to enqueue delivery", "video_id", ev.VideoID, "error", err)
			http.Error(w, "failed to accept notification", http.StatusInternalServerError)
			return
		}
		s.logger.Info("delivery enqueued",
			"delivery_id", deliveryID,
			"video_id", ev.VideoID,
			"title", ev.Title,
		)
		metrics.NotificationsReceived.WithLabelValues(metrics.ResultAccepted).Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}
