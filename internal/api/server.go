// Package api exposes LeadPipe's HTTP surface: the WhatsApp Cloud API
// webhook (verification and inbound messages), the Twilio webhook, a health
// banner, Prometheus metrics and a read-only lead listing.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server defaults.
const (
	DefaultAddr         = ":3000"
	DefaultBanner       = "LeadPipe WhatsApp bot running ✅"
	DefaultMaxBodyBytes = 1 << 20
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Enqueuer accepts inbound messages for processing. conversation.Router implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.Inbound) error
}

// LeadLister reads stored leads. The SQL stores implement it.
type LeadLister interface {
	ListLeads(ctx context.Context, vertical string, limit int) ([]models.EnrichedLead, error)
}

// Server serves the webhook endpoints.
type Server struct {
	addr            string
	verifyToken     string
	defaultVertical string
	banner          string
	maxBodyBytes    int64
	queue           Enqueuer
	leads           LeadLister
	twilioWebhook   http.HandlerFunc
	metricsHandler  http.Handler
	httpServer      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithVerifyToken sets the token expected in webhook verification requests.
func WithVerifyToken(token string) Option {
	return func(s *Server) { s.verifyToken = token }
}

// WithDefaultVertical sets the vertical of messages posted to /webhook.
func WithDefaultVertical(name string) Option {
	return func(s *Server) { s.defaultVertical = name }
}

// WithBanner sets the health-check text.
func WithBanner(text string) Option {
	return func(s *Server) {
		if text != "" {
			s.banner = text
		}
	}
}

// WithLeadLister enables GET /leads.
func WithLeadLister(l LeadLister) Option {
	return func(s *Server) { s.leads = l }
}

// WithTwilioWebhook mounts h at POST /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(s *Server) { s.twilioWebhook = h }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// NewServer creates a server feeding queue.
func NewServer(queue Enqueuer, opts ...Option) *Server {
	s := &Server{
		addr:         DefaultAddr,
		banner:       DefaultBanner,
		maxBodyBytes: DefaultMaxBodyBytes,
		queue:        queue,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifyToken == "" {
		slog.Warn("NewServer: webhook verify token not set, verification requests will be rejected")
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.healthHandler)
	r.Get("/webhook", s.verifyHandler)
	r.Post("/webhook", s.webhookHandler)
	r.Get("/webhook/{vertical}", s.verifyHandler)
	r.Post("/webhook/{vertical}", s.webhookHandler)
	r.Get("/leads", s.leadsHandler)
	if s.twilioWebhook != nil {
		r.Post("/twilio/webhook", s.twilioWebhook)
	}
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	return r
}

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("Server.Start: listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("Server.request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}
