// Package api provides the HTTP server for ScreenPipe.
//
// It exposes the per-turn /ask endpoint, operator endpoints for criteria,
// candidates, chat logs and outreach, and the Twilio inbound webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/flow"
	"github.com/BTreeMap/ScreenPipe/internal/messaging"
	"github.com/BTreeMap/ScreenPipe/internal/notify"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
	"github.com/BTreeMap/ScreenPipe/internal/store"
)

// Constants for server configuration
const (
	DefaultServerAddress = ":8080"
	ShutdownTimeout      = 10 * time.Second
	ReadHeaderTimeout    = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	MsgService    messaging.Service
	Twilio        *messaging.TwilioService
	Notifier      *notify.AdminNotifier
	StepKeys      qualify.StepKeys
	OutreachDelay time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMessagingService sets the transport used for outreach.
func WithMessagingService(svc messaging.Service) Option {
	return func(o *Opts) { o.MsgService = svc }
}

// WithTwilioWebhook exposes POST /twilio/webhook for the given service.
func WithTwilioWebhook(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// WithNotifier sets the admin notifier behind POST /notify.
func WithNotifier(n *notify.AdminNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithStepKeys sets the answer keys used to score externally supplied candidates.
func WithStepKeys(k qualify.StepKeys) Option {
	return func(o *Opts) { o.StepKeys = k }
}

// WithOutreachDelay sets the pause between outreach messages.
func WithOutreachDelay(d time.Duration) Option {
	return func(o *Opts) { o.OutreachDelay = d }
}

// Server holds the HTTP dependencies.
type Server struct {
	engine     *flow.Engine
	st         store.Store
	criteria   *qualify.CriteriaStore
	msgService messaging.Service
	twilio     *messaging.TwilioService
	notifier   *notify.AdminNotifier
	outreach   *messaging.Outreach
	keys       qualify.StepKeys
	addr       string

	// background work (outreach) is bound to this context
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a Server.
func NewServer(engine *flow.Engine, st store.Store, criteria *qualify.CriteriaStore, opts ...Option) *Server {
	cfg := Opts{
		Addr:          DefaultServerAddress,
		StepKeys:      qualify.DefaultStepKeys(),
		OutreachDelay: messaging.DefaultOutreachDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MsgService == nil {
		cfg.MsgService = messaging.NewLogService()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewAdminNotifier(nil, "")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine:     engine,
		st:         st,
		criteria:   criteria,
		msgService: cfg.MsgService,
		twilio:     cfg.Twilio,
		notifier:   cfg.Notifier,
		outreach:   messaging.NewOutreach(cfg.MsgService, cfg.OutreachDelay),
		keys:       cfg.StepKeys,
		addr:       cfg.Addr,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Routes returns the request multiplexer.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.askHandler)
	mux.HandleFunc("GET /ping", s.pingHandler)
	mux.HandleFunc("GET /active-chats", s.activeChatsHandler)
	mux.HandleFunc("GET /criteria", s.getCriteriaHandler)
	mux.HandleFunc("PATCH /criteria", s.patchCriteriaHandler)
	mux.HandleFunc("GET /candidates", s.listCandidatesHandler(false))
	mux.HandleFunc("GET /candidates/qualified", s.listCandidatesHandler(true))
	mux.HandleFunc("POST /candidates", s.upsertCandidateHandler)
	mux.HandleFunc("GET /chatlogs/{sender}", s.chatLogHandler)
	mux.HandleFunc("DELETE /conversations/{sender}", s.resetConversationHandler)
	mux.HandleFunc("GET /ai-fallback", s.getAIFallbackHandler)
	mux.HandleFunc("PUT /ai-fallback", s.putAIFallbackHandler)
	mux.HandleFunc("POST /outreach", s.outreachHandler)
	mux.HandleFunc("POST /notify", s.notifyHandler)
	if s.twilio != nil {
		mux.HandleFunc("POST /twilio/webhook", s.twilio.TwilioWebhookHandler)
	}
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	s.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close stops background work started by handlers.
func (s *Server) Close() {
	s.cancel()
}
