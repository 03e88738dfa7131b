// Package api exposes the ShopPipe HTTP surface: store onboarding, chat
// widget conversations, abandoned cart sync and the recovery automation.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/chat"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Gatherer prometheus.Gatherer
	Clock    func() time.Time
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithGatherer sets the registry served on /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) {
		o.Gatherer = g
	}
}

// WithClock overrides the clock used for cart simulation.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	st     store.Store
	runner *cartrecovery.Runner
	ledger *cartrecovery.Ledger
	chat   *chat.Service
	clock  func() time.Time
	router chi.Router
	http   *http.Server
}

// NewServer wires the handlers. The chat service should share the runner's
// builder and ledger.
func NewServer(st store.Store, runner *cartrecovery.Runner, chatSvc *chat.Service, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Gatherer: prometheus.DefaultGatherer, Clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		st:     st,
		runner: runner,
		ledger: runner.Ledger(),
		chat:   chatSvc,
		clock:  o.Clock,
	}
	s.router = s.routes(o.Gatherer)
	s.http = &http.Server{
		Addr:              o.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger)

	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/automation/run", s.runAutomationHandler)
		r.Post("/automation-settings", s.createAutomationSettingsHandler)
		r.Patch("/automation-settings/{id}", s.updateAutomationSettingsHandler)

		r.Post("/stores", s.createStoreHandler)
		r.Get("/stores", s.listStoresHandler)
		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Get("/automation-settings", s.getAutomationSettingsHandler)
			r.Get("/chat-settings", s.getChatSettingsHandler)
			r.Put("/chat-settings", s.saveChatSettingsHandler)
			r.Get("/carts", s.listCartsHandler)
			r.Post("/carts", s.syncCartHandler)
			r.Post("/carts/simulate", s.simulateCartsHandler)
			r.Get("/recovery-attempts", s.listStoreAttemptsHandler)
			r.Get("/faqs", s.listFAQsHandler)
			r.Post("/faqs", s.createFAQHandler)
		})
		r.Delete("/faqs/{id}", s.deleteFAQHandler)
		r.Get("/carts/{cartID}/recovery-attempts", s.listCartAttemptsHandler)
		r.Patch("/recovery-attempts/{id}/status", s.updateAttemptStatusHandler)

		r.Post("/chat/conversations", s.startConversationHandler)
		r.Get("/chat/conversations/{id}/messages", s.listMessagesHandler)
		r.Post("/chat/conversations/{id}/messages", s.postMessageHandler)
	})
	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Server.request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("Server.Start: API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping API server")
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
