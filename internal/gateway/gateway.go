// Package gateway serves the browser-facing session API. It keeps the token pair in
// HttpOnly cookies and calls the TownSpark API on the browser's behalf.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/tokenstore"
)

// DefaultLoginPath is where browsers are sent once their session has expired.
const DefaultLoginPath = "/login"

// Option configures a Gateway.
type Option func(*Gateway)

// WithLoginPath sets the redirect target reported on session expiry.
func WithLoginPath(path string) Option {
	return func(g *Gateway) {
		g.loginPath = path
	}
}

// WithCookieOptions configures the session cookies.
func WithCookieOptions(opts ...tokenstore.CookieOption) Option {
	return func(g *Gateway) {
		g.cookieOpts = append(g.cookieOpts, opts...)
	}
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(g *Gateway) {
		g.gatherer = gatherer
	}
}

// WithLogger sets the access logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// Gateway represents the session gateway server.
type Gateway struct {
	client     *apiclient.Client
	router     chi.Router
	server     *http.Server
	loginPath  string
	cookieOpts []tokenstore.CookieOption
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Compile-time check that Gateway implements http.Handler
var _ http.Handler = (*Gateway)(nil)

// New creates a gateway that serves each request with a copy of client bound to the
// request's cookie session.
func New(client *apiclient.Client, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("missing API client")
	}

	g := &Gateway{
		client:    client,
		loginPath: DefaultLoginPath,
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	r := chi.NewRouter()
	r.Use(
		RequestID,
		Logging(g.logger),
		Recovery,
	)

	r.Get("/healthz", g.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(g.withSession)

		r.Get("/session", g.handleState)
		r.Post("/session/login", g.handleLogin)
		r.Post("/session/signup", g.handleSignup)
		r.Post("/session/logout", g.handleLogout)
		r.Get("/session/me", g.handleMe)
		r.Handle("/api/*", http.HandlerFunc(g.handleForward))
	})

	g.router = r
	return g, nil
}

// ServeHTTP implements http.Handler interface
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (g *Gateway) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	g.server = &http.Server{
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // covers an API call plus one refresh and retry
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := g.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	if err := g.server.Shutdown(ctx); err != nil {
		_ = g.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
