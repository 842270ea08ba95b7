package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/gateway"
	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokenstore"
)

// App orchestrates the lifecycle of the session gateway.
type App struct {
	cfg      *Config
	gateway  *gateway.Gateway
	registry *prometheus.Registry
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Every gateway request rebinds the client to its cookie session; this store is
	// only the template's placeholder.
	placeholder, err := session.NewStore(tokenstore.NewMemoryStore())
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	client, err := cfg.NewClient(placeholder,
		apiclient.WithMetrics(apiclient.NewMetrics(registry)),
		apiclient.WithAuthExpiredHandler(func(ctx context.Context) {
			slog.InfoContext(ctx, "browser session expired", "redirect", cfg.Session.LoginPath)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	gw, err := gateway.New(client,
		gateway.WithGatherer(registry),
		gateway.WithLoginPath(cfg.Session.LoginPath),
		gateway.WithCookieOptions(
			tokenstore.WithCookiePrefix(cfg.Session.CookiePrefix),
			tokenstore.WithCookieMaxAge(session.RefreshTokenKey, cfg.Session.RefreshMaxAge),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &App{
		cfg:      cfg,
		gateway:  gw,
		registry: registry,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting session gateway", "address", address, "api", a.cfg.API.BaseURL)
	gatewayErrCh, err := a.gateway.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.gateway.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-gatewayErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
