// Package app runs the local web dashboard for the signed-in account.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"immun/internal/client/api"
	"immun/internal/client/session"
	"immun/internal/config"
	"immun/internal/dashboard"
	"immun/internal/web/httpui"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	version   string
	buildDate string
	logger    *slog.Logger
	user      *dashboard.Shell
	admin     *dashboard.Shell
	server    *http.Server
	listener  net.Listener
}

// New restores the stored session and binds the dashboard address. The
// admin screen is only served to admin accounts.
func New(cfg config.Config, logger *slog.Logger, version, buildDate string) (*App, error) {
	store := session.NewStore(cfg.StateDir)
	sess, err := store.Active(time.Now())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	auth := session.NewContext(sess, store, logger)
	client := api.New(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithToken(auth.Token),
		api.WithLogger(logger),
	)
	opts := []dashboard.Option{
		dashboard.WithLocale(dashboard.ParseLocale(cfg.Locale)),
		dashboard.WithDocumentURL(httpui.DocumentPath),
	}
	a := &App{
		version:   version,
		buildDate: buildDate,
		logger:    logger,
		user:      dashboard.NewUserDashboard(auth, client, opts...),
	}
	if auth.IsAdmin() {
		a.admin = dashboard.NewAdminDashboard(auth, client, opts...)
	}

	ln, err := net.Listen("tcp", cfg.DashboardAddr)
	if err != nil {
		a.closeShells()
		return nil, fmt.Errorf("listen on %s: %w", cfg.DashboardAddr, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           httpui.NewHandler(a.user, a.admin, client, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// URL is the address the dashboard is reachable on.
func (a *App) URL() string {
	return "http://" + a.listener.Addr().String()
}

// Run loads the screens and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.closeShells()

	if err := a.user.Mount(ctx); err != nil {
		a.logger.Warn("initial load of own records", "error", err)
	}
	if a.admin != nil {
		if err := a.admin.Mount(ctx); err != nil {
			a.logger.Warn("initial load of all records", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("immun dashboard started",
		"url", a.URL(),
		"version", a.version,
		"build_date", a.buildDate,
		"admin", a.admin != nil,
	)
	return g.Wait()
}

func (a *App) closeShells() {
	a.user.Close()
	if a.admin != nil {
		a.admin.Close()
	}
}
