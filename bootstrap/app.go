package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"formdesk/api"
	"formdesk/auth"
	"formdesk/config"
	"formdesk/util/goroutine"

	"go.uber.org/zap"
)

// App represents the formdesk application with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Storage *StorageComponents

	// Services
	Auth      *auth.Authenticator
	APIServer *api.API

	// Lifecycle
	serviceWg    *sync.WaitGroup
	serverErrCh  chan error
	shutdownOnce sync.Once
}

// NewApp loads configuration and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := InitConfig()
	if err != nil {
		return nil, err
	}

	logger, _, err := InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig initializes all components from an already loaded configuration.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	app := &App{
		Config:      cfg,
		Logger:      logger,
		Sugar:       sugar,
		serviceWg:   &sync.WaitGroup{},
		serverErrCh: make(chan error, 1),
	}

	sugar.Info("formdesk starting...")
	LogConfig(cfg, sugar)

	components, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = components

	authenticator, err := auth.New(AuthConfig(cfg), components.KV, sugar)
	if err != nil {
		components.Close(sugar)
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}
	app.Auth = authenticator

	app.APIServer = api.NewAPI(authenticator, components.Submissions, map[string]api.Pinger{
		"kv":       components.KV,
		"database": components.SQLite,
	}, cfg, sugar)

	return app, nil
}

// Start starts all application services.
func (a *App) Start(ctx context.Context) error {
	return a.startAPIServer()
}

func (a *App) startAPIServer() error {
	addr := a.Config.Server.Address
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("api-server", a.Sugar)
		a.Sugar.Infow("Starting API server", "address", addr)
		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server failed", "error", err)
			a.serverErrCh <- err
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or the server
// stops on its own.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-a.serverErrCh:
		a.Sugar.Errorw("API server stopped unexpectedly", "error", err)
	}
}

// Shutdown gracefully shuts down all components. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Phase 1 - Stop accepting requests and drain in-flight ones
	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	// Phase 2 - Wait for service goroutines
	a.Sugar.Info("Phase 2: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(timeout + 5*time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	// Phase 3 - Close stores after no request can reach them
	a.Sugar.Info("Phase 3: Closing store connections...")
	if a.Storage != nil {
		a.Storage.Close(a.Sugar)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
