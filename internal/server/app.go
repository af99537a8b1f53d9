// Package server initializes and runs the payroll engine server.
// It wires the repositories, the domain services and the HTTP surface,
// runs migrations, and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/audit"
	"github.com/veilpay/veilpay/internal/server/auth"
	"github.com/veilpay/veilpay/internal/server/config"
	"github.com/veilpay/veilpay/internal/server/httpapi"
	"github.com/veilpay/veilpay/internal/server/payroll"
	"github.com/veilpay/veilpay/internal/server/ratelimit"
	"github.com/veilpay/veilpay/internal/server/relay"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/server/roster"
	"github.com/veilpay/veilpay/internal/server/scheduler"
	"github.com/veilpay/veilpay/internal/server/withdrawals"
)

// sweepInterval is how often expired challenges are removed and audit
// batches are shipped.
const sweepInterval = time.Minute

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	authSvc  *auth.Service
	handler  *httpapi.Handler
	limiter  *ratelimit.Limiter
	auditLog *audit.Log
	archiver audit.Archiver
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	repos, err := repomanager.NewPostgresRepositoryManager(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := repos.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	relayClient := relay.NewHTTPClient(cfg.RelayEndpoint, logger)
	chain := relay.NewRPCChainReader(cfg.ChainRPCEndpoint)
	salt := []byte(cfg.WalletSalt)

	authSvc := auth.NewService(repos.Challenges(), repos.Organizations(), logger,
		[]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, cfg.ChallengeTTL)
	rosterSvc := roster.NewService(repos, logger, cfg.MasterKey, salt)
	payrollSvc := payroll.NewService(repos, relayClient, logger, cfg.MasterKey,
		cfg.RelayToken, scheduler.Preset(cfg.TimingPreset))
	withdrawalSvc := withdrawals.NewService(repos, relayClient, chain, logger, salt, cfg.RelayToken)

	auditLog := audit.NewLog(4096, 24*time.Hour)
	archiver, err := audit.NewS3Archiver(ctx, audit.S3Options{
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3RootUser,
		SecretAccessKey: cfg.S3RootPassword,
		Endpoint:        cfg.S3BaseEndpoint,
	}, func() int64 { return time.Now().Unix() })
	if err != nil {
		return nil, fmt.Errorf("audit archiver init error: %w", err)
	}

	handler := &httpapi.Handler{
		Auth:        authSvc,
		Roster:      rosterSvc,
		Payroll:     payrollSvc,
		Withdrawals: withdrawalSvc,
		Repos:       repos,
		Audit:       auditLog,
		Logger:      logger,
	}

	return &App{
		config:   cfg,
		logger:   logger,
		repos:    repos,
		authSvc:  authSvc,
		handler:  handler,
		limiter:  ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow, 100000),
		auditLog: auditLog,
		archiver: archiver,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	router := httpapi.NewRouter(app.handler, app.limiter)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startSweeper periodically deletes expired challenges and flushes the
// audit log to the archive.
func (app *App) startSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// final best-effort flush on shutdown
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := app.auditLog.Flush(flushCtx, app.archiver); err != nil {
				app.logger.Warn(flushCtx, "audit flush failed", "error", err.Error())
			}
			cancel()
			return
		case <-ticker.C:
			if err := app.authSvc.SweepExpired(ctx); err != nil {
				app.logger.Warn(ctx, "challenge sweep failed", "error", err.Error())
			}
			if err := app.auditLog.Flush(ctx, app.archiver); err != nil {
				app.logger.Warn(ctx, "audit flush failed", "error", err.Error())
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Wait()
}
