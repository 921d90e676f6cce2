package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/config"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/database"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flatten"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/server"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	db         *gorm.DB
	repository *catalog.Repository
	flat       *flat.Store
	sets       *related.Store
	syncer     *flatten.Syncer
	aggregator *related.Aggregator
	queue      *jobs.Queue
	hooks      *jobs.Hooks
	feed       *server.ChangeFeed
	worker     *jobs.Worker
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, db: db, feed: server.NewChangeFeed()}
	if err := app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire() error {
	var err error
	a.repository, err = catalog.NewRepository(catalog.RepositoryConfig{Database: a.db, Logger: a.logger})
	if err != nil {
		return err
	}
	a.flat, err = flat.NewStore(flat.StoreConfig{Database: a.db, Logger: a.logger})
	if err != nil {
		return err
	}
	a.sets, err = related.NewStore(related.StoreConfig{Database: a.db, Logger: a.logger})
	if err != nil {
		return err
	}
	a.syncer, err = flatten.NewSyncer(flatten.SyncerConfig{
		Source:          a.repository,
		Titles:          a.repository,
		Store:           a.flat,
		SecondaryLocale: a.config.SecondaryLocale,
		Clock:           time.Now,
		IDProvider:      flat.NewUUIDProvider(),
		Logger:          a.logger.Named("flatten"),
	})
	if err != nil {
		return err
	}
	a.aggregator, err = related.NewAggregator(related.AggregatorConfig{
		Flat:             a.flat,
		Sets:             a.sets,
		PerStrategyLimit: a.config.Related.PerStrategyLimit,
		MaxTotal:         a.config.Related.MaxTotal,
		BatchSize:        a.config.Related.BatchSize,
		PriceMinPct:      a.config.Related.PriceMinPct,
		PriceMaxPct:      a.config.Related.PriceMaxPct,
		Clock:            time.Now,
		Logger:           a.logger.Named("related"),
	})
	if err != nil {
		return err
	}
	a.queue, err = jobs.NewQueue(jobs.QueueConfig{
		Database:    a.db,
		MaxAttempts: a.config.WorkerMaxAttempts,
		RetryDelay:  a.config.WorkerRetryDelay,
		Clock:       time.Now,
		Logger:      a.logger.Named("jobs"),
	})
	if err != nil {
		return err
	}
	a.hooks, err = jobs.NewHooks(jobs.HooksConfig{Resolver: a.repository, Queue: a.queue, Logger: a.logger.Named("hooks")})
	if err != nil {
		return err
	}
	a.worker, err = jobs.NewWorker(jobs.WorkerConfig{
		Queue:        a.queue,
		Handlers:     jobs.Handlers(a.syncer, a.aggregator, a.queue, a.logger.Named("jobs")),
		PollInterval: a.config.WorkerPollInterval,
		Observer:     a.feed,
		Logger:       a.logger.Named("worker"),
	})
	return err
}

// Close releases the database handle and flushes the logger.
func (a *application) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.HookSigningSecret),
		Issuer:        appConfig.HookIssuer,
		Audience:      appConfig.HookAudience,
		TokenTTL:      appConfig.HookTokenTTL,
	})
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.logger

	tokenIssuer, err := newTokenIssuer(app.config)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authorizer: tokenIssuer,
		Hooks:      app.hooks,
		Syncer:     app.syncer,
		Queue:      app.queue,
		Flat:       app.flat,
		Related:    app.sets,
		Feed:       app.feed,
		Logger:     logger.Named("http"),
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Request contexts derive from signalCtx so open change streams end on shutdown.
	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return signalCtx
		},
	}

	workerDone := app.worker.Start(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", app.config.HTTPAddress),
			zap.String("primary_locale", app.config.PrimaryLocale),
			zap.String("secondary_locale", app.config.SecondaryLocale))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		<-workerDone
		return err
	case err := <-errCh:
		stop()
		<-workerDone
		return err
	}
}
