package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/Skotchmaster/userauth/internal/activation"
	"github.com/Skotchmaster/userauth/internal/admission"
	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/config"
	"github.com/Skotchmaster/userauth/internal/db"
	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/hash"
	"github.com/Skotchmaster/userauth/internal/housekeeping"
	"github.com/Skotchmaster/userauth/internal/httpserver"
	"github.com/Skotchmaster/userauth/internal/logging"
	authmw "github.com/Skotchmaster/userauth/internal/middleware"
	"github.com/Skotchmaster/userauth/internal/notify"
	"github.com/Skotchmaster/userauth/internal/repo"
	"github.com/Skotchmaster/userauth/internal/service"
	"github.com/Skotchmaster/userauth/internal/session"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("notice: %v, using system environment", err)
	}
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.ServiceName)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, db.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseURL})
	cancel()
	if err != nil {
		logger.Error("db init error", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("db migrate error", "error", err)
		os.Exit(1)
	}

	clk := clock.System{}
	store := repo.New(gdb)

	tks, err := tokens.New(tokens.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}, store, tokens.WithClock(clk))
	if err != nil {
		logger.Error("token service", "error", err)
		os.Exit(1)
	}

	var (
		publisher events.Publisher = events.Nop{}
		mailer    notify.ActivationSender
		producer  *events.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers)
		publisher = producer
		mailer = &notify.KafkaSender{Publisher: producer, BackendURL: cfg.BackendURL}
	} else {
		logger.Warn("KAFKA_BROKERS is empty, activation links are only logged")
		mailer = &notify.LogSender{Logger: logger, BackendURL: cfg.BackendURL}
	}

	accounts := &service.AccountService{
		Users:      store,
		Hasher:     hash.NewBcrypt(cfg.BcryptCost),
		Tokens:     tks,
		Sessions:   session.NewManager(tks),
		Activation: activation.New(store, clk, cfg.ActivationTTL),
		Mailer:     mailer,
		Events:     publisher,
		Clock:      clk,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(authmw.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	httpserver.Register(e, &httpserver.Deps{
		Users: &httpserver.UsersHTTP{Svc: accounts, FrontendActivationURL: cfg.FrontendActivationURL},
		Auth:  authmw.NewAuth(admission.New(tks, store)),
		Ready: func(ctx context.Context) error { return db.Ping(ctx, gdb) },
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	sweeper := &housekeeping.Worker{
		Store:    store,
		Clock:    clk,
		Interval: cfg.HousekeepingInterval,
		Logger:   logger.With("component", "housekeeping"),
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		sweeper.Run(workerCtx)
	}()

	go func() {
		logger.Info("http server starting", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopWorker()
	<-workerDone

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	closeDB(logger, gdb)

	logger.Info("shutdown complete")
}

func closeDB(logger *slog.Logger, gdb *gorm.DB) {
	sqlDB, err := gdb.DB()
	if err != nil {
		logger.Error("db() error", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("db close error", "error", err)
	}
}
