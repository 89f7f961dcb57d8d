package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shadowfax/internal/bot"
	"shadowfax/internal/config"
	"shadowfax/internal/logger"
	"shadowfax/internal/palantir"
	"shadowfax/internal/storage"
	"shadowfax/internal/storage/bolt"
	"shadowfax/internal/storage/ch"
	"shadowfax/internal/storage/flatfile"
	"shadowfax/internal/storage/stubs"
)

// App represents the application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	closeLog func()

	access  storage.AccessStore
	cursors storage.CursorStore
	bot     *bot.Bot
	server  *http.Server
}

// New loads configuration from path and initializes every component
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(logger.Options{
		Level:         cfg.LogLevel,
		Dir:           cfg.LogDir,
		MaxSizeMB:     cfg.LogMaxSizeMB,
		MaxBackups:    cfg.LogMaxBackups,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: log, closeLog: closeLog}

	log.Info("Starting Shadowfax",
		zap.String("token", cfg.Redacted()),
		zap.Bool("use_auth", cfg.UseAuth),
		zap.Int64("admin_id", cfg.AdminID),
		zap.Int("whitelist", len(cfg.Whitelist)),
		zap.String("palantir_url", cfg.PalantirURL),
		zap.String("access_store", cfg.AccessStore),
	)

	initialized := false
	defer func() {
		if !initialized {
			app.close()
			closeLog()
		}
	}()

	if err := app.initAccessStore(); err != nil {
		return nil, err
	}

	if err := app.initCursorStore(); err != nil {
		return nil, err
	}

	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	initialized = true
	return app, nil
}

// initAccessStore opens the admin/approved/blacklist store and makes sure the
// configured admin is listed
func (a *App) initAccessStore() error {
	var access storage.AccessStore
	switch a.config.AccessStore {
	case config.StoreClickHouse:
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.String("tls", tlsStatus),
		)
		db, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		access = db
	default:
		a.logger.Info("Using flat-file access lists", zap.String("dir", a.config.DataDir))
		access = flatfile.NewStore(a.config.DataDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := access.Initialize(ctx); err != nil {
		access.Close()
		return fmt.Errorf("failed to initialize access store: %w", err)
	}
	a.access = access

	if a.config.AdminID != 0 {
		added, err := access.AddAdmin(ctx, a.config.AdminID)
		if err != nil {
			return fmt.Errorf("failed to register admin %d: %w", a.config.AdminID, err)
		}
		if added {
			a.logger.Info("Admin registered", zap.Int64("admin_id", a.config.AdminID))
		}
	} else {
		a.logger.Warn("ADMIN_ID is not set, access requests can only be handled by listed admins")
	}

	return nil
}

func (a *App) initCursorStore() error {
	if a.config.StateFile == "" {
		a.cursors = stubs.NewMemoryCursor()
		return nil
	}

	cursors, err := bolt.OpenCursorStore(a.config.StateFile)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	a.logger.Info("Update cursor is persisted", zap.String("state_file", a.config.StateFile))
	a.cursors = cursors
	return nil
}

func (a *App) initBot() error {
	backend := palantir.NewClient(a.config.PalantirURL, a.logger.Named("palantir"))

	telegramBot, err := bot.NewBot(a.config.TelegramToken, backend, a.access, a.cursors, bot.Settings{
		UseAuth:   a.config.UseAuth,
		AdminID:   a.config.AdminID,
		Whitelist: a.config.Whitelist,
		SendDelay: a.config.BroadcastDelay,
	}, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	return nil
}

// initHTTPServer prepares the health endpoint
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	bot.NewHTTPServer(a.bot).RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// startArchiver enables daily log archival when an archiver is configured.
// A missing executable disables only this feature.
func (a *App) startArchiver(ctx context.Context) {
	if a.config.ArchiverPath == "" {
		return
	}

	archiver, err := logger.NewArchiver(a.config.ArchiverPath, a.config.LogDir, a.config.LogRetentionDays, a.logger.Named("archiver"))
	if err != nil {
		a.logger.Error("Log archival disabled", zap.Error(err))
		return
	}
	archiver.Start(ctx)
	a.logger.Info("Log archival enabled", zap.String("archiver", a.config.ArchiverPath))
}

// Run starts polling and blocks until SIGINT or SIGTERM
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.startArchiver(ctx)

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.bot.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
		runErr = <-errChan
	case runErr = <-errChan:
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	err := a.close()
	a.logger.Info("Shutdown complete")
	a.closeLog()
	return err
}

// close releases the stores
func (a *App) close() error {
	var errs []error
	if a.cursors != nil {
		if err := a.cursors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cursor store: %w", err))
		}
	}
	if a.access != nil {
		if err := a.access.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close access store: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error closing stores", zap.Error(err))
		return err
	}
	return nil
}
