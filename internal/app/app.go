package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"commentguard/internal/auth"
	"commentguard/internal/config"
	"commentguard/internal/infrastructure/gemini"
	"commentguard/internal/infrastructure/storage"
	"commentguard/internal/infrastructure/youtube"
	"commentguard/internal/logging"
	"commentguard/internal/metrics"
	"commentguard/internal/pipeline"
	"commentguard/internal/ports"
	"commentguard/internal/retry"
	"commentguard/internal/server"
)

// Application wires configuration to the pipeline, credential manager and
// HTTP server, and owns their lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	srv    *server.Server
	db     *sql.DB
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	metricSet := metrics.New()

	source, err := youtube.NewCommentSource(ctx, cfg.YouTube.APIKey)
	if err != nil {
		return nil, fmt.Errorf("comment source: %w", err)
	}
	videos, err := youtube.NewVideoSource(ctx, cfg.YouTube.APIKey)
	if err != nil {
		return nil, fmt.Errorf("video source: %w", err)
	}

	store := auth.NewFileStore(cfg.OAuth.CredentialsFile, cfg.OAuth.StateFile)
	manager := auth.NewManager(auth.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURI,
	}, store, youtube.ResolveIdentity(), logging.Component(baseLogger, "auth"))

	moderator, err := youtube.NewModerator(ctx, manager)
	if err != nil {
		return nil, fmt.Errorf("moderator: %w", err)
	}

	classifier, err := gemini.NewClassifier(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	var (
		db         *sql.DB
		repository ports.RunRepository
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			baseLogger.Warn("database unreachable, run audit disabled", "error", err)
			db.Close()
			db = nil
		} else {
			repository = storage.NewPostgresRepository(db)
		}
	}

	caller := retry.NewCaller(retry.WithRefresher(manager))

	runner := pipeline.NewRunner(pipeline.Deps{
		Source:        source,
		Classifier:    classifier,
		Moderator:     moderator,
		Gate:          manager,
		Caller:        caller,
		Repository:    repository,
		Metrics:       metricSet,
		Logger:        logging.Component(baseLogger, "pipeline"),
		ClassifyPause: cfg.Pipeline.ClassifyPause,
		ModeratePause: cfg.Pipeline.ModeratePause,
	})

	srv := server.New(server.Deps{
		Runner:            runner,
		Classifier:        classifier,
		Videos:            videos,
		Auth:              manager,
		Runs:              repository,
		Metrics:           metricSet,
		Logger:            logging.Component(baseLogger, "http"),
		DefaultMaxResults: cfg.Pipeline.DefaultMaxResults,
	})

	return &Application{cfg: cfg, logger: baseLogger, srv: srv, db: db}, nil
}

// Run serves HTTP until the context is cancelled or a termination signal
// arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "port", a.cfg.Server.Port)
		errCh <- a.srv.Listen(a.cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down")
		if err := a.srv.Shutdown(); err != nil {
			a.logger.Error("shutdown failed", "error", err)
		}
		if a.db != nil {
			a.db.Close()
		}
		return nil
	}
}
