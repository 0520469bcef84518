package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/nailart-api/internal/blob"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/events"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/phrazzld/nailart-api/internal/notify"
	"github.com/phrazzld/nailart-api/internal/platform/azure"
	"github.com/phrazzld/nailart-api/internal/platform/cloudinary"
	"github.com/phrazzld/nailart-api/internal/platform/gemini"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/phrazzld/nailart-api/internal/platform/postgres"
	"github.com/phrazzld/nailart-api/internal/platform/redis"
	"github.com/phrazzld/nailart-api/internal/platform/riverjobs"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/service/auth"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/phrazzld/nailart-api/internal/task"
	goredis "github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
)

// stopTimeout bounds how long background components get to wind down.
const stopTimeout = 30 * time.Second

// appOptions select which parts of the application run in this process.
type appOptions struct {
	// runWorker makes this process claim and run tasks and, with the River
	// dispatcher, work upload jobs.
	runWorker bool
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Connections, nil when unused
	pool  *pgxpool.Pool
	db    *sql.DB
	redis *goredis.Client
	river *river.Client[pgx.Tx]

	// Stores
	taskStore   store.TaskStore
	creditStore store.CreditStore

	// Services
	ledger       *credits.LedgerService
	jwtService   auth.JWTService
	operatorKeys *auth.OperatorKeyVerifier
	provider     generation.Provider
	taskService  *service.TaskService
	notifier     *notify.Notifier

	// Task pipeline
	uploader      *task.ResultUploader
	inlineUploads *task.InlineDispatcher
	worker        *task.Worker
	reaper        *task.Reaper
	taskRunner    *task.TaskRunner
	emitter       *events.InMemoryEventEmitter
	riverWorks    bool
}

// newApplication creates a new application instance with all dependencies initialized.
// On error every connection opened so far is closed.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger, opts appOptions) (_ *application, err error) {
	app := &application{config: cfg, logger: log}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	app.ledger = credits.NewLedgerService(app.creditStore, cfg.Credits.InitialGrant, log)

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.operatorKeys = auth.NewOperatorKeyVerifier(cfg.Auth.OperatorKeyHash)
	if !app.operatorKeys.Enabled() {
		log.Warn("operator key not configured, cleanup and process triggers are disabled")
	}

	app.provider, err = newProvider(ctx, cfg.Provider, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image provider: %w", err)
	}
	log.Info("image provider initialized", "provider", cfg.Provider.Name)

	blobs, err := newBlobStore(cfg.Blob, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	app.uploader = task.NewResultUploader(app.taskStore, blobs, task.UploaderConfig{
		Folder:      cfg.Blob.Folder,
		Concurrency: cfg.Blob.UploadConcurrency,
		MaxRetries:  cfg.Blob.MaxRetries,
	}, log)

	uploads, err := app.setupUploadDispatcher(opts)
	if err != nil {
		return nil, err
	}

	app.worker = task.NewWorker(app.taskStore, app.provider, app.ledger, uploads, task.WorkerConfig{
		ProviderTimeout:   cfg.Provider.Timeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
	}, log)
	app.reaper = task.NewReaper(app.taskStore, cfg.Task.PendingTimeout, cfg.Task.ProcessingTimeout, log)

	app.emitter = events.NewInMemoryEventEmitter(log)
	if opts.runWorker {
		app.taskRunner = task.NewTaskRunner(app.worker, app.reaper, task.TaskRunnerConfig{
			WorkerCount:   cfg.Task.WorkerCount,
			QueueSize:     cfg.Task.QueueSize,
			SweepInterval: cfg.Task.SweepInterval,
			ReapInterval:  cfg.Task.ReapInterval,
		}, log)
		app.emitter.RegisterHandler(app.taskRunner)
	}
	if err := app.setupRedis(ctx); err != nil {
		return nil, err
	}

	app.taskService, err = service.NewTaskService(app.taskStore, app.ledger, app.emitter, cfg.Task.HistoryLimit, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.notifier = notify.NewNotifier(app.taskStore, app.reaper, notify.ConfigFrom(cfg.Notifier), log)

	log.Info("application initialized", "run_worker", opts.runWorker)
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		app.taskStore = memory.NewTaskStore()
		app.creditStore = memory.NewCreditStore()
		app.logger.Warn("using in-memory stores, data is lost on restart")
	default:
		pool, db, err := openDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.pool, app.db = pool, db
		app.taskStore = postgres.NewPostgresTaskStore(db, app.logger)
		app.creditStore = postgres.NewPostgresCreditStore(db, app.logger)
	}
	return nil
}

// setupUploadDispatcher picks where post-completion uploads run: a River
// job in Postgres, or a goroutine in the process that completed the task.
func (app *application) setupUploadDispatcher(opts appOptions) (task.UploadDispatcher, error) {
	if app.config.Blob.Dispatcher != "river" {
		app.inlineUploads = task.NewInlineDispatcher(app.uploader, app.logger)
		return app.inlineUploads, nil
	}

	clientCfg := riverjobs.ClientConfig{}
	if opts.runWorker {
		clientCfg.MaxWorkers = app.config.Blob.UploadConcurrency
	}
	client, err := riverjobs.NewClient(app.pool, app.uploader, clientCfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.river = client
	app.riverWorks = clientCfg.MaxWorkers > 0
	return riverjobs.NewDispatcher(client, app.logger), nil
}

// setupRedis fans wake-ups out to other processes. Submissions are
// published; processes running workers also subscribe.
func (app *application) setupRedis(ctx context.Context) error {
	if app.config.Redis.URL == "" {
		return nil
	}
	rdb, err := redis.NewClient(ctx, app.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = rdb
	app.emitter.RegisterHandler(redis.NewPublisher(rdb, app.config.Redis.Channel, app.logger))
	app.logger.Info("redis wake-up fan-out enabled")
	return nil
}

func newProvider(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) (generation.Provider, error) {
	switch cfg.Name {
	case "gemini":
		p, err := gemini.NewProvider(ctx, cfg.Gemini, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := azure.NewProvider(cfg.Azure, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// newBlobStore returns nil without error when no cloud is configured; the
// uploader then keeps results inline.
func newBlobStore(cfg config.BlobConfig, log *slog.Logger) (blob.Store, error) {
	s, err := cloudinary.NewStore(cfg, log)
	if errors.Is(err, cloudinary.ErrNotConfigured) {
		log.Warn("blob storage not configured, results keep inline images only")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// startBackground starts the components that run beside the request path.
func (app *application) startBackground(ctx context.Context) error {
	if app.taskRunner != nil {
		if err := app.taskRunner.Start(); err != nil {
			return fmt.Errorf("failed to start task runner: %w", err)
		}
		if app.redis != nil {
			sub := redis.NewSubscriber(app.redis, app.config.Redis.Channel, app.taskRunner, app.logger)
			go func() {
				if err := sub.Run(ctx); err != nil {
					app.logger.Error("redis subscriber stopped", "error", redact.Error(err))
				}
			}()
		}
	}
	if app.river != nil && app.riverWorks {
		if err := app.river.Start(ctx); err != nil {
			return fmt.Errorf("failed to start river: %w", err)
		}
	}
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.startBackground(ctx); err != nil {
		return err
	}
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// RunWorkers runs the task pipeline until ctx is cancelled.
func (app *application) RunWorkers(ctx context.Context) error {
	if app.taskRunner == nil {
		return errors.New("application was built without workers")
	}
	if err := app.startBackground(ctx); err != nil {
		return err
	}
	app.logger.Info("workers running", "worker_count", app.config.Task.WorkerCount)
	<-ctx.Done()
	app.logger.Info("shutting down workers")
	return nil
}

// cleanup handles graceful shutdown of application resources. It is safe to
// call on a partially built application.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.inlineUploads != nil {
		app.inlineUploads.Wait()
	}
	if app.river != nil && app.riverWorks {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := app.river.Stop(ctx); err != nil {
			app.logger.Error("error stopping river", "error", err)
		}
		cancel()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	if app.pool != nil {
		app.pool.Close()
	}
}
