package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/platform/postgres"
	"github.com/phrazzld/nailart-api/internal/platform/riverjobs"
	"github.com/phrazzld/nailart-api/internal/task"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	command := &cobra.Command{
		Use:           "server",
		Short:         "AI nail art generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml if present)")
	command.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before reading configuration (default .env)")

	command.AddCommand(
		serveCmd(opts),
		workerCmd(opts),
		migrateCmd(opts),
		reapCmd(opts),
		processCmd(opts),
	)
	return command
}

// load reads configuration and installs the configured logger as default.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"database_driver", cfg.Database.Driver,
		"provider", cfg.Provider.Name,
		"upload_dispatcher", cfg.Blob.Dispatcher)
	return cfg, log, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log, appOptions{runWorker: cfg.Task.EmbeddedWorker})
			if err != nil {
				return err
			}
			defer app.cleanup()
			return app.Run(ctx)
		},
	}
}

func workerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run task workers without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				return errors.New("a dedicated worker needs database.driver=postgres")
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log, appOptions{runWorker: true})
			if err != nil {
				return err
			}
			defer app.cleanup()
			return app.RunWorkers(ctx)
		},
	}
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrations need database.driver=postgres, got %q", cfg.Database.Driver)
			}

			ctx := cmd.Context()
			pool, db, err := openDatabase(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer pool.Close()
			defer func() { _ = db.Close() }()

			if err := postgres.Migrate(ctx, db, command, log); err != nil {
				return err
			}
			if command == "up" {
				return riverjobs.Migrate(ctx, pool, log)
			}
			return nil
		},
	}
}

func reapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fail tasks that have been pending or processing too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log, appOptions{})
			if err != nil {
				return err
			}
			defer app.cleanup()

			report, err := app.reaper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
}

func processCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Claim and run the next pending task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log, appOptions{})
			if err != nil {
				return err
			}
			defer app.cleanup()

			outcome, err := app.worker.ProcessNext(cmd.Context())
			if errors.Is(err, task.ErrNoPendingTask) {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no pending tasks")
				return err
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(outcome)
		},
	}
}
