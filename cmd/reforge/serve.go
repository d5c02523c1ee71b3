package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NicolasKol/reforge/internal/api"
	"github.com/NicolasKol/reforge/internal/jobs"
	"github.com/NicolasKol/reforge/internal/pipeline"
	"github.com/NicolasKol/reforge/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration HTTP server with the job worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		db, err := storage.Open(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		pl := pipeline.New(cfg, db, logger)
		store := jobs.NewStore(db)
		runner := jobs.NewRunner(store, logger, jobs.RunnerConfig{
			QueueSize:   cfg.Worker.QueueSize,
			WorkerCount: cfg.Worker.WorkerCount,
		})
		pl.RegisterHandlers(runner)
		runner.Start()
		defer runner.Stop()

		server := api.NewServer(cfg.Server, pl, runner, store, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutdown signal received", map[string]interface{}{"signal": sig.String()})
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
