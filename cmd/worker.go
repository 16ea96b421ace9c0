/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mategroup/sso/internal/events"
	"github.com/mategroup/sso/internal/mq"
	"github.com/mategroup/sso/internal/storage"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes account events and deletes orphaned avatar blobs",
	Long: `Consumes the account events channel. When an account is deleted its
avatar blob is removed from object storage. Usage:

	sso worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("MQ_BACKEND is required to run the worker")
			}
			return fmt.Errorf("open message queue: %w", err)
		}
		defer queue.Close()

		blobs, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}

		consumer := events.NewCleanupConsumer(blobs, cfg.MQ.Channel, logger)
		if err := consumer.Run(ctx, queue); err != nil && !errors.Is(err, ctx.Err()) {
			logger.Error("worker stopped", "error", err)
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
