package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/longbox-labs/entity-verify/internal/queue"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the verification worker pool until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		w := env.newWorker()
		if workerConcurrency > 0 {
			w = queue.NewWorker(env.Queue, env.Reconciler.VerifyEntity, workerConcurrency)
		}
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "worker pool size (default from config)")
	rootCmd.AddCommand(workerCmd)
}
