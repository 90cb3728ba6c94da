package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longbox-labs/entity-verify/internal/bulk"
	"github.com/longbox-labs/entity-verify/internal/model"
)

var (
	bulkTable      string
	bulkBatchSize  int
	bulkDelayMs    int
	bulkMaxBatches int
	bulkPriority   int
	bulkForce      bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Run a bulk verification sweep over a table",
	Long:  "Walks the table in batches, enqueues a verification job per entity, and processes the queue with the local worker pool until the sweep drains.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "bulk")
		if err != nil {
			return err
		}
		defer env.Close()

		batchSize := bulkBatchSize
		if batchSize == 0 {
			batchSize = cfg.Bulk.BatchSize
		}
		delayMs := bulkDelayMs
		if delayMs == 0 {
			delayMs = cfg.Bulk.DelayBetweenBatchesMs
		}

		runID, err := env.Scheduler.StartRun(ctx, bulk.RunParams{
			TableType:           model.TableType(bulkTable),
			BatchSize:           batchSize,
			DelayBetweenBatches: time.Duration(delayMs) * time.Millisecond,
			MaxBatches:          bulkMaxBatches,
			Priority:            bulkPriority,
			ForceRefresh:        bulkForce,
		})
		if err != nil {
			return eris.Wrap(err, "start bulk run")
		}
		zap.L().Info("bulk run started", zap.String("run_id", runID))

		workerCtx, cancelWorker := context.WithCancel(ctx)
		defer cancelWorker()

		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.newWorker().Run(workerCtx)
		})

		// Poll until the sweep finishes and the queue drains, then stop
		// the workers.
		g.Go(func() error {
			defer cancelWorker()
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					env.Scheduler.Stop(runID)
					return nil
				case <-ticker.C:
				}

				progress, ok := env.Scheduler.Progress(runID)
				if !ok {
					return eris.Errorf("bulk run vanished: %s", runID)
				}
				if progress.IsRunning {
					continue
				}

				counts, err := env.Queue.Counts(ctx)
				if err != nil {
					return eris.Wrap(err, "queue counts")
				}
				if counts.Waiting+counts.Delayed+counts.Active > 0 {
					continue
				}

				zap.L().Info("bulk run complete",
					zap.String("run_id", runID),
					zap.String("stop_reason", progress.StopReason),
					zap.Int("processed", progress.ProcessedItems),
					zap.Int("queued", progress.QueuedItems),
					zap.Int("completed", counts.Completed),
					zap.Int("failed", counts.Failed),
					zap.Int("errors", progress.ErrorCount),
				)
				return nil
			}
		})

		return g.Wait()
	},
}

func init() {
	bulkCmd.Flags().StringVar(&bulkTable, "table", "characters", "table type (characters or creators)")
	bulkCmd.Flags().IntVar(&bulkBatchSize, "batch-size", 0, "entities per batch (default from config)")
	bulkCmd.Flags().IntVar(&bulkDelayMs, "delay-ms", 0, "delay between batches in ms (default from config)")
	bulkCmd.Flags().IntVar(&bulkMaxBatches, "max-batches", 0, "stop after N batches (0 = run to exhaustion)")
	bulkCmd.Flags().IntVar(&bulkPriority, "priority", 0, "job priority for enqueued work")
	bulkCmd.Flags().BoolVar(&bulkForce, "force", false, "refresh even recently verified entities")
	rootCmd.AddCommand(bulkCmd)
}
