package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alejandroruanova/dupflatten/internal/infrastructure/cache"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/queue"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <report.xml>",
	Short: "Queue a report for ingestion by a worker",
	Long: `Push a report:ingest task for the report. A worker started with
"dupflatten worker" picks it up and flattens it into the target store.

The printed run key can be passed to "dupflatten status" when the worker
publishes progress to Redis.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		source, err := filepath.Abs(args[0])
		if err != nil {
			return apperrors.Configuration(fmt.Sprintf("invalid source path: %v", err))
		}
		target := cfg.Database.Path
		if target != "" {
			if target, err = filepath.Abs(target); err != nil {
				return apperrors.Configuration(fmt.Sprintf("invalid target path: %v", err))
			}
		}

		task, payload, err := queue.NewIngestTask(queue.IngestPayload{
			SourcePath: source,
			TargetPath: target,
			BatchSize:  batchSize,
		}, cfg.Queue.MaxRetries)
		if err != nil {
			return err
		}

		client := queue.NewAsynqClient(cfg.Queue, appLogger)
		defer client.Close()

		info, err := client.EnqueueContext(cmd.Context(), task)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Queued %s on %s\n", green("✓"), source, info.Queue)
		fmt.Printf("  Run key: %s\n", payload.RunKey)
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued reports",
	Long: `Run an Asynq worker that executes report:ingest tasks until it receives
SIGINT or SIGTERM. Progress is published to Redis when REDIS_PROGRESS_ENABLED
is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var store *cache.ProgressStore
		if cfg.Cache.Enabled {
			rc, err := cache.NewRedisCache(cfg.Cache, appLogger)
			if err != nil {
				return apperrors.QueueError(err, "progress cache unavailable")
			}
			defer rc.Close()
			store = cache.NewProgressStore(rc, time.Duration(cfg.Cache.ProgressTTLMinutes)*time.Minute, appLogger)
		}

		server := queue.NewAsynqServer(cfg.Queue, appLogger)
		server.Handle(queue.TaskTypeIngestReport, queue.NewIngestHandler(cfg, store, appLogger))

		return server.Start()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run_key>",
	Short: "Show the published progress of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := cache.NewRedisCache(cfg.Cache, appLogger)
		if err != nil {
			return apperrors.QueueError(err, "progress cache unavailable")
		}
		defer rc.Close()

		store := cache.NewProgressStore(rc, time.Duration(cfg.Cache.ProgressTTLMinutes)*time.Minute, appLogger)
		p, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		statusColor := color.New(color.FgYellow).SprintFunc()
		switch p.Status {
		case "completed":
			statusColor = color.New(color.FgGreen).SprintFunc()
		case "failed":
			statusColor = color.New(color.FgRed).SprintFunc()
		}

		fmt.Printf("%s %s\n", statusColor(p.Status), p.RunKey)
		if p.Total > 0 {
			fmt.Printf("  %d/%d groups (%.1f%%)\n", p.Processed, p.Total, p.Percent)
		} else {
			fmt.Printf("  %d groups\n", p.Processed)
		}
		if p.Error != "" {
			fmt.Printf("  Error: %s\n", p.Error)
		}
		fmt.Printf("  Updated %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	enqueueCmd.Flags().Int("batch-size", 0, "rows buffered per table before a flush (default from the worker)")
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(statusCmd)
}
