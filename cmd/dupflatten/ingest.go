package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alejandroruanova/dupflatten/internal/core/services/ingest"
	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/cache"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <report.xml>",
	Short: "Flatten a duplicate report into the store",
	Long: `Stream a duplicate groups report into the store in a single transaction.

Either every group of the report is committed or, on any failure, nothing is.
Each run restarts group ids at 1; ingesting into a store that already holds
rows appends to it.

Examples:
  # Flatten into ./xml_data.db
  dupflatten ingest report.xml

  # Smaller batches, no pre-scan pass
  dupflatten ingest --batch-size 200 --no-prescan report.xml.gz

  # Publish progress to Redis for an external viewer
  dupflatten ingest --progress-redis report.xml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		noPrescan, _ := cmd.Flags().GetBool("no-prescan")
		publish, _ := cmd.Flags().GetBool("progress-redis")

		ingestCfg := cfg.Ingest
		if cmd.Flags().Changed("batch-size") {
			ingestCfg.BatchSize = batchSize
		}
		if noPrescan {
			ingestCfg.PreScan = false
		}

		ctx := cmd.Context()
		runID := uuid.New()
		source := args[0]

		reporters := []progress.Func{
			progress.Throttle(newProgressBar(os.Stderr), 1000),
			progress.Log(appLogger, 10*time.Second),
		}

		var store *cache.ProgressStore
		if publish || cfg.Cache.Enabled {
			rc, err := cache.NewRedisCache(cfg.Cache, appLogger)
			if err != nil {
				// progress publishing is optional
				appLogger.Warn("progress will not be published", slog.Any("error", err))
			} else {
				defer rc.Close()
				store = cache.NewProgressStore(rc, time.Duration(cfg.Cache.ProgressTTLMinutes)*time.Minute, appLogger)
				reporters = append(reporters, store.Reporter(ctx, runID.String()))
			}
		}

		run := ingest.Start(ctx, func(ctx context.Context) (*ingest.Result, error) {
			return ingest.RunLargeSource(ctx, source, cfg.Database.Path, progress.Multi(reporters...),
				ingest.WithIngestConfig(ingestCfg),
				ingest.WithDatabase(cfg.Database),
				ingest.WithRunID(runID),
				ingest.WithLogger(appLogger))
		})

		result, err := run.Wait()
		fmt.Fprintln(os.Stderr)

		if store != nil {
			publishOutcome(context.WithoutCancel(ctx), store, runID.String(), result, err)
		}

		if err != nil {
			return err
		}

		printResult(os.Stdout, result)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("batch-size", 0, "rows buffered per table before a flush (default from INGEST_BATCH_SIZE)")
	ingestCmd.Flags().Bool("no-prescan", false, "skip counting groups before ingesting; progress total stays unknown")
	ingestCmd.Flags().Bool("progress-redis", false, "publish progress to Redis under dupflatten:run:<run_id>")
	rootCmd.AddCommand(ingestCmd)
}

// outcomePublisher records how a run ended
type outcomePublisher interface {
	Fail(ctx context.Context, runKey string, cause error) error
	Complete(ctx context.Context, runKey string, processed int) error
}

func publishOutcome(ctx context.Context, pub outcomePublisher, runKey string, result *ingest.Result, runErr error) {
	if runErr != nil {
		if err := pub.Fail(ctx, runKey, runErr); err != nil {
			appLogger.Warn("failed to publish failure", slog.String("run_key", runKey), slog.Any("error", err))
		}
		return
	}
	if err := pub.Complete(ctx, runKey, int(result.Run.GroupCount)); err != nil {
		appLogger.Warn("failed to publish completion", slog.String("run_key", runKey), slog.Any("error", err))
	}
}

// newProgressBar renders progress on a single terminal line
func newProgressBar(w io.Writer) progress.Func {
	cyan := color.New(color.FgCyan).SprintFunc()
	return func(processed, total int) {
		if total <= 0 {
			fmt.Fprintf(w, "\r%s %d groups", cyan(progress.StatusProcessing), processed)
			return
		}

		const width = 30
		pct := progress.Percent(processed, total)
		filled := int(pct / 100 * width)
		fmt.Fprintf(w, "\r[%s%s] %5.1f%% %d/%d groups",
			cyan(strings.Repeat("#", filled)), strings.Repeat(".", width-filled),
			pct, processed, total)
	}
}

func printResult(w io.Writer, result *ingest.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	run := result.Run
	fmt.Fprintf(w, "%s Ingested %d groups (%d files, %d matches) in %v\n",
		green("✓"), run.GroupCount, run.FileCount, run.MatchCount, run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Fully identical groups: %d\n", run.FullyIdenticalGroups)
	fmt.Fprintf(w, "  Marked y/n:             %d/%d\n", run.MarkedYes, run.MarkedNo)
	fmt.Fprintf(w, "  Flushes files/matches:  %d/%d\n", result.Writer.FileFlushes, result.Writer.MatchFlushes)
	if run.DefaultsApplied > 0 {
		fmt.Fprintf(w, "  %s %d missing or malformed attributes replaced by defaults\n", yellow("⚠"), run.DefaultsApplied)
	}
	fmt.Fprintf(w, "  %s\n", gray("run "+run.RunID.String()))
}
