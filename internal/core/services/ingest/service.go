// Package ingest runs the streaming flattener: it pulls groups from a
// report, classifies them and writes them to the store in one transaction.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/core/services/classifier"
	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/parsers"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/storage"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// Flattener turns duplicate reports into rows of the store
type Flattener struct {
	db         *gorm.DB
	config     config.IngestConfig
	classifier classifier.Classifier
	parser     *parsers.ParserConfig
	sources    *parsers.SourceFactory
	logger     *slog.Logger
}

// NewFlattener creates a flattener writing through db. Zero batch size and
// identical percentage fall back to the defaults.
func NewFlattener(db *gorm.DB, cfg config.IngestConfig, logger *slog.Logger) *Flattener {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := config.DefaultIngestConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.IdenticalPercentage == 0 {
		cfg.IdenticalPercentage = defaults.IdenticalPercentage
	}

	parserCfg := parsers.DefaultParserConfig()
	parserCfg.MaxFileSize = cfg.MaxFileSizeMB * 1024 * 1024

	return &Flattener{
		db:     db,
		config: cfg,
		classifier: classifier.NewService(classifier.Config{
			IdenticalPercentage: cfg.IdenticalPercentage,
			Policy:              classifier.PolicyFirst,
		}),
		parser:  parserCfg,
		sources: parsers.NewSourceFactory(parserCfg),
		logger:  logger,
	}
}

// Config returns the effective run settings
func (f *Flattener) Config() config.IngestConfig {
	return f.config
}

// Process streams src into the store. Either every group of the report is
// committed or, on any error, nothing is.
func (f *Flattener) Process(ctx context.Context, src io.Reader, opts ProcessOptions) (result *Result, err error) {
	if err := f.config.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	logger := f.logger.With(
		slog.String("run_id", runID.String()),
		slog.String("source", opts.SourcePath))
	report := progress.Multi(opts.Progress)

	f.warnOnExistingData(ctx, opts.SourceHash, logger)

	startedAt := time.Now()
	logger.Info("ingest started",
		slog.Int("batch_size", f.config.BatchSize),
		slog.Int("expected_groups", opts.Total))

	writer, err := repositories.OpenBatchWriter(ctx, f.db, f.config.BatchSize, logger)
	if err != nil {
		return nil, f.failed(ctx, err, logger)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := writer.Rollback(); rbErr != nil {
			logger.Error("rollback failed", slog.Any("error", rbErr))
		}
	}()

	extractor := parsers.NewReportExtractor(src, f.parser)
	seq := classifier.NewSequence()

	var totals domain.GroupCounts
	var identical int64

	for {
		rec, nextErr := extractor.Next(ctx)
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return nil, f.failed(ctx, nextErr, logger)
		}

		group := f.classifier.Classify(rec, seq.Next())
		if err := writer.Write(ctx, group); err != nil {
			return nil, f.failed(ctx, err, logger)
		}

		totals.Add(group.Counts)
		if group.FullyIdentical {
			identical++
		}

		report(int(seq.Last()), opts.Total)
	}

	if err := writer.Flush(ctx); err != nil {
		return nil, f.failed(ctx, err, logger)
	}

	stats := extractor.Stats()
	run := &domain.IngestRun{
		RunID:                runID,
		SourcePath:           opts.SourcePath,
		SourceHash:           opts.SourceHash,
		GroupCount:           seq.Last(),
		FileCount:            int64(totals.TotalFiles),
		MatchCount:           int64(totals.MatchCount),
		MarkedYes:            int64(totals.MarkedYes),
		MarkedNo:             int64(totals.MarkedNo),
		FullyIdenticalGroups: identical,
		DefaultsApplied:      int64(stats.DefaultsApplied),
		BatchSize:            f.config.BatchSize,
		StartedAt:            startedAt,
		CompletedAt:          time.Now(),
	}
	if err := writer.RecordRun(ctx, run); err != nil {
		return nil, f.failed(ctx, err, logger)
	}

	if err := writer.Commit(ctx); err != nil {
		return nil, f.failed(ctx, err, logger)
	}

	result = &Result{
		Run:     *run,
		Writer:  writer.Stats(),
		Extract: stats,
	}

	logger.Info("ingest completed",
		slog.Int64("groups", run.GroupCount),
		slog.Int64("files", run.FileCount),
		slog.Int64("matches", run.MatchCount),
		slog.Int64("fully_identical_groups", run.FullyIdenticalGroups),
		slog.Int64("defaults_applied", run.DefaultsApplied),
		slog.Duration("duration", run.Duration()))

	if stats.DefaultsApplied > 0 {
		logger.Warn("missing or malformed attributes were replaced by defaults",
			slog.Int("count", stats.DefaultsApplied))
	}

	return result, nil
}

// ProcessFile opens the report at path, fingerprints it, optionally counts
// its groups and then processes it
func (f *Flattener) ProcessFile(ctx context.Context, path string, fn progress.Func) (*Result, error) {
	return f.processFile(ctx, path, uuid.Nil, fn)
}

func (f *Flattener) processFile(ctx context.Context, path string, runID uuid.UUID, fn progress.Func) (*Result, error) {
	src, err := f.sources.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	total := 0
	if f.config.PreScan {
		total, err = f.countGroups(ctx, path)
		if err != nil {
			return nil, f.failed(ctx, err, f.logger)
		}
	}

	meta, err := storage.Fingerprint(ctx, path)
	if err != nil {
		return nil, f.failed(ctx, err, f.logger)
	}

	f.logger.Debug("source opened",
		slog.String("path", path),
		slog.String("format", src.Format),
		slog.Int64("size", src.Size),
		slog.String("hash", meta.Hash),
		slog.Int("groups", total))

	return f.Process(ctx, src, ProcessOptions{
		RunID:      runID,
		SourcePath: path,
		SourceHash: meta.Hash,
		Total:      total,
		Progress:   fn,
	})
}

func (f *Flattener) countGroups(ctx context.Context, path string) (int, error) {
	scan, err := f.sources.Open(path)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	return parsers.CountGroups(ctx, scan, f.parser)
}

// warnOnExistingData logs when the run is about to append to a store that
// already holds rows, or when the same source was ingested before
func (f *Flattener) warnOnExistingData(ctx context.Context, sourceHash string, logger *slog.Logger) {
	migrator := f.db.WithContext(ctx).Migrator()

	if migrator.HasTable(&domain.GroupFile{}) {
		var rows int64
		if err := f.db.WithContext(ctx).Model(&domain.GroupFile{}).Count(&rows).Error; err == nil && rows > 0 {
			logger.Warn("store already contains groups; new rows are appended and group ids restart at 1")
		}
	}

	if sourceHash == "" || !migrator.HasTable(&domain.IngestRun{}) {
		return
	}

	previous, err := repositories.NewRunRepository(f.db, logger).FindBySourceHash(ctx, sourceHash)
	if err != nil {
		logger.Debug("could not look up previous runs", slog.Any("error", err))
		return
	}
	if previous != nil {
		logger.Warn("source was already ingested",
			slog.String("previous_run_id", previous.RunID.String()),
			slog.Time("previous_completed_at", previous.CompletedAt))
	}
}

// failed classifies err into the AppError returned to the caller. Any
// failure after ctx is done counts as a cancellation.
func (f *Flattener) failed(ctx context.Context, err error, logger *slog.Logger) error {
	var appErr *apperrors.AppError
	switch {
	case ctx.Err() != nil:
		appErr = apperrors.Canceled(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		appErr = apperrors.Canceled(err)
	case errors.As(err, &appErr):
	default:
		appErr = apperrors.InternalWrap(err, "ingest failed")
	}

	logger.Error("ingest failed",
		slog.String("code", string(appErr.Code)),
		slog.Any("error", err))
	return appErr
}
