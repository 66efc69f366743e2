package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/dupflatten/internal/core/services/ingest"
	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/cache"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// TaskTypeIngestReport flattens one report into a store
const TaskTypeIngestReport = "report:ingest"

// IngestPayload is the body of a report:ingest task
type IngestPayload struct {
	SourcePath string `json:"source_path"`
	TargetPath string `json:"target_path"`
	BatchSize  int    `json:"batch_size,omitempty"`
	RunKey     string `json:"run_key"`
}

// Validate rejects payloads that can never succeed
func (p IngestPayload) Validate() error {
	if p.SourcePath == "" {
		return apperrors.Configuration("source path is required")
	}
	if p.BatchSize < 0 {
		return apperrors.Configuration("batch size must be a positive integer").
			WithDetails("batch_size", p.BatchSize)
	}
	if _, err := uuid.Parse(p.RunKey); err != nil {
		return apperrors.Configuration(fmt.Sprintf("invalid run key %q", p.RunKey))
	}
	return nil
}

// NewIngestTask builds a report:ingest task. A run key is generated when
// the payload has none; it doubles as the task id so the same run cannot be
// queued twice.
func NewIngestTask(payload IngestPayload, maxRetries int) (*asynq.Task, IngestPayload, error) {
	if payload.RunKey == "" {
		payload.RunKey = uuid.NewString()
	}
	if err := payload.Validate(); err != nil {
		return nil, payload, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, payload, apperrors.InternalWrap(err, "failed to encode task payload")
	}

	task := asynq.NewTask(TaskTypeIngestReport, data,
		asynq.Queue(QueueIngest),
		asynq.MaxRetry(maxRetries),
		asynq.TaskID(payload.RunKey),
	)
	return task, payload, nil
}

// ParseIngestPayload decodes the body of a report:ingest task
func ParseIngestPayload(task *asynq.Task) (IngestPayload, error) {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, apperrors.Configuration(fmt.Sprintf("malformed task payload: %v", err))
	}
	return payload, payload.Validate()
}

// Runner performs the ingestion described by a payload
type Runner func(ctx context.Context, payload IngestPayload, fn progress.Func) error

// IngestHandler processes report:ingest tasks
type IngestHandler struct {
	run      Runner
	progress *cache.ProgressStore
	logger   *slog.Logger
}

// NewIngestHandler creates a handler that flattens into the configured
// store. progressStore may be nil.
func NewIngestHandler(cfg *config.Config, progressStore *cache.ProgressStore, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}

	run := func(ctx context.Context, payload IngestPayload, fn progress.Func) error {
		ingestCfg := cfg.Ingest
		if payload.BatchSize > 0 {
			ingestCfg.BatchSize = payload.BatchSize
		}
		runID, _ := uuid.Parse(payload.RunKey)

		return ingest.ProcessLargeSource(ctx, payload.SourcePath, payload.TargetPath, fn,
			ingest.WithIngestConfig(ingestCfg),
			ingest.WithDatabase(cfg.Database),
			ingest.WithRunID(runID),
			ingest.WithLogger(logger))
	}

	return newIngestHandler(run, progressStore, logger)
}

func newIngestHandler(run Runner, progressStore *cache.ProgressStore, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{run: run, progress: progressStore, logger: logger}
}

// ProcessTask implements asynq.Handler. Errors that a retry cannot fix
// skip the retry queue.
func (h *IngestHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseIngestPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger := h.logger.With(
		slog.String("run_key", payload.RunKey),
		slog.String("source", payload.SourcePath))
	logger.Info("processing ingest task")

	report := progress.Log(logger, 10*time.Second)
	if h.progress != nil {
		report = progress.Multi(report, h.progress.Reporter(ctx, payload.RunKey))
	}

	processed := 0
	counted := func(p, total int) {
		processed = p
		report(p, total)
	}

	if err := h.run(ctx, payload, counted); err != nil {
		if h.progress != nil {
			if perr := h.progress.Fail(context.WithoutCancel(ctx), payload.RunKey, err); perr != nil {
				logger.Warn("failed to publish failure", slog.Any("error", perr))
			}
		}
		if !Retryable(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if h.progress != nil {
		if perr := h.progress.Complete(ctx, payload.RunKey, processed); perr != nil {
			logger.Warn("failed to publish completion", slog.Any("error", perr))
		}
	}
	return nil
}

// Retryable reports whether an ingest error may succeed on another attempt
func Retryable(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeStorage, apperrors.ErrCodeCanceled, apperrors.ErrCodeInternal:
		return true
	default:
		return false
	}
}
