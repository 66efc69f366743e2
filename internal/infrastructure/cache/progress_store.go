package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

const progressKeyPrefix = "dupflatten:run:"

// DefaultProgressTTL is how long a finished run's progress stays readable
const DefaultProgressTTL = 60 * time.Minute

// ProgressKey returns the hash key that holds a run's progress
func ProgressKey(runKey string) string {
	return progressKeyPrefix + runKey
}

// RunProgress is the snapshot stored for one run
type RunProgress struct {
	RunKey    string    `json:"run_key"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore publishes run progress to Redis so that a CLI or another
// process can follow a run executed by a worker
type ProgressStore struct {
	cache  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewProgressStore creates a progress publisher on top of cache
func NewProgressStore(cache *RedisCache, ttl time.Duration, logger *slog.Logger) *ProgressStore {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressStore{cache: cache, ttl: ttl, logger: logger}
}

// Update stores processed/total for runKey
func (s *ProgressStore) Update(ctx context.Context, runKey string, processed, total int) error {
	return s.cache.SetHash(ctx, ProgressKey(runKey), s.ttl,
		"processed", processed,
		"total", total,
		"percent", strconv.FormatFloat(progress.Percent(processed, total), 'f', 2, 64),
		"status", progress.StatusProcessing,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Complete marks a run as finished
func (s *ProgressStore) Complete(ctx context.Context, runKey string, processed int) error {
	return s.cache.SetHash(ctx, ProgressKey(runKey), s.ttl,
		"processed", processed,
		"total", processed,
		"percent", "100.00",
		"status", progress.StatusCompleted,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Fail marks a run as failed and records the cause
func (s *ProgressStore) Fail(ctx context.Context, runKey string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.cache.SetHash(ctx, ProgressKey(runKey), s.ttl,
		"status", progress.StatusFailed,
		"error", msg,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Get reads the snapshot of a run
func (s *ProgressStore) Get(ctx context.Context, runKey string) (*RunProgress, error) {
	fields, err := s.cache.HGetAll(ctx, ProgressKey(runKey))
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NotFound("run progress")
	}

	p := &RunProgress{
		RunKey: runKey,
		Status: fields["status"],
		Error:  fields["error"],
	}
	p.Processed, _ = strconv.Atoi(fields["processed"])
	p.Total, _ = strconv.Atoi(fields["total"])
	p.Percent, _ = strconv.ParseFloat(fields["percent"], 64)
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		p.UpdatedAt = ts
	}
	return p, nil
}

// Reporter adapts the store to a progress callback. Updates are throttled
// to whole-percent changes and write failures are logged once.
func (s *ProgressStore) Reporter(ctx context.Context, runKey string) progress.Func {
	var once sync.Once
	return progress.Throttle(func(processed, total int) {
		if err := s.Update(ctx, runKey, processed, total); err != nil {
			once.Do(func() {
				s.logger.Warn("failed to publish progress",
					slog.String("run_key", runKey),
					slog.Any("error", err))
			})
		}
	}, 1000)
}
