package ingest

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/parsers"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
)

// ProcessOptions describes one run over an already opened source
type ProcessOptions struct {
	// RunID identifies the run in the ledger and in published progress.
	// A new id is generated when it is uuid.Nil.
	RunID uuid.UUID

	SourcePath string
	SourceHash string

	// Total is the expected number of groups, 0 when unknown
	Total int

	Progress progress.Func
}

// Result summarizes a committed run
type Result struct {
	Run     domain.IngestRun         `json:"run"`
	Writer  repositories.WriterStats `json:"writer"`
	Extract parsers.ExtractStats     `json:"extract"`
}

// Duration returns how long the run took
func (r *Result) Duration() time.Duration {
	return r.Run.Duration()
}

// Options configures ProcessLargeSource
type Options struct {
	Ingest   config.IngestConfig
	Database *config.DatabaseConfig
	Logger   *slog.Logger
	RunID    uuid.UUID
}

// Option mutates Options
type Option func(*Options)

// WithIngestConfig replaces the run settings
func WithIngestConfig(cfg config.IngestConfig) Option {
	return func(o *Options) { o.Ingest = cfg }
}

// WithBatchSize overrides only the batch size
func WithBatchSize(n int) Option {
	return func(o *Options) { o.Ingest.BatchSize = n }
}

// WithDatabase targets a configured store instead of a SQLite file at the
// target path
func WithDatabase(cfg config.DatabaseConfig) Option {
	return func(o *Options) { o.Database = &cfg }
}

// WithLogger sets the run logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithRunID fixes the run id, e.g. to match a queued task
func WithRunID(id uuid.UUID) Option {
	return func(o *Options) { o.RunID = id }
}
