package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// maxStatementParams keeps a single INSERT below the bind parameter limit
// of both SQLite (32766) and PostgreSQL (65535)
const maxStatementParams = 32000

const (
	groupFileColumns = 5 // group_id, file_id, filepath, filename, duplicate_flag
	matchColumns     = 4 // group_id, first, second, percentage
)

// WriterStats reports what a BatchWriter has written so far
type WriterStats struct {
	FilesWritten   int64 `json:"files_written"`
	MatchesWritten int64 `json:"matches_written"`
	FileFlushes    int   `json:"file_flushes"`
	MatchFlushes   int   `json:"match_flushes"`
}

// BatchWriter buffers classified groups and writes them in bulk inside a
// single transaction. Nothing it writes is visible until Commit.
type BatchWriter struct {
	tx        *gorm.DB
	batchSize int
	logger    *slog.Logger

	files   []domain.GroupFile
	matches []domain.Match
	stats   WriterStats
	done    bool
}

// OpenBatchWriter ensures the schema exists and begins the run transaction
func OpenBatchWriter(ctx context.Context, db *gorm.DB, batchSize int, logger *slog.Logger) (*BatchWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		return nil, apperrors.Configuration("batch size must be a positive integer").
			WithDetails("batch_size", batchSize)
	}

	if err := database.Migrate(ctx, db); err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, apperrors.Storage(tx.Error, "failed to begin transaction")
	}

	return &BatchWriter{
		tx:        tx,
		batchSize: batchSize,
		logger:    logger,
		files:     make([]domain.GroupFile, 0, bufferCapacity(batchSize)),
		matches:   make([]domain.Match, 0, bufferCapacity(batchSize)),
	}, nil
}

func bufferCapacity(batchSize int) int {
	if batchSize > 10000 {
		return 10000
	}
	return batchSize
}

// Write queues the rows of one group. Each buffer is flushed on its own as
// soon as it holds batchSize rows.
func (w *BatchWriter) Write(ctx context.Context, group *domain.ClassifiedGroup) error {
	if w.done {
		return apperrors.Internal("batch writer is closed")
	}

	w.files = append(w.files, group.FileRows()...)
	w.matches = append(w.matches, group.MatchRows()...)

	if len(w.files) >= w.batchSize {
		if err := w.flushFiles(ctx); err != nil {
			return err
		}
	}
	if len(w.matches) >= w.batchSize {
		if err := w.flushMatches(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Flush writes whatever is buffered regardless of size
func (w *BatchWriter) Flush(ctx context.Context) error {
	if w.done {
		return apperrors.Internal("batch writer is closed")
	}
	if err := w.flushFiles(ctx); err != nil {
		return err
	}
	return w.flushMatches(ctx)
}

func (w *BatchWriter) flushFiles(ctx context.Context) error {
	if len(w.files) == 0 {
		return nil
	}

	n := len(w.files)
	err := w.tx.WithContext(ctx).
		CreateInBatches(&w.files, rowsPerStatement(n, groupFileColumns)).
		Error
	if err != nil {
		w.logger.Error("failed to flush files",
			slog.Int("rows", n),
			slog.Any("error", err))
		return apperrors.Storage(err, fmt.Sprintf("failed to insert %d file rows", n))
	}

	w.stats.FilesWritten += int64(n)
	w.stats.FileFlushes++
	w.files = w.files[:0]

	w.logger.Debug("flushed files", slog.Int("rows", n), slog.Int64("total", w.stats.FilesWritten))
	return nil
}

func (w *BatchWriter) flushMatches(ctx context.Context) error {
	if len(w.matches) == 0 {
		return nil
	}

	n := len(w.matches)
	err := w.tx.WithContext(ctx).
		CreateInBatches(&w.matches, rowsPerStatement(n, matchColumns)).
		Error
	if err != nil {
		w.logger.Error("failed to flush matches",
			slog.Int("rows", n),
			slog.Any("error", err))
		return apperrors.Storage(err, fmt.Sprintf("failed to insert %d match rows", n))
	}

	w.stats.MatchesWritten += int64(n)
	w.stats.MatchFlushes++
	w.matches = w.matches[:0]

	w.logger.Debug("flushed matches", slog.Int("rows", n), slog.Int64("total", w.stats.MatchesWritten))
	return nil
}

// rowsPerStatement returns how many rows fit in one INSERT
func rowsPerStatement(rows, columns int) int {
	limit := maxStatementParams / columns
	if rows < limit {
		return rows
	}
	return limit
}

// RecordRun stores the run ledger entry inside the run transaction
func (w *BatchWriter) RecordRun(ctx context.Context, run *domain.IngestRun) error {
	if w.done {
		return apperrors.Internal("batch writer is closed")
	}
	if err := w.tx.WithContext(ctx).Create(run).Error; err != nil {
		return apperrors.Storage(err, "failed to record ingest run")
	}
	return nil
}

// Commit flushes the remaining rows and commits the transaction. On error
// the transaction is rolled back.
func (w *BatchWriter) Commit(ctx context.Context) error {
	if w.done {
		return apperrors.Internal("batch writer is closed")
	}

	if err := w.Flush(ctx); err != nil {
		w.Rollback()
		return err
	}

	w.done = true
	if err := w.tx.Commit().Error; err != nil {
		w.tx.Rollback()
		return apperrors.Storage(err, "failed to commit transaction")
	}

	w.logger.Debug("transaction committed",
		slog.Int64("files", w.stats.FilesWritten),
		slog.Int64("matches", w.stats.MatchesWritten))
	return nil
}

// Rollback discards everything written through w. It is a no-op once the
// writer has been committed or rolled back.
func (w *BatchWriter) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	w.files = nil
	w.matches = nil

	err := w.tx.Rollback().Error
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return apperrors.Storage(err, "failed to roll back transaction")
	}
	return nil
}

// Pending returns the number of buffered, unwritten rows
func (w *BatchWriter) Pending() (files, matches int) {
	return len(w.files), len(w.matches)
}

// Stats returns the counters accumulated so far
func (w *BatchWriter) Stats() WriterStats {
	return w.stats
}
