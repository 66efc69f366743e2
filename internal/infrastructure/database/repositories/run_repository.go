package repositories

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// RunRepository reads the ingest run ledger
type RunRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRunRepository creates a new repository instance
func NewRunRepository(db *gorm.DB, logger *slog.Logger) *RunRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// FindBySourceHash returns the latest run of a source with the given
// fingerprint, or nil if it was never ingested
func (r *RunRepository) FindBySourceHash(ctx context.Context, hash string) (*domain.IngestRun, error) {
	var run domain.IngestRun

	err := r.db.WithContext(ctx).
		Where("source_hash = ?", hash).
		Order("completed_at DESC").
		First(&run).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to look up run by source hash",
			slog.String("hash", hash),
			slog.Any("error", err))
		return nil, apperrors.Storage(err, "database query failed")
	}

	return &run, nil
}

// List returns the most recent runs first
func (r *RunRepository) List(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	var runs []domain.IngestRun

	err := r.db.WithContext(ctx).
		Order("completed_at DESC").
		Limit(limit).
		Find(&runs).
		Error

	if err != nil {
		r.logger.Error("failed to list runs", slog.Any("error", err))
		return nil, apperrors.Storage(err, "database query failed")
	}

	return runs, nil
}
