package ingest

import (
	"context"
	"log/slog"

	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/storage"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// ProcessLargeSource flattens the report at sourcePath into the SQLite
// store at targetPath, or into the store given by WithDatabase. It returns
// nil on success or a single error whose message can be shown as is.
//
// Configuration is validated before any file is touched.
func ProcessLargeSource(ctx context.Context, sourcePath, targetPath string, fn progress.Func, opts ...Option) error {
	_, err := RunLargeSource(ctx, sourcePath, targetPath, fn, opts...)
	return err
}

// RunLargeSource is ProcessLargeSource returning the run summary
func RunLargeSource(ctx context.Context, sourcePath, targetPath string, fn progress.Func, opts ...Option) (*Result, error) {
	o := Options{Ingest: config.DefaultIngestConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: targetPath}
	if o.Database != nil {
		dbCfg = *o.Database
		if dbCfg.Driver == config.DriverSQLite && targetPath != "" {
			dbCfg.Path = targetPath
		}
	}

	if sourcePath == "" {
		return nil, apperrors.Configuration("source path is required")
	}
	if err := o.Ingest.Validate(); err != nil {
		return nil, err
	}
	if err := dbCfg.Validate(); err != nil {
		return nil, err
	}
	if dbCfg.Driver == config.DriverSQLite {
		if err := storage.PrepareTarget(dbCfg.Path); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(ctx, dbCfg, o.Logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			o.Logger.Warn("failed to close store", slog.Any("error", cerr))
		}
	}()

	flattener := NewFlattener(db.DB, o.Ingest, o.Logger)
	return flattener.processFile(ctx, sourcePath, o.RunID, fn)
}
