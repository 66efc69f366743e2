// Package export writes a flattened store to an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/storage"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

const (
	SheetGroups  = "groups"
	SheetMatches = "matches"
	SheetRuns    = "runs"
)

// readBatchSize is how many rows are loaded from the store at a time
const readBatchSize = 5000

// maxSheetRows is the row limit of one worksheet. Tables that do not fit
// continue on "<name> (2)", "<name> (3)", ...
var maxSheetRows = excelize.TotalRows

var (
	groupsHeader  = []interface{}{"group_id", "file_id", "filepath", "filename", "status"}
	matchesHeader = []interface{}{"group_id", "first", "second", "percentage"}
	runsHeader    = []interface{}{"run_id", "source_path", "source_hash", "groups", "files", "matches", "fully_identical_groups", "defaults_applied", "started_at", "completed_at"}
)

// Stats reports how many rows were exported
type Stats struct {
	Files   int64 `json:"files"`
	Matches int64 `json:"matches"`
	Runs    int   `json:"runs"`
	Sheets  int   `json:"sheets"`
}

// Exporter streams the tables of a store into a workbook without loading
// them in memory
type Exporter struct {
	groups *repositories.GroupRepository
	runs   *repositories.RunRepository
	logger *slog.Logger
}

// NewExporter creates an exporter reading from db
func NewExporter(db *gorm.DB, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		groups: repositories.NewGroupRepository(db, logger),
		runs:   repositories.NewRunRepository(db, logger),
		logger: logger,
	}
}

// ExportTo writes the workbook as filename inside store
func (e *Exporter) ExportTo(ctx context.Context, store *storage.LocalStorage, filename string) (*storage.FileMetadata, *Stats, error) {
	var stats *Stats
	meta, err := store.SaveFile(ctx, filename, func(w io.Writer) error {
		var werr error
		stats, werr = e.Write(ctx, w)
		return werr
	})
	if err != nil {
		return nil, nil, err
	}
	return meta, stats, nil
}

// Write produces the workbook on w
func (e *Exporter) Write(ctx context.Context, w io.Writer) (*Stats, error) {
	f := excelize.NewFile()
	defer f.Close()

	stats := &Stats{}

	// the default sheet becomes the first groups sheet
	if err := f.SetSheetName(f.GetSheetName(0), SheetGroups); err != nil {
		return nil, apperrors.InternalWrap(err, "failed to create workbook")
	}

	groups, err := newSheetWriter(f, SheetGroups, groupsHeader, []float64{10, 8, 60, 30, 12})
	if err != nil {
		return nil, err
	}
	err = e.groups.EachFile(ctx, readBatchSize, func(rows []domain.GroupFile) error {
		for _, row := range rows {
			if err := groups.add([]interface{}{row.GroupID, row.FileID, row.Filepath, row.Filename, row.Status()}); err != nil {
				return err
			}
		}
		stats.Files += int64(len(rows))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := groups.close(); err != nil {
		return nil, err
	}

	matches, err := newSheetWriter(f, SheetMatches, matchesHeader, []float64{10, 8, 8, 12})
	if err != nil {
		return nil, err
	}
	err = e.groups.EachMatch(ctx, readBatchSize, func(rows []domain.Match) error {
		for _, row := range rows {
			if err := matches.add([]interface{}{row.GroupID, row.First, row.Second, row.Percentage}); err != nil {
				return err
			}
		}
		stats.Matches += int64(len(rows))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := matches.close(); err != nil {
		return nil, err
	}

	runs, err := e.runs.List(ctx, -1)
	if err != nil {
		return nil, err
	}
	runSheet, err := newSheetWriter(f, SheetRuns, runsHeader, []float64{38, 60, 66, 10, 10, 10, 12, 12, 22, 22})
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		err := runSheet.add([]interface{}{
			run.RunID.String(), run.SourcePath, run.SourceHash,
			run.GroupCount, run.FileCount, run.MatchCount,
			run.FullyIdenticalGroups, run.DefaultsApplied,
			run.StartedAt.UTC().Format(time.RFC3339), run.CompletedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
	}
	if err := runSheet.close(); err != nil {
		return nil, err
	}
	stats.Runs = len(runs)
	stats.Sheets = len(f.GetSheetList())

	if err := f.Write(w); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("export completed",
		slog.Int64("files", stats.Files),
		slog.Int64("matches", stats.Matches),
		slog.Int("runs", stats.Runs),
		slog.Int("sheets", stats.Sheets))

	return stats, nil
}

// sheetWriter appends rows to a table that may span several sheets
type sheetWriter struct {
	file   *excelize.File
	name   string
	header []interface{}
	widths []float64

	part   int
	row    int
	stream *excelize.StreamWriter
}

func newSheetWriter(f *excelize.File, name string, header []interface{}, widths []float64) (*sheetWriter, error) {
	w := &sheetWriter{file: f, name: name, header: header, widths: widths}
	if err := w.nextSheet(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *sheetWriter) sheetName() string {
	if w.part == 1 {
		return w.name
	}
	return fmt.Sprintf("%s (%d)", w.name, w.part)
}

func (w *sheetWriter) nextSheet() error {
	if w.stream != nil {
		if err := w.stream.Flush(); err != nil {
			return fmt.Errorf("failed to flush sheet %s: %w", w.sheetName(), err)
		}
	}

	w.part++
	name := w.sheetName()
	if idx, _ := w.file.GetSheetIndex(name); idx < 0 {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	stream, err := w.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", name, err)
	}
	for i, width := range w.widths {
		if err := stream.SetColWidth(i+1, i+1, width); err != nil {
			return fmt.Errorf("failed to size sheet %s: %w", name, err)
		}
	}

	w.stream = stream
	w.row = 0
	return w.write(w.header)
}

func (w *sheetWriter) add(values []interface{}) error {
	if w.row >= maxSheetRows {
		if err := w.nextSheet(); err != nil {
			return err
		}
	}
	return w.write(values)
}

func (w *sheetWriter) write(values []interface{}) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", w.row, w.sheetName(), err)
	}
	return nil
}

func (w *sheetWriter) close() error {
	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", w.sheetName(), err)
	}
	return nil
}
