package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/services/ingest"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/storage"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	"github.com/alejandroruanova/dupflatten/internal/pkg/logger"
)

const report = `<duplicates>
  <group>
    <file path="C:\pics\a.jpg"/>
    <file path="C:\pics\b.jpg"/>
    <match first="0" second="1" percentage="100"/>
  </group>
  <group>
    <file path="/srv/c.png"/>
    <file path="/srv/d.png"/>
    <match first="0" second="1" percentage="91.5"/>
  </group>
</duplicates>`

func setupStore(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "xml_data.db"),
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = ingest.NewFlattener(db.DB, config.DefaultIngestConfig(), logger.Discard()).
		Process(context.Background(), strings.NewReader(report), ingest.ProcessOptions{SourcePath: "report.xml"})
	require.NoError(t, err)

	return db.DB
}

func TestExporter_Write(t *testing.T) {
	db := setupStore(t)

	var buf bytes.Buffer
	stats, err := NewExporter(db, logger.Discard()).Write(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Files)
	assert.Equal(t, int64(2), stats.Matches)
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 3, stats.Sheets)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetGroups, SheetMatches, SheetRuns}, f.GetSheetList())

	rows, err := f.GetRows(SheetGroups)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"group_id", "file_id", "filepath", "filename", "status"}, rows[0])
	assert.Equal(t, []string{"1", "0", `C:\pics\a.jpg`, "a.jpg", "Original"}, rows[1])
	assert.Equal(t, []string{"1", "1", `C:\pics\b.jpg`, "b.jpg", "Duplicate"}, rows[2])
	assert.Equal(t, []string{"2", "0", "/srv/c.png", "c.png", "Duplicate"}, rows[3])

	rows, err = f.GetRows(SheetMatches)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2", "0", "1", "91.5"}, rows[2])

	rows, err = f.GetRows(SheetRuns)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "report.xml", rows[1][1])
}

func TestExporter_SplitsLargeTables(t *testing.T) {
	db := setupStore(t)

	old := maxSheetRows
	maxSheetRows = 3 // header plus two rows
	defer func() { maxSheetRows = old }()

	var buf bytes.Buffer
	_, err := NewExporter(db, logger.Discard()).Write(context.Background(), &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetGroups, "groups (2)", SheetMatches, SheetRuns}, f.GetSheetList())

	second, err := f.GetRows("groups (2)")
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, "group_id", second[0][0])
	assert.Equal(t, "/srv/c.png", second[1][2])
}

func TestExporter_ExportTo(t *testing.T) {
	db := setupStore(t)

	store, err := storage.NewLocalStorage(&storage.LocalStorageConfig{BasePath: t.TempDir()}, logger.Discard())
	require.NoError(t, err)

	meta, stats, err := NewExporter(db, logger.Discard()).ExportTo(context.Background(), store, "groups.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "groups.xlsx", meta.Name)
	assert.Positive(t, meta.Size)
	assert.Len(t, meta.Hash, 64)
	assert.Equal(t, int64(4), stats.Files)

	f, err := excelize.OpenFile(meta.Path)
	require.NoError(t, err)
	f.Close()
}
