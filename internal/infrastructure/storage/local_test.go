package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

func setupTestStorage(t *testing.T) (*LocalStorage, string) {
	// Create temporary directory for tests
	tempDir := filepath.Join(t.TempDir(), "exports")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))

	storage, err := NewLocalStorage(&LocalStorageConfig{
		BasePath: tempDir,
	}, logger)
	require.NoError(t, err)

	return storage, tempDir
}

func TestLocalStorage_SaveFile(t *testing.T) {
	storage, dir := setupTestStorage(t)
	ctx := context.Background()
	content := []byte("group_id,file_id\n1,0\n")

	metadata, err := storage.SaveFile(ctx, "../../groups.xlsx", func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "groups.xlsx", metadata.Name)
	assert.Equal(t, filepath.Join(dir, "groups.xlsx"), metadata.Path)
	assert.Equal(t, int64(len(content)), metadata.Size)
	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), metadata.Hash)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", metadata.ContentType)

	data, err := os.ReadFile(metadata.Path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalStorage_SaveFileFailureLeavesNothing(t *testing.T) {
	storage, dir := setupTestStorage(t)

	_, err := storage.SaveFile(context.Background(), "broken.xlsx", func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("export failed")
	})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_ListAndCleanup(t *testing.T) {
	storage, dir := setupTestStorage(t)
	ctx := context.Background()

	for _, name := range []string{"old.xlsx", "new.xlsx"} {
		_, err := storage.SaveFile(ctx, name, func(w io.Writer) error {
			_, err := w.Write([]byte(name))
			return err
		})
		require.NoError(t, err)
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.xlsx"), oldTime, oldTime))

	files, err := storage.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "new.xlsx", files[0].Name)

	removed, err := storage.CleanupOldFiles(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files, err = storage.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "new.xlsx", files[0].Name)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xml")
	content := []byte(`<duplicates><group/></duplicates>`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	meta, err := Fingerprint(context.Background(), path)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), meta.Hash)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Equal(t, "report.xml", meta.Name)
	assert.Equal(t, "application/xml", meta.ContentType)

	again, err := Fingerprint(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, meta.Hash, again.Hash)
}

func TestFingerprint_Errors(t *testing.T) {
	_, err := Fingerprint(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeSourceNotFound))

	path := filepath.Join(t.TempDir(), "report.xml")
	require.NoError(t, os.WriteFile(path, []byte("<r/>"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fingerprint(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrepareTarget(t *testing.T) {
	dir := t.TempDir()

	nested := filepath.Join(dir, "a", "b", "store.db")
	require.NoError(t, PrepareTarget(nested))
	info, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = PrepareTarget(dir)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))

	err = PrepareTarget("")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))
}

func TestHashingReader(t *testing.T) {
	content := "<duplicates/>"
	hr := NewHashingReader(strings.NewReader(content))

	data, err := io.ReadAll(hr)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), hr.Sum())
	assert.Equal(t, int64(len(content)), hr.BytesRead())
}
