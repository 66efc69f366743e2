package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// LocalStorage writes export files into a directory on the local filesystem
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// Config for local storage
type LocalStorageConfig struct {
	BasePath string // Directory that receives exports (e.g., "./exports")
}

// FileMetadata contains information about a file on disk
type FileMetadata struct {
	Name        string
	Path        string
	Size        int64
	Hash        string
	ContentType string
	ModTime     time.Time
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *LocalStorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		logger:   logger,
	}, nil
}

// SaveFile writes a file through write and moves it into place only once
// write has succeeded. The hash is calculated while writing.
func (s *LocalStorage) SaveFile(ctx context.Context, filename string, write func(io.Writer) error) (*FileMetadata, error) {
	// Sanitize filename
	safeName := filepath.Base(filename)
	destPath := filepath.Join(s.basePath, safeName)

	tmp, err := os.CreateTemp(s.basePath, "."+safeName+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hash := sha256.New()
	counter := &countingWriter{}
	multiWriter := io.MultiWriter(tmp, hash, counter)

	if err := write(multiWriter); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	fileHash := hex.EncodeToString(hash.Sum(nil))

	metadata := &FileMetadata{
		Name:        safeName,
		Path:        destPath,
		Size:        counter.n,
		Hash:        fileHash,
		ContentType: getContentType(safeName),
		ModTime:     time.Now(),
	}

	s.logger.Info("file saved",
		slog.String("path", destPath),
		slog.Int64("size", counter.n),
		slog.String("hash", fileHash))

	return metadata, nil
}

// ListFiles lists the files in the storage directory, newest first
func (s *LocalStorage) ListFiles(ctx context.Context) ([]FileMetadata, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	files := make([]FileMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileMetadata{
			Name:        entry.Name(),
			Path:        filepath.Join(s.basePath, entry.Name()),
			Size:        info.Size(),
			ContentType: getContentType(entry.Name()),
			ModTime:     info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

// CleanupOldFiles removes files older than the specified duration
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoffTime := time.Now().Add(-olderThan)

	files, err := s.ListFiles(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if !f.ModTime.Before(cutoffTime) {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove file",
				slog.String("path", f.Path),
				slog.Any("error", err))
			continue
		}
		removed++
		s.logger.Debug("removed old file",
			slog.String("path", f.Path),
			slog.Time("mod_time", f.ModTime))
	}

	s.logger.Info("cleanup completed",
		slog.Duration("older_than", olderThan),
		slog.Int("removed", removed))

	return removed, nil
}

// BasePath returns the storage directory
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// Fingerprint hashes a report on disk so repeated ingestion of the same
// source can be recognized
func Fingerprint(ctx context.Context, path string) (*FileMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.SourceNotFound(path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hr := NewHashingReader(&contextReader{ctx: ctx, r: file})
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	return &FileMetadata{
		Name:        filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		Hash:        hr.Sum(),
		ContentType: getContentType(path),
		ModTime:     info.ModTime(),
	}, nil
}

// PrepareTarget checks a store file path and creates its parent directory
func PrepareTarget(path string) error {
	if path == "" {
		return apperrors.Configuration("target store path is required")
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return apperrors.Configuration(fmt.Sprintf("target store path %s is a directory", path))
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return apperrors.Configuration(fmt.Sprintf("target store path %s is not accessible: %v", path, err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Configuration(fmt.Sprintf("cannot create directory for %s: %v", path, err))
	}
	return nil
}

// HashingReader computes the SHA-256 of everything read through it
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewHashingReader wraps r
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (h *HashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.h.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far
func (h *HashingReader) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// BytesRead returns how many bytes passed through
func (h *HashingReader) BytesRead() int64 {
	return h.n
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	ext := filepath.Ext(filename)
	switch ext {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xml":
		return "application/xml"
	case ".gz":
		return "application/gzip"
	case ".db", ".sqlite":
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}
