package parsers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// SourceOpener turns an opened report file into the byte stream the
// extractor reads
type SourceOpener interface {
	// Wrap returns the decoded stream. Closing it must not close file.
	Wrap(file *os.File) (io.ReadCloser, error)

	// Format names the encoding for logs
	Format() string

	// SupportedFormats returns the file extensions this opener handles
	SupportedFormats() []string
}

// Source is an opened report ready to be extracted
type Source struct {
	io.Reader
	Path   string
	Format string
	Size   int64

	stream io.ReadCloser
	file   *os.File
}

// Close releases the decoded stream and the underlying file
func (s *Source) Close() error {
	var errs []error
	if s.stream != nil {
		errs = append(errs, s.stream.Close())
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	return errors.Join(errs...)
}

// SourceFactory selects the opener for a report based on file extension
type SourceFactory struct {
	config  *ParserConfig
	openers map[string]SourceOpener
}

// NewSourceFactory creates a new factory with the built-in openers
func NewSourceFactory(config *ParserConfig) *SourceFactory {
	if config == nil {
		config = DefaultParserConfig()
	}

	factory := &SourceFactory{
		config:  config,
		openers: make(map[string]SourceOpener),
	}

	factory.RegisterOpener(xmlOpener{})
	factory.RegisterOpener(gzipOpener{})

	return factory
}

// RegisterOpener registers a custom opener
func (f *SourceFactory) RegisterOpener(opener SourceOpener) {
	for _, ext := range opener.SupportedFormats() {
		f.openers[normalizeExt(ext)] = opener
	}
}

// GetOpener returns the opener for a file extension
func (f *SourceFactory) GetOpener(fileExt string) (SourceOpener, error) {
	opener, exists := f.openers[normalizeExt(fileExt)]
	if !exists {
		return nil, apperrors.UnsupportedFormat(fileExt)
	}
	return opener, nil
}

// IsSupported checks if a file extension is supported
func (f *SourceFactory) IsSupported(fileExt string) bool {
	_, exists := f.openers[normalizeExt(fileExt)]
	return exists
}

// SupportedFormats returns all supported file extensions, sorted
func (f *SourceFactory) SupportedFormats() []string {
	formats := make([]string, 0, len(f.openers))
	for ext := range f.openers {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// Open opens the report at path. The caller must Close the result.
func (f *SourceFactory) Open(path string) (*Source, error) {
	opener, err := f.GetOpener(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.SourceNotFound(path)
		}
		return nil, apperrors.InternalWrap(err, "failed to open report")
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, apperrors.InternalWrap(err, "failed to stat report")
	}
	if stat.IsDir() {
		file.Close()
		return nil, apperrors.SourceNotFound(path).WithDetails("reason", "path is a directory")
	}

	// Check file size if limit is set
	if f.config.MaxFileSize > 0 && stat.Size() > f.config.MaxFileSize {
		file.Close()
		return nil, apperrors.FileTooLarge(f.config.MaxFileSize/(1024*1024)).
			WithDetails("size", stat.Size())
	}

	stream, err := opener.Wrap(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Source{
		Reader: stream,
		Path:   path,
		Format: opener.Format(),
		Size:   stat.Size(),
		stream: stream,
		file:   file,
	}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

type xmlOpener struct{}

func (xmlOpener) Wrap(file *os.File) (io.ReadCloser, error) {
	return io.NopCloser(file), nil
}

func (xmlOpener) Format() string { return "XML" }

func (xmlOpener) SupportedFormats() []string {
	return []string{".xml"}
}

// gzipOpener reads compressed reports (report.xml.gz)
type gzipOpener struct{}

func (gzipOpener) Wrap(file *os.File) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, apperrors.Structural(fmt.Errorf("invalid gzip stream: %w", err))
	}
	return zr, nil
}

func (gzipOpener) Format() string { return "XML+GZIP" }

func (gzipOpener) SupportedFormats() []string {
	return []string{".gz"}
}
