package parsers

import (
	"context"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
)

// GroupSource yields the groups of a report one at a time. Next returns
// io.EOF once the report is exhausted; a source cannot be restarted.
type GroupSource interface {
	Next(ctx context.Context) (*domain.GroupRecord, error)

	// Stats returns the counters accumulated so far
	Stats() ExtractStats
}

// ExtractStats contains extraction statistics
type ExtractStats struct {
	Groups  int `json:"groups"`
	Files   int `json:"files"`
	Matches int `json:"matches"`

	// DefaultsApplied counts attributes that were missing or malformed
	// and were replaced by "" or 0.
	DefaultsApplied int `json:"defaults_applied"`
}

// ParserConfig holds configuration for report parsing
type ParserConfig struct {
	// GroupElement is the local name of the repeated group element
	GroupElement string

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64

	// ReadBufferSize is the size of the buffered reader placed in front of
	// the decoder
	ReadBufferSize int
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		GroupElement:   "group",
		MaxFileSize:    0,
		ReadBufferSize: 64 * 1024,
	}
}

func (c *ParserConfig) groupElement() string {
	if c == nil || c.GroupElement == "" {
		return "group"
	}
	return c.GroupElement
}
