package parsers

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// xmlGroup captures only the immediate file and match children of a group.
// Any other child, including a nested group, is skipped by the decoder.
type xmlGroup struct {
	Files   []xmlElement `xml:"file"`
	Matches []xmlElement `xml:"match"`
}

type xmlElement struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func (e xmlElement) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ReportExtractor reads a duplicate report as a stream of XML tokens and
// materializes one group element at a time.
type ReportExtractor struct {
	config  *ParserConfig
	decoder *xml.Decoder
	stats   ExtractStats
	sawRoot bool
	done    bool
}

// NewReportExtractor creates a new extractor over r
func NewReportExtractor(r io.Reader, config *ParserConfig) *ReportExtractor {
	if config == nil {
		config = DefaultParserConfig()
	}

	return &ReportExtractor{
		config:  config,
		decoder: newDecoder(r, config),
	}
}

func newDecoder(r io.Reader, config *ParserConfig) *xml.Decoder {
	size := config.ReadBufferSize
	if size <= 0 {
		size = 64 * 1024
	}

	decoder := xml.NewDecoder(bufio.NewReaderSize(normalizeBOM(r), size))
	decoder.CharsetReader = charsetReader
	decoder.Strict = true
	return decoder
}

// Next returns the next group of the report, or io.EOF after the last one
func (e *ReportExtractor) Next(ctx context.Context) (*domain.GroupRecord, error) {
	if e.done {
		return nil, io.EOF
	}

	groupName := e.config.groupElement()

	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := e.decoder.Token()
		if errors.Is(err, io.EOF) {
			e.done = true
			if !e.sawRoot {
				return nil, apperrors.StructuralMessage("report has no root element")
			}
			return nil, io.EOF
		}
		if err != nil {
			e.done = true
			return nil, apperrors.Structural(err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		e.sawRoot = true

		if start.Name.Local != groupName {
			continue
		}

		var raw xmlGroup
		if err := e.decoder.DecodeElement(&raw, &start); err != nil {
			e.done = true
			return nil, apperrors.Structural(err)
		}

		return e.toRecord(&raw), nil
	}
}

// Stats returns the counters accumulated so far
func (e *ReportExtractor) Stats() ExtractStats {
	return e.stats
}

func (e *ReportExtractor) toRecord(raw *xmlGroup) *domain.GroupRecord {
	record := &domain.GroupRecord{
		Files:   make([]domain.FileEntry, 0, len(raw.Files)),
		Matches: make([]domain.MatchEntry, 0, len(raw.Matches)),
	}

	for i, f := range raw.Files {
		path, ok := f.attr("path")
		if !ok {
			// older reports carry the location in name
			path, ok = f.attr("name")
		}
		if !ok {
			e.stats.DefaultsApplied++
		}
		marked, _ := f.attr("marked")

		record.Files = append(record.Files, domain.FileEntry{
			Position: i,
			Path:     path,
			Marked:   marked,
		})
	}

	for _, m := range raw.Matches {
		record.Matches = append(record.Matches, domain.MatchEntry{
			First:      e.intAttr(m, "first"),
			Second:     e.intAttr(m, "second"),
			Percentage: e.floatAttr(m, "percentage"),
		})
	}

	e.stats.Groups++
	e.stats.Files += len(record.Files)
	e.stats.Matches += len(record.Matches)

	return record
}

func (e *ReportExtractor) intAttr(el xmlElement, name string) int {
	v, ok := el.attr(name)
	if !ok {
		e.stats.DefaultsApplied++
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.stats.DefaultsApplied++
		return 0
	}
	return n
}

func (e *ReportExtractor) floatAttr(el xmlElement, name string) float64 {
	v, ok := el.attr(name)
	if !ok {
		e.stats.DefaultsApplied++
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		e.stats.DefaultsApplied++
		return 0
	}
	return f
}
