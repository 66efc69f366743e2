package parsers

import (
	"context"
	"encoding/xml"
	"errors"
	"io"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// prescanCheckInterval is how many tokens are read between context checks
const prescanCheckInterval = 4096

// CountGroups walks the raw token stream once and counts the group
// elements that ReportExtractor would yield, without building any of them.
// It is used to give progress reporting a known total.
func CountGroups(ctx context.Context, r io.Reader, config *ParserConfig) (int, error) {
	if config == nil {
		config = DefaultParserConfig()
	}

	decoder := newDecoder(r, config)
	groupName := config.groupElement()

	count := 0
	depth := 0 // element depth inside the current group, 0 when outside
	tokens := 0

	for {
		tokens++
		if tokens%prescanCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return count, err
			}
		}

		tok, err := decoder.RawToken()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, apperrors.Structural(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
			} else if t.Name.Local == groupName {
				count++
				depth = 1
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		}
	}
}
