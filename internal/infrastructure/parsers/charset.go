package parsers

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// normalizeBOM converts UTF-16 input that starts with a byte order mark to
// UTF-8 and strips a UTF-8 BOM. Input without a BOM passes through.
func normalizeBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(encoding.Nop.NewDecoder()))
}

// charsetReader is installed as xml.Decoder.CharsetReader. It is only
// consulted when the XML declaration names an encoding other than UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(label))

	// normalizeBOM has already produced UTF-8 for these
	if strings.HasPrefix(name, "utf-16") || name == "unicode" {
		return input, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return input, nil
	}

	return transform.NewReader(input, enc.NewDecoder()), nil
}
