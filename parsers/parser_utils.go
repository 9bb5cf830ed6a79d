// Package parsers reads and writes the CSV files exchanged with other clinic software.
package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SkipBOM drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	bom := []byte{0xEF, 0xBB, 0xBF}
	peeked, err := br.Peek(3)
	if err != nil {
		return br
	}
	for i, b := range bom {
		if peeked[i] != b {
			return br
		}
	}
	br.Discard(3)
	return br
}

// getColIndex maps trimmed, lower-cased header names to column positions.
func getColIndex(header []string, required []string) (map[string]int, error) {
	colIndex := make(map[string]int)
	for i, colName := range header {
		colIndex[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("required header missing: %s", req)
		}
	}
	return colIndex, nil
}

// LookupEncoding resolves a WHATWG label such as "shift_jis" or "windows-1252".
// An empty label means UTF-8.
func LookupEncoding(label string) (encoding.Encoding, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "sjis", "cp932":
		return japanese.ShiftJIS, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc, nil
}

// NewDecodingReader returns r converted to UTF-8 from the labelled encoding,
// with any UTF-8 BOM removed.
func NewDecodingReader(r io.Reader, label string) (io.Reader, error) {
	enc, err := LookupEncoding(label)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return SkipBOM(r), nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// NewEncodingWriter returns a writer that converts UTF-8 into the labelled encoding.
// Characters the target cannot represent are replaced.
func NewEncodingWriter(w io.Writer, label string) (io.Writer, error) {
	enc, err := LookupEncoding(label)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return w, nil
	}
	return transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder())), nil
}
