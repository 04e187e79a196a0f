package orthoexpr

import (
	"bytes"
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file. Tab wins over comma when the
// detector cannot decide, since most expression quantifiers emit TSV.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return '\t'
}

// DetermineDelimiterBytes is DetermineDelimiter for an in-memory buffer, with
// a fallback for single-column headers the detector cannot score.
func DetermineDelimiterBytes(b []byte) rune {
	firstLine := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		firstLine = b[:i]
	}
	switch {
	case bytes.IndexByte(firstLine, '\t') >= 0:
		return '\t'
	case bytes.IndexByte(firstLine, ',') < 0:
		return '\t'
	}

	if d := DetermineDelimiter(bytes.NewReader(b)); bytes.ContainsRune(firstLine, d) {
		return d
	}

	return ','
}
