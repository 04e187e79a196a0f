package expression

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/carbocation/orthoexpr"
)

// Sample is one row of the sample metadata table.
type Sample struct {
	SampleID   string `csv:"sample_id"`
	Species    string `csv:"species"`
	FilePath   string `csv:"file_path"`
	GroupLabel string `csv:"group"`
}

var requiredMetadataColumns = []string{"sample_id", "species", "file_path"}

// ReadMetadata parses a sample table with columns sample_id, species and
// file_path, and optionally group. The delimiter is detected from the content.
// A legacy Excel (.xls) workbook is read from its first sheet.
func ReadMetadata(r io.Reader) ([]Sample, error) {
	const op = "expression.ReadMetadata"

	raw, err := orthoexpr.ReadAllMaybeCompressed(io.NopCloser(r))
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, orthoexpr.Validationf(op, "sample metadata is empty")
	}

	delim := '\t'
	if isSpreadsheet(raw) {
		if raw, err = spreadsheetToTSV(raw); err != nil {
			return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, orthoexpr.Validationf(op, "sample metadata sheet is empty")
		}
	} else {
		delim = orthoexpr.DetermineDelimiterBytes(raw)
	}

	header, err := newReader(raw, delim).Read()
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	for _, col := range requiredMetadataColumns {
		if !present[col] {
			return nil, orthoexpr.Validationf(op, "sample metadata lacks the %q column; header is %v", col, header)
		}
	}

	samples := make([]Sample, 0)
	if err := gocsv.UnmarshalCSV(newReader(raw, delim), &samples); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	seen := make(map[string]int, len(samples))
	for i := range samples {
		s := &samples[i]
		s.SampleID = strings.TrimSpace(s.SampleID)
		s.Species = strings.TrimSpace(s.Species)
		s.FilePath = strings.TrimSpace(s.FilePath)
		s.GroupLabel = strings.TrimSpace(s.GroupLabel)

		if s.SampleID == "" {
			return nil, orthoexpr.Validationf(op, "sample on row %d has an empty sample_id", i+1)
		}
		if s.Species == "" {
			return nil, orthoexpr.Validationf(op, "sample %s has no species", s.SampleID)
		}
		if s.FilePath == "" {
			return nil, orthoexpr.Validationf(op, "sample %s has no file_path", s.SampleID)
		}
		if j, exists := seen[s.SampleID]; exists {
			return nil, orthoexpr.Validationf(op, "sample id %s appears on rows %d and %d", s.SampleID, j+1, i+1)
		}
		seen[s.SampleID] = i
	}

	if len(samples) == 0 {
		return nil, orthoexpr.Validationf(op, "sample metadata has a header but no samples")
	}

	return samples, nil
}

func newReader(raw []byte, delim rune) *csv.Reader {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = delim
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	return cr
}
