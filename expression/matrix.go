// Package expression loads per-replicate expression quantification files into
// per-species matrices and merges two species onto a shared ortholog index.
package expression

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
)

// Matrix is a genes-by-replicates table of expression values. Values[i][j] is
// gene Rows[i] in replicate Cols[j]. Missing values are NaN, never zero.
// Matrices are not modified once built; stages produce new ones.
type Matrix struct {
	Rows   []string
	Cols   []string
	Values [][]float64
}

// NewMatrix allocates a NaN-filled matrix.
func NewMatrix(rows, cols []string) *Matrix {
	m := &Matrix{
		Rows:   rows,
		Cols:   cols,
		Values: make([][]float64, len(rows)),
	}
	for i := range m.Values {
		row := make([]float64, len(cols))
		for j := range row {
			row[j] = math.NaN()
		}
		m.Values[i] = row
	}

	return m
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	if m == nil {
		return 0, 0
	}
	return len(m.Rows), len(m.Cols)
}

// Row returns the values of the named row.
func (m *Matrix) Row(id string) ([]float64, bool) {
	for i, r := range m.Rows {
		if r == id {
			return m.Values[i], true
		}
	}
	return nil, false
}

// RowIndex maps each row id to its position.
func (m *Matrix) RowIndex() map[string]int {
	out := make(map[string]int, len(m.Rows))
	for i, r := range m.Rows {
		out[r] = i
	}
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	if m == nil {
		return nil
	}
	out := &Matrix{
		Rows:   append([]string(nil), m.Rows...),
		Cols:   append([]string(nil), m.Cols...),
		Values: make([][]float64, len(m.Values)),
	}
	for i, row := range m.Values {
		out.Values[i] = append([]float64(nil), row...)
	}

	return out
}

// HasMissing reports whether row i holds a NaN.
func (m *Matrix) HasMissing(i int) bool {
	for _, v := range m.Values[i] {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// ColSums returns the per-column totals, skipping missing values.
func (m *Matrix) ColSums() []float64 {
	out := make([]float64, len(m.Cols))
	for _, row := range m.Values {
		for j, v := range row {
			if !math.IsNaN(v) {
				out[j] += v
			}
		}
	}
	return out
}

// WriteTSV writes the matrix with a gene_id header column. Missing values are
// written as NA.
func (m *Matrix) WriteTSV(w io.Writer) error {
	return m.writeTSV(w, []string{"gene_id"}, func(i int) []string { return []string{m.Rows[i]} })
}

func (m *Matrix) writeTSV(w io.Writer, leading []string, lead func(i int) []string) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(append(leading, m.Cols...), "\t") + "\n"); err != nil {
		return pfx.Err(err)
	}

	fields := make([]string, 0, len(leading)+len(m.Cols))
	for i, row := range m.Values {
		fields = append(fields[:0], lead(i)...)
		for _, v := range row {
			fields = append(fields, formatValue(v))
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return pfx.Err(err)
		}
	}

	if err := bw.Flush(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
