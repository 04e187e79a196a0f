package expression

import (
	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/logger"
	"github.com/carbocation/orthoexpr/ortholog"
)

// MinRows and MinCols bound the shape of a matrix that can be normalized and
// tested: two genes and two replicates per species.
const (
	MinRows       = 2
	MinCols       = 4
	MinReplicates = 2
)

// MergeReport accounts for every ortholog pair offered to Merge.
type MergeReport struct {
	Input int
	Kept  int

	// MissingA and MissingB count pairs whose gene is absent from that
	// species' matrix. A pair absent from both is counted in each.
	MissingA int
	MissingB int

	// MissingValues counts pairs present in both species with at least one
	// missing value.
	MissingValues int
}

// Dropped is the number of pairs that did not make it into the merged matrix.
func (r MergeReport) Dropped() int {
	return r.Input - r.Kept
}

// CheckShape returns a validation error if m is too small to analyse.
func CheckShape(op string, m *Matrix) error {
	rows, cols := m.Dims()
	if rows < MinRows {
		return orthoexpr.Validationf(op, "matrix has %d rows, at least %d are required", rows, MinRows)
	}
	if cols < MinCols {
		return orthoexpr.Validationf(op, "matrix has %d columns, at least %d are required", cols, MinCols)
	}
	return nil
}

// Merge joins the two species' raw matrices through the ortholog table. Pairs
// whose genes are missing from either matrix, or that carry a missing value,
// are dropped and counted in the report.
func Merge(ds *Dataset, t *ortholog.Table) (*Dataset, error) {
	const op = "expression.Merge"

	if ds == nil || ds.A.Raw == nil || ds.B.Raw == nil {
		return nil, orthoexpr.Validationf(op, "dataset has no raw expression to merge")
	}
	if err := t.Validate(); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}

	rawA, rawB := ds.A.Raw, ds.B.Raw
	for _, block := range []SpeciesBlock{ds.A, ds.B} {
		if n := len(block.Raw.Cols); n < MinReplicates {
			return nil, orthoexpr.Validationf(op, "%s has %d replicates, at least %d are required", block.Species, n, MinReplicates)
		}
	}
	indexA, indexB := rawA.RowIndex(), rawB.RowIndex()

	cols := make([]string, 0, len(rawA.Cols)+len(rawB.Cols))
	cols = append(cols, rawA.Cols...)
	cols = append(cols, rawB.Cols...)

	report := MergeReport{Input: t.Len()}
	keep := make([]int, 0, t.Len())
	keys := make([]string, 0, t.Len())
	values := make([][]float64, 0, t.Len())

	for i := range t.A {
		ia, okA := indexA[t.A[i].ID]
		ib, okB := indexB[t.B[i].ID]
		if !okA {
			report.MissingA++
		}
		if !okB {
			report.MissingB++
		}
		if !okA || !okB {
			continue
		}
		if rawA.HasMissing(ia) || rawB.HasMissing(ib) {
			report.MissingValues++
			continue
		}

		row := make([]float64, 0, len(cols))
		row = append(row, rawA.Values[ia]...)
		row = append(row, rawB.Values[ib]...)

		keep = append(keep, i)
		keys = append(keys, RowKey(t.A[i].ID, t.B[i].ID))
		values = append(values, row)
	}
	report.Kept = len(keep)

	merged := &Matrix{Rows: keys, Cols: cols, Values: values}

	logger.Info("Merged species on orthologs",
		zap.Int("pairs", report.Input),
		zap.Int("kept", report.Kept),
		zap.Int("dropped", report.Dropped()),
		zap.Int("missing_a", report.MissingA),
		zap.Int("missing_b", report.MissingB),
		zap.Int("missing_values", report.MissingValues))

	if err := CheckShape(op, merged); err != nil {
		return nil, err
	}

	out := ds.Copy()
	out.Orthologs = t.Subset(keep)
	out.Merged = merged
	out.Normalized = nil
	out.Merge = report

	return out, nil
}
