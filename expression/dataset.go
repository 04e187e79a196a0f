package expression

import (
	"io"
	"strings"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/ortholog"
)

// SpeciesBlock holds one species' samples and their raw, unmerged matrix.
type SpeciesBlock struct {
	Species string
	Samples []Sample
	Raw     *Matrix
}

// Dataset is threaded through every pipeline stage. Each stage returns a new
// Dataset and leaves its input untouched.
type Dataset struct {
	A SpeciesBlock
	B SpeciesBlock

	// Orthologs is the pair table aligned with the rows of Merged.
	Orthologs  *ortholog.Table
	Merged     *Matrix
	Normalized *Matrix
	Merge      MergeReport
}

// Copy returns a shallow copy. Matrices are never modified in place, so they
// can be shared between copies.
func (ds *Dataset) Copy() *Dataset {
	out := *ds
	return &out
}

// Samples lists A's samples then B's, matching the merged column order.
func (ds *Dataset) Samples() []Sample {
	out := make([]Sample, 0, len(ds.A.Samples)+len(ds.B.Samples))
	out = append(out, ds.A.Samples...)
	return append(out, ds.B.Samples...)
}

// Label names the block in results: the group label its samples share, if
// they share one, otherwise the species.
func (b SpeciesBlock) Label() string {
	if len(b.Samples) == 0 || b.Samples[0].GroupLabel == "" {
		return b.Species
	}
	for _, s := range b.Samples[1:] {
		if s.GroupLabel != b.Samples[0].GroupLabel {
			return b.Species
		}
	}
	return b.Samples[0].GroupLabel
}

// Groups returns one label per merged column. Columns are always partitioned
// by species; a group label only renames its species' block.
func (ds *Dataset) Groups() []string {
	a, b := ds.A.Label(), ds.B.Label()
	if a == b {
		a, b = ds.A.Species, ds.B.Species
	}

	out := make([]string, 0, len(ds.A.Samples)+len(ds.B.Samples))
	for range ds.A.Samples {
		out = append(out, a)
	}
	for range ds.B.Samples {
		out = append(out, b)
	}
	return out
}

// WriteMatrix writes m, which must be row-aligned with the ortholog table, as
// TSV with both species' gene ids and names leading each row.
func (ds *Dataset) WriteMatrix(w io.Writer, m *Matrix) error {
	const op = "expression.WriteMatrix"

	if m == nil {
		return orthoexpr.Validationf(op, "no matrix to write")
	}

	t := ds.Orthologs
	if t == nil || t.Len() != len(m.Rows) {
		if err := m.WriteTSV(w); err != nil {
			return orthoexpr.Wrap(orthoexpr.KindIO, op, err)
		}
		return nil
	}

	err := m.writeTSV(w, []string{"gene_id_a", "gene_name_a", "gene_id_b", "gene_name_b"}, func(i int) []string {
		return []string{t.A[i].ID, t.A[i].Name, t.B[i].ID, t.B[i].Name}
	})
	if err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	return nil
}

// RowKey names a merged row after its ortholog pair.
func RowKey(geneA, geneB string) string {
	return geneA + "|" + geneB
}

// SplitRowKey reverses RowKey.
func SplitRowKey(key string) (geneA, geneB string) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}
