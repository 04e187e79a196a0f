// Package ortholog reduces raw homology annotation to unique, reciprocal 1-to-1
// ortholog pairs and provides the filters, summaries and cache codec that work
// on the resulting table.
package ortholog

import (
	"github.com/carbocation/orthoexpr"
)

// Gene is the per-species annotation carried for one side of an ortholog pair.
type Gene struct {
	ID         string
	Name       string
	Chromosome string
	Type       string
}

// Table holds confirmed 1-to-1 orthologs as two row-aligned columns: A[i] and
// B[i] are a mutually reciprocal unique match, and no gene id appears twice
// within a column.
type Table struct {
	SpeciesA string
	SpeciesB string
	A        []Gene
	B        []Gene
}

// Side selects one species' column of a Table.
type Side byte

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

// Len is the number of ortholog pairs.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.A)
}

// Genes returns the column for side.
func (t *Table) Genes(side Side) []Gene {
	if side == SideB {
		return t.B
	}
	return t.A
}

// Validate checks the alignment and uniqueness invariants.
func (t *Table) Validate() error {
	const op = "ortholog.Validate"

	if t == nil {
		return orthoexpr.Validationf(op, "ortholog table is nil")
	}
	if len(t.A) != len(t.B) {
		return orthoexpr.Validationf(op, "species columns are not aligned: %d vs %d rows", len(t.A), len(t.B))
	}

	for _, side := range []Side{SideA, SideB} {
		seen := make(map[string]int, t.Len())
		for i, g := range t.Genes(side) {
			if g.ID == "" {
				return orthoexpr.Validationf(op, "row %d of species %s has an empty gene id", i, side)
			}
			if j, exists := seen[g.ID]; exists {
				return orthoexpr.Validationf(op, "gene %s appears in rows %d and %d of species %s", g.ID, j, i, side)
			}
			seen[g.ID] = i
		}
	}

	return nil
}

// Subset returns a new table holding the rows listed in keep, in that order.
func (t *Table) Subset(keep []int) *Table {
	out := &Table{
		SpeciesA: t.SpeciesA,
		SpeciesB: t.SpeciesB,
		A:        make([]Gene, 0, len(keep)),
		B:        make([]Gene, 0, len(keep)),
	}
	for _, i := range keep {
		out.A = append(out.A, t.A[i])
		out.B = append(out.B, t.B[i])
	}

	return out
}

// Equal reports whether two tables hold the same species and rows in the same
// order.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.SpeciesA != o.SpeciesA || t.SpeciesB != o.SpeciesB || len(t.A) != len(o.A) || len(t.B) != len(o.B) {
		return false
	}
	for i := range t.A {
		if t.A[i] != o.A[i] || t.B[i] != o.B[i] {
			return false
		}
	}

	return true
}
