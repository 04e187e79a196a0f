package ortholog

import (
	"github.com/carbocation/orthoexpr"
)

// Predicates restrict an ortholog table. A nil or empty slice leaves its
// dimension unconstrained; given predicates combine with AND. Gene type and chromosome
// are tested against species A's annotation. Gene ids match a row when either
// species' id is listed.
type Predicates struct {
	GeneTypeInclude   []string
	GeneTypeExclude   []string
	ChromosomeInclude []string
	ChromosomeExclude []string
	GeneIDInclude     []string
	GeneIDExclude     []string
}

// Empty reports whether no predicate is set.
func (p Predicates) Empty() bool {
	return len(p.GeneTypeInclude) == 0 && len(p.GeneTypeExclude) == 0 &&
		len(p.ChromosomeInclude) == 0 && len(p.ChromosomeExclude) == 0 &&
		len(p.GeneIDInclude) == 0 && len(p.GeneIDExclude) == 0
}

// Check rejects contradictory or malformed predicates without touching a
// table.
func (p Predicates) Check() error {
	const op = "ortholog.Filter"

	if len(p.GeneTypeInclude) > 0 && len(p.GeneTypeExclude) > 0 {
		return orthoexpr.Configf(op, "gene types cannot be both included and excluded")
	}
	if len(p.ChromosomeInclude) > 0 && len(p.ChromosomeExclude) > 0 {
		return orthoexpr.Configf(op, "chromosomes cannot be both included and excluded")
	}
	if len(p.GeneIDInclude) > 0 && len(p.GeneIDExclude) > 0 {
		return orthoexpr.Configf(op, "gene ids cannot be both included and excluded")
	}

	for _, ids := range [][]string{p.GeneIDInclude, p.GeneIDExclude} {
		if len(ids) > 0 && !ValidEnsemblGeneIDs(ids) {
			return orthoexpr.Validationf(op, "gene id list holds values that are not Ensembl gene ids")
		}
	}

	return nil
}

// Filter returns the rows of t that satisfy p, keeping row alignment and
// order. Filtering an already filtered table with the same predicates is a
// no-op.
func Filter(t *Table, p Predicates) (*Table, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, "ortholog.Filter", err)
	}

	typeIn, typeOut := toSet(p.GeneTypeInclude), toSet(p.GeneTypeExclude)
	chrIn, chrOut := toSet(p.ChromosomeInclude), toSet(p.ChromosomeExclude)
	idIn, idOut := toSet(p.GeneIDInclude), toSet(p.GeneIDExclude)

	keep := make([]int, 0, t.Len())
	for i := range t.A {
		a, b := t.A[i], t.B[i]

		if typeIn != nil && !typeIn[a.Type] {
			continue
		}
		if typeOut != nil && typeOut[a.Type] {
			continue
		}
		if chrIn != nil && !chrIn[a.Chromosome] {
			continue
		}
		if chrOut != nil && chrOut[a.Chromosome] {
			continue
		}
		if idIn != nil && !idIn[a.ID] && !idIn[b.ID] {
			continue
		}
		if idOut != nil && (idOut[a.ID] || idOut[b.ID]) {
			continue
		}

		keep = append(keep, i)
	}

	return t.Subset(keep), nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
