package ortholog

import (
	"sort"
	"strings"

	"github.com/carbocation/orthoexpr"
)

// GroupBy names an annotation column to tabulate.
type GroupBy string

const (
	ByGeneType   GroupBy = "genetype"
	ByChromosome GroupBy = "chromosome"
)

// NA is the bucket for rows with no value in the tabulated column.
const NA = "NA"

func ParseGroupBy(name string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(name)); g {
	case ByGeneType, ByChromosome:
		return g, nil
	}
	return "", orthoexpr.Configf("ortholog.ParseGroupBy", "cannot group by %q; choose %s or %s", name, ByGeneType, ByChromosome)
}

type GroupCount struct {
	Key   string
	Count int
}

// Summarize counts the rows of one species' column by gene type or
// chromosome, most frequent first with ties broken by key.
func Summarize(t *Table, by GroupBy, side Side) ([]GroupCount, error) {
	by, err := ParseGroupBy(string(by))
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, "ortholog.Summarize", err)
	}

	counts := make(map[string]int)
	for _, g := range t.Genes(side) {
		key := g.Type
		if by == ByChromosome {
			key = g.Chromosome
		}
		if key == "" {
			key = NA
		}
		counts[key]++
	}

	out := make([]GroupCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, GroupCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})

	return out, nil
}
