// Package diffexpr tests each ortholog pair of a normalized dataset for
// differential expression between two groups of replicates.
package diffexpr

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/expression"
	"github.com/carbocation/orthoexpr/logger"
)

const (
	RankProd = "RankProd"
	Wilcoxon = "Wilcoxon"
	TTest    = "ttest"
)

// Methods lists the supported tests.
var Methods = []string{RankProd, Wilcoxon, TTest}

// Options selects the test and the multiple-testing correction.
type Options struct {
	Method  string
	PAdjust string
}

// Input is what a Tester receives. Groups[j] is 0 for replicates of the first
// group and 1 for the second.
type Input struct {
	Values [][]float64
	Groups []int
}

// Statistics holds one raw and one adjusted p-value per row. NaN marks a row
// that could not be tested.
type Statistics struct {
	PValues         []float64
	AdjustedPValues []float64
}

// Tester is the capability the pipeline delegates statistics to.
type Tester interface {
	Test(ctx context.Context, in Input, method, pAdjust string) (*Statistics, error)
}

// Result is the differential expression table, in merged row order.
type Result struct {
	Method  string
	PAdjust string
	GroupA  string
	GroupB  string
	Rows    []Row
}

type Row struct {
	GeneIDA        string
	GeneNameA      string
	GeneIDB        string
	GeneNameB      string
	MeanA          float64
	MeanB          float64
	Log2FoldChange null.Float
	PValue         null.Float
	AdjustedPValue null.Float
}

func ParseMethod(name string) (string, error) {
	for _, m := range Methods {
		if strings.EqualFold(m, name) {
			return m, nil
		}
	}
	return "", orthoexpr.Configf("diffexpr.ParseMethod", "unknown test %q; choose one of %s", name, strings.Join(Methods, ", "))
}

// VerifyGroups checks that labels name exactly two groups with at least two
// members each.
func VerifyGroups(labels []string) error {
	const op = "diffexpr.VerifyGroups"

	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	if len(counts) != 2 {
		names := make([]string, 0, len(counts))
		for l := range counts {
			names = append(names, l)
		}
		sort.Strings(names)
		return orthoexpr.Validationf(op, "expected exactly 2 groups, found %d: %v", len(counts), names)
	}
	for l, n := range counts {
		if n < 2 {
			return orthoexpr.Validationf(op, "group %q has %d member, at least 2 are required", l, n)
		}
	}

	return nil
}

// Compare runs t over the normalized matrix of ds. The first group label in
// column order is group A; fold changes are log2(meanA/meanB).
func Compare(ctx context.Context, ds *expression.Dataset, opts Options, t Tester) (*Result, error) {
	const op = "diffexpr.Compare"

	method, err := ParseMethod(opts.Method)
	if err != nil {
		return nil, err
	}
	pAdjust, err := ParsePAdjust(opts.PAdjust)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, orthoexpr.Configf(op, "no tester was provided")
	}

	if ds == nil || ds.Normalized == nil {
		return nil, orthoexpr.Validationf(op, "dataset has not been normalized")
	}
	m := ds.Normalized
	if err := expression.CheckShape(op, m); err != nil {
		return nil, err
	}

	labels := ds.Groups()
	if len(labels) != len(m.Cols) {
		return nil, orthoexpr.Validationf(op, "%d group labels for %d columns", len(labels), len(m.Cols))
	}
	if err := VerifyGroups(labels); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}

	groupA := labels[0]
	groups := make([]int, len(labels))
	groupB := ""
	for j, l := range labels {
		if l != groupA {
			groups[j] = 1
			groupB = l
		}
	}

	st, err := t.Test(ctx, Input{Values: m.Clone().Values, Groups: groups}, method, pAdjust)
	if err != nil {
		return nil, orthoexpr.Externalf(op, "%s test failed: %w", method, err)
	}
	if st == nil || len(st.PValues) != len(m.Rows) || len(st.AdjustedPValues) != len(m.Rows) {
		return nil, orthoexpr.Validationf(op, "tester returned the wrong number of p-values for %d rows", len(m.Rows))
	}

	res := &Result{
		Method:  method,
		PAdjust: pAdjust,
		GroupA:  groupA,
		GroupB:  groupB,
		Rows:    make([]Row, 0, len(m.Rows)),
	}

	aligned := ds.Orthologs != nil && ds.Orthologs.Len() == len(m.Rows)
	for i, values := range m.Values {
		var a, b stats.Float64Data
		for j, v := range values {
			if groups[j] == 0 {
				a = append(a, v)
			} else {
				b = append(b, v)
			}
		}
		meanA, _ := a.Mean()
		meanB, _ := b.Mean()

		row := Row{
			MeanA:          meanA,
			MeanB:          meanB,
			Log2FoldChange: finite(math.Log2(meanA / meanB)),
			PValue:         finite(st.PValues[i]),
			AdjustedPValue: finite(st.AdjustedPValues[i]),
		}
		if aligned {
			row.GeneIDA, row.GeneNameA = ds.Orthologs.A[i].ID, ds.Orthologs.A[i].Name
			row.GeneIDB, row.GeneNameB = ds.Orthologs.B[i].ID, ds.Orthologs.B[i].Name
		} else {
			row.GeneIDA, row.GeneIDB = expression.SplitRowKey(m.Rows[i])
		}

		res.Rows = append(res.Rows, row)
	}

	logger.Info("Compared groups",
		zap.String("method", method),
		zap.String("p_adjust", pAdjust),
		zap.String("group_a", groupA),
		zap.String("group_b", groupB),
		zap.Int("rows", len(res.Rows)))

	return res, nil
}

// finite maps NaN and infinities to null.
func finite(v float64) null.Float {
	return null.NewFloat(v, !math.IsNaN(v) && !math.IsInf(v, 0))
}
