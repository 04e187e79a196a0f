package diffexpr

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Builtin is the default Tester.
//
// RankProd compares every replicate of group A with every replicate of group B
// on log2(x+1), ranks the rows within each comparison and combines the ranks
// through their product, using the gamma approximation of its null
// distribution. Wilcoxon is the rank-sum test with the normal approximation,
// tie and continuity corrections. ttest is Welch's unequal-variance t-test.
// All tests are two-sided.
type Builtin struct{}

var _ Tester = Builtin{}

func (Builtin) Test(ctx context.Context, in Input, method, pAdjust string) (*Statistics, error) {
	if len(in.Values) == 0 {
		return nil, fmt.Errorf("no rows to test")
	}
	for i, row := range in.Values {
		if len(row) != len(in.Groups) {
			return nil, fmt.Errorf("row %d has %d values for %d group assignments", i, len(row), len(in.Groups))
		}
	}

	var p []float64
	switch method {
	case RankProd:
		p = rankProduct(in.Values, in.Groups)
	case Wilcoxon:
		p = perRow(in, func(a, b []float64) float64 { return rankSum(a, b) })
	case TTest:
		p = perRow(in, func(a, b []float64) float64 {
			_, _, pv := welch(a, b)
			return pv
		})
	default:
		return nil, fmt.Errorf("unsupported test %q", method)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adj, err := Adjust(p, pAdjust)
	if err != nil {
		return nil, err
	}

	return &Statistics{PValues: p, AdjustedPValues: adj}, nil
}

func split(row []float64, groups []int) (a, b []float64) {
	for j, v := range row {
		if groups[j] == 0 {
			a = append(a, v)
		} else {
			b = append(b, v)
		}
	}
	return a, b
}

func perRow(in Input, test func(a, b []float64) float64) []float64 {
	p := make([]float64, len(in.Values))
	for i, row := range in.Values {
		a, b := split(row, in.Groups)
		p[i] = test(a, b)
	}
	return p
}

// AverageRanks assigns 1-based ranks, giving ties their mean rank.
func AverageRanks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}
	return ranks
}

// rankSum is the two-sided Wilcoxon rank-sum p-value.
func rankSum(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	n := na + nb

	all := append(append([]float64(nil), a...), b...)
	ranks := AverageRanks(all)

	var w float64
	for i := range a {
		w += ranks[i]
	}
	w -= na * (na + 1) / 2

	// Tie correction
	counts := make(map[float64]float64)
	for _, v := range all {
		counts[v]++
	}
	var ties float64
	for _, t := range counts {
		ties += t*t*t - t
	}

	sigma := math.Sqrt(na * nb / 12 * ((n + 1) - ties/(n*(n-1))))
	if sigma == 0 {
		return math.NaN()
	}

	d := w - na*nb/2
	correction := 0.0
	if d > 0 {
		correction = 0.5
	} else if d < 0 {
		correction = -0.5
	}
	z := (d - correction) / sigma

	return math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z)))
}

// welch returns Welch's t statistic, its Satterthwaite degrees of freedom and
// the two-sided p-value.
func welch(a, b []float64) (t, df, p float64) {
	na, nb := float64(len(a)), float64(len(b))
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)

	sa, sb := va/na, vb/nb
	se := math.Sqrt(sa + sb)
	if se == 0 || math.IsNaN(se) {
		return math.NaN(), math.NaN(), math.NaN()
	}

	t = (ma - mb) / se
	df = (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))
	p = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))

	return t, df, math.Min(1, p)
}

// rankProduct returns two-sided rank product p-values for every row.
func rankProduct(values [][]float64, groups []int) []float64 {
	rows := len(values)
	n := float64(rows)

	logged := make([][]float64, rows)
	for i, row := range values {
		logged[i] = make([]float64, len(row))
		for j, v := range row {
			logged[i][j] = math.Log2(v + 1)
		}
	}

	var colsA, colsB []int
	for j, g := range groups {
		if g == 0 {
			colsA = append(colsA, j)
		} else {
			colsB = append(colsB, j)
		}
	}

	// Sums of -log(rank/(n+1)) for A up and A down.
	up := make([]float64, rows)
	down := make([]float64, rows)
	diff := make([]float64, rows)
	for _, ja := range colsA {
		for _, jb := range colsB {
			for i := range logged {
				diff[i] = logged[i][ja] - logged[i][jb]
			}
			ranks := AverageRanks(diff)
			for i, r := range ranks {
				// r = 1 is the most decreased row in A; n+1-r the most increased.
				down[i] -= math.Log(r / (n + 1))
				up[i] -= math.Log((n + 1 - r) / (n + 1))
			}
		}
	}

	k := float64(len(colsA) * len(colsB))
	gamma := distuv.Gamma{Alpha: k, Beta: 1}

	p := make([]float64, rows)
	for i := range p {
		pUp := gamma.Survival(up[i])
		pDown := gamma.Survival(down[i])
		p[i] = math.Min(1, 2*math.Min(pUp, pDown))
	}
	return p
}
