package normalize

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/carbocation/orthoexpr/diffexpr"
)

// Builtin is the default Normalizer. Factor methods compute edgeR-style
// normalization factors, rescaled to a geometric mean of 1, and return
// counts per million of the effective library size. Quantile normalization
// replaces each value with the mean of the values sharing its rank.
type Builtin struct{}

var _ Normalizer = Builtin{}

const (
	logRatioTrim = 0.3
	sumTrim      = 0.05
)

func (Builtin) Normalize(ctx context.Context, in Input, method string) ([][]float64, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}

	if method == Quantile {
		return quantileNormalize(in.Values), nil
	}

	f, err := Factors(in.Values, in.LibSizes, method)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(in.Values))
	for i, row := range in.Values {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v * 1e6 / (in.LibSizes[j] * f[j])
		}
	}

	return out, nil
}

func checkInput(in Input) error {
	if len(in.Values) == 0 {
		return fmt.Errorf("no rows to normalize")
	}
	cols := len(in.Values[0])
	if len(in.LibSizes) != cols {
		return fmt.Errorf("%d library sizes for %d columns", len(in.LibSizes), cols)
	}
	for j, l := range in.LibSizes {
		if !(l > 0) || math.IsInf(l, 0) {
			return fmt.Errorf("library size of column %d is %v", j, l)
		}
	}
	for i, row := range in.Values {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("row %d holds %v; values must be finite and non-negative", i, v)
			}
		}
	}
	return nil
}

// Factors returns one normalization factor per column for the TMM, TMMwsp,
// RLE and upperquartile methods. Rows that are zero in every column are
// ignored.
func Factors(values [][]float64, libSizes []float64, method string) ([]float64, error) {
	cols := columns(values)

	var f []float64
	var err error
	switch method {
	case UpperQuartile:
		f, err = upperQuartileFactors(cols, libSizes)
	case RLE:
		f, err = rleFactors(cols, libSizes)
	case TMM:
		f = tmmFactors(cols, libSizes)
	case TMMwsp:
		f = tmmwspFactors(cols, libSizes)
	default:
		return nil, fmt.Errorf("%s has no normalization factors", method)
	}
	if err != nil {
		return nil, err
	}

	for j, v := range f {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s factor for column %d is %v", method, j, v)
		}
	}

	// Scale to a geometric mean of 1
	logs := make([]float64, len(f))
	for j, v := range f {
		logs[j] = math.Log(v)
	}
	gm := math.Exp(stat.Mean(logs, nil))
	floats.Scale(1/gm, f)

	return f, nil
}

// columns transposes values into columns, dropping rows that are zero in every
// column.
func columns(values [][]float64) [][]float64 {
	if len(values) == 0 {
		return nil
	}
	cols := make([][]float64, len(values[0]))
	for _, row := range values {
		if floats.Max(row) <= 0 {
			continue
		}
		for j, v := range row {
			cols[j] = append(cols[j], v)
		}
	}
	return cols
}

// quantile7 is the default sample quantile of R (type 7).
func quantile7(x []float64, p float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if len(s) == 0 {
		return math.NaN()
	}
	h := float64(len(s)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(s) {
		return s[len(s)-1]
	}
	return s[i] + (h-lo)*(s[i+1]-s[i])
}

func upperQuartiles(cols [][]float64, libSizes []float64) []float64 {
	out := make([]float64, len(cols))
	for j, col := range cols {
		scaled := make([]float64, len(col))
		for i, v := range col {
			scaled[i] = v / libSizes[j]
		}
		out[j] = quantile7(scaled, 0.75)
	}
	return out
}

func upperQuartileFactors(cols [][]float64, libSizes []float64) ([]float64, error) {
	f := upperQuartiles(cols, libSizes)
	for j, v := range f {
		if v == 0 {
			return nil, fmt.Errorf("upper quartile of column %d is zero", j)
		}
	}
	return f, nil
}

func rleFactors(cols [][]float64, libSizes []float64) ([]float64, error) {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return nil, fmt.Errorf("no genes are expressed")
	}

	n := len(cols[0])
	geomeans := make([]float64, n)
	logs := make([]float64, len(cols))
	for i := 0; i < n; i++ {
		for j := range cols {
			logs[j] = math.Log(cols[j][i])
		}
		geomeans[i] = math.Exp(stat.Mean(logs, nil))
	}

	f := make([]float64, len(cols))
	for j, col := range cols {
		ratios := make([]float64, 0, n)
		for i, v := range col {
			if geomeans[i] > 0 {
				ratios = append(ratios, v/geomeans[i])
			}
		}
		if len(ratios) == 0 {
			return nil, fmt.Errorf("no gene is expressed in every column")
		}
		med, err := stats.Median(ratios)
		if err != nil {
			return nil, err
		}
		f[j] = med / libSizes[j]
	}

	return f, nil
}

func tmmFactors(cols [][]float64, libSizes []float64) []float64 {
	f75 := upperQuartiles(cols, libSizes)

	var ref int
	if med, err := stats.Median(f75); err == nil && med < 1e-20 {
		ref = maxSqrtSumColumn(cols)
	} else {
		mean := stat.Mean(f75, nil)
		best := math.Inf(1)
		for j, v := range f75 {
			if d := math.Abs(v - mean); d < best {
				best, ref = d, j
			}
		}
	}

	f := make([]float64, len(cols))
	for j := range cols {
		f[j] = tmmFactor(cols[j], cols[ref], libSizes[j], libSizes[ref])
	}
	return f
}

func maxSqrtSumColumn(cols [][]float64) int {
	best, ref := math.Inf(-1), 0
	for j, col := range cols {
		var s float64
		for _, v := range col {
			s += math.Sqrt(v)
		}
		if s > best {
			best, ref = s, j
		}
	}
	return ref
}

// tmmFactor is the weighted trimmed mean of M values of obs against ref.
func tmmFactor(obs, ref []float64, nO, nR float64) float64 {
	var logR, absE, v []float64
	for i := range obs {
		if obs[i] <= 0 || ref[i] <= 0 {
			continue
		}
		po, pr := obs[i]/nO, ref[i]/nR
		logR = append(logR, math.Log2(po/pr))
		absE = append(absE, (math.Log2(po)+math.Log2(pr))/2)
		v = append(v, (nO-obs[i])/nO/obs[i]+(nR-ref[i])/nR/ref[i])
	}

	if len(logR) == 0 || maxAbs(logR) < 1e-6 {
		return 1
	}

	n := float64(len(logR))
	loL := math.Floor(n*logRatioTrim) + 1
	hiL := n + 1 - loL
	loS := math.Floor(n*sumTrim) + 1
	hiS := n + 1 - loS

	rankR := diffexpr.AverageRanks(logR)
	rankE := diffexpr.AverageRanks(absE)

	var num, den float64
	for i := range logR {
		if rankR[i] < loL || rankR[i] > hiL || rankE[i] < loS || rankE[i] > hiS {
			continue
		}
		num += logR[i] / v[i]
		den += 1 / v[i]
	}

	f := num / den
	if math.IsNaN(f) {
		f = 0
	}
	return math.Pow(2, f)
}

func tmmwspFactors(cols [][]float64, libSizes []float64) []float64 {
	ref := maxSqrtSumColumn(cols)

	f := make([]float64, len(cols))
	for j := range cols {
		f[j] = tmmwspFactor(cols[j], cols[ref], libSizes[j], libSizes[ref])
	}
	return f
}

// tmmwspFactor is TMM with singleton pairing: genes expressed in only one of
// the two columns are paired by descending size, largest with largest, rather
// than discarded.
func tmmwspFactor(obs, ref []float64, nO, nR float64) float64 {
	const eps = 1e-14

	var bothObs, bothRef, onlyObs, onlyRef []float64
	for i := range obs {
		po, pr := obs[i] > eps, ref[i] > eps
		switch {
		case po && pr:
			bothObs = append(bothObs, obs[i])
			bothRef = append(bothRef, ref[i])
		case po:
			onlyObs = append(onlyObs, obs[i])
		case pr:
			onlyRef = append(onlyRef, ref[i])
		}
	}

	singles := len(onlyObs)
	if len(onlyRef) < singles {
		singles = len(onlyRef)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(onlyObs)))
	sort.Sort(sort.Reverse(sort.Float64Slice(onlyRef)))
	o := append(bothObs, onlyObs[:singles]...)
	r := append(bothRef, onlyRef[:singles]...)

	n := len(o)
	if n == 0 {
		return 1
	}

	m := make([]float64, n)
	mShrunk := make([]float64, n)
	a := make([]float64, n)
	po := make([]float64, n)
	pr := make([]float64, n)
	for i := range o {
		po[i], pr[i] = o[i]/nO, r[i]/nR
		m[i] = math.Log2(po[i] / pr[i])
		a[i] = 0.5 * math.Log2(po[i]*pr[i])
		mShrunk[i] = math.Log2(((o[i] + 0.5) / (nO + 0.5)) / ((r[i] + 0.5) / (nR + 0.5)))
	}
	if maxAbs(m) < 1e-6 {
		return 1
	}

	orderM := order(n, func(x, y int) bool {
		if m[x] != m[y] {
			return m[x] < m[y]
		}
		return mShrunk[x] < mShrunk[y]
	})
	orderA := order(n, func(x, y int) bool { return a[x] < a[y] })

	loM := int(float64(n)*logRatioTrim) + 1
	hiM := n + 1 - loM
	loA := int(float64(n)*sumTrim) + 1
	hiA := n + 1 - loA

	keepM := make([]bool, n)
	for k := loM; k <= hiM; k++ {
		keepM[orderM[k-1]] = true
	}
	keepA := make([]bool, n)
	for k := loA; k <= hiA; k++ {
		keepA[orderA[k-1]] = true
	}

	var num, den float64
	for i := 0; i < n; i++ {
		if !keepM[i] || !keepA[i] {
			continue
		}
		v := (1-po[i])/po[i]/nO + (1-pr[i])/pr[i]/nR
		w := (1 + 1e-6) / (v + 1e-6)
		num += w * m[i]
		den += w
	}
	if den == 0 {
		return 1
	}

	return math.Pow(2, num/den)
}

// order returns the permutation that stably sorts 0..n-1 by less.
func order(n int, less func(x, y int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return less(idx[i], idx[j]) })
	return idx
}

func maxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func quantileNormalize(values [][]float64) [][]float64 {
	rows, cols := len(values), len(values[0])

	orders := make([][]int, cols)
	means := make([]float64, rows)
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		for i := range values {
			col[i] = values[i][j]
		}
		orders[j] = order(rows, func(a, b int) bool { return col[a] < col[b] })
		for r, i := range orders[j] {
			means[r] += col[i] / float64(cols)
		}
	}

	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	for j := 0; j < cols; j++ {
		for r, i := range orders[j] {
			out[i][j] = means[r]
		}
	}

	return out
}
