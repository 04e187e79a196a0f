// Package normalize adapts a merged expression matrix to a pluggable
// normalization routine and stores the result on the dataset.
package normalize

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/diffexpr"
	"github.com/carbocation/orthoexpr/expression"
	"github.com/carbocation/orthoexpr/logger"
)

const (
	TMM           = "TMM"
	TMMwsp        = "TMMwsp"
	RLE           = "RLE"
	UpperQuartile = "upperquartile"
	Quantile      = "quantile"
)

// Methods lists the supported normalization methods.
var Methods = []string{TMM, TMMwsp, RLE, UpperQuartile, Quantile}

// Input is what a Normalizer receives: a genes-by-replicates matrix, one group
// label per replicate and the replicate library sizes.
type Input struct {
	Values   [][]float64
	Groups   []string
	LibSizes []float64
}

// Normalizer is the capability the pipeline delegates normalization to. It
// must return a matrix of the same shape as in.Values.
type Normalizer interface {
	Normalize(ctx context.Context, in Input, method string) ([][]float64, error)
}

// ParseMethod returns the canonical spelling of a method name.
func ParseMethod(name string) (string, error) {
	for _, m := range Methods {
		if strings.EqualFold(m, name) {
			return m, nil
		}
	}
	return "", orthoexpr.Configf("normalize.ParseMethod", "unknown normalization method %q; choose one of %s", name, strings.Join(Methods, ", "))
}

// Normalize runs n over the merged matrix of ds and returns a copy of ds with
// Normalized set.
func Normalize(ctx context.Context, ds *expression.Dataset, method string, n Normalizer) (*expression.Dataset, error) {
	const op = "normalize.Normalize"

	method, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, orthoexpr.Configf(op, "no normalizer was provided")
	}
	if ds == nil || ds.Merged == nil {
		return nil, orthoexpr.Validationf(op, "dataset has not been merged")
	}
	if err := expression.CheckShape(op, ds.Merged); err != nil {
		return nil, err
	}

	groups := ds.Groups()
	if len(groups) != len(ds.Merged.Cols) {
		return nil, orthoexpr.Validationf(op, "%d group labels for %d columns", len(groups), len(ds.Merged.Cols))
	}
	if err := diffexpr.VerifyGroups(groups); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}

	in := Input{
		Values:   ds.Merged.Clone().Values,
		Groups:   groups,
		LibSizes: ds.Merged.ColSums(),
	}

	values, err := n.Normalize(ctx, in, method)
	if err != nil {
		return nil, orthoexpr.Externalf(op, "%s normalization failed: %w", method, err)
	}

	rows, cols := ds.Merged.Dims()
	if len(values) != rows {
		return nil, orthoexpr.Validationf(op, "normalizer returned %d rows, expected %d", len(values), rows)
	}
	for i, row := range values {
		if len(row) != cols {
			return nil, orthoexpr.Validationf(op, "normalizer returned %d columns on row %d, expected %d", len(row), i, cols)
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, orthoexpr.Validationf(op, "normalizer returned a missing value on row %s", ds.Merged.Rows[i])
			}
		}
	}

	out := ds.Copy()
	out.Normalized = &expression.Matrix{
		Rows:   append([]string(nil), ds.Merged.Rows...),
		Cols:   append([]string(nil), ds.Merged.Cols...),
		Values: values,
	}

	logger.Info("Normalized expression", zap.String("method", method), zap.Int("genes", rows), zap.Int("replicates", cols))

	return out, nil
}
