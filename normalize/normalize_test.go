package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/expression"
)

// compositionDataset has two identical human replicates and two mouse
// replicates in which the most expressed gene is 100 times higher, inflating
// their library size.
func compositionDataset() *expression.Dataset {
	ds := &expression.Dataset{}
	ds.A = expression.SpeciesBlock{Species: "human", Samples: []expression.Sample{{SampleID: "h1", Species: "human"}, {SampleID: "h2", Species: "human"}}}
	ds.B = expression.SpeciesBlock{Species: "mouse", Samples: []expression.Sample{{SampleID: "m1", Species: "mouse"}, {SampleID: "m2", Species: "mouse"}}}

	var rows []string
	var values [][]float64
	for i := 0; i < 20; i++ {
		x := float64(10 * (i + 1))
		row := []float64{x, x, x, x}
		if i == 19 {
			row[2], row[3] = 100*x, 100*x
		}
		rows = append(rows, fmt.Sprintf("g%d|h%d", i, i))
		values = append(values, row)
	}
	ds.Merged = &expression.Matrix{Rows: rows, Cols: []string{"h1", "h2", "m1", "m2"}, Values: values}

	return ds
}

func TestBuiltinRemovesCompositionBias(t *testing.T) {
	for _, method := range []string{TMM, TMMwsp, RLE, UpperQuartile} {
		out, err := Normalize(context.Background(), compositionDataset(), method, Builtin{})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}

		row := out.Normalized.Values[5]
		for j := 1; j < len(row); j++ {
			if math.Abs(row[j]-row[0]) > 1e-6*row[0] {
				t.Fatalf("%s: expected gene 5 to be equal across replicates, got %v", method, row)
			}
		}
	}
}

func TestFactorsHaveUnitGeometricMean(t *testing.T) {
	ds := compositionDataset()
	for _, method := range []string{TMM, TMMwsp, RLE, UpperQuartile} {
		f, err := Factors(ds.Merged.Values, ds.Merged.ColSums(), method)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		var logSum float64
		for _, v := range f {
			logSum += math.Log(v)
		}
		if math.Abs(logSum) > 1e-9 {
			t.Fatalf("%s: factors %v do not have a geometric mean of 1", method, f)
		}
	}
}

func TestIdenticalColumnsHaveUnitFactors(t *testing.T) {
	values := [][]float64{{1, 1, 1, 1}, {5, 5, 5, 5}, {0, 0, 0, 0}, {9, 9, 9, 9}, {2, 2, 2, 2}}
	libs := []float64{17, 17, 17, 17}
	for _, method := range []string{TMM, TMMwsp, RLE, UpperQuartile} {
		f, err := Factors(values, libs, method)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		for _, v := range f {
			if math.Abs(v-1) > 1e-12 {
				t.Fatalf("%s: expected unit factors, got %v", method, f)
			}
		}
	}
}

func TestQuantileNormalize(t *testing.T) {
	got := quantileNormalize([][]float64{{5, 4}, {2, 1}, {3, 6}})
	want := [][]float64{{5.5, 3.5}, {1.5, 1.5}, {3.5, 5.5}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestQuantile7(t *testing.T) {
	// quantile(c(1, 2, 3, 4), 0.75) in R is 3.25.
	if q := quantile7([]float64{4, 1, 3, 2}, 0.75); math.Abs(q-3.25) > 1e-12 {
		t.Fatalf("Expected 3.25, got %v", q)
	}
}

type fakeNormalizer struct {
	values [][]float64
	err    error
	method string
}

func (f *fakeNormalizer) Normalize(ctx context.Context, in Input, method string) ([][]float64, error) {
	f.method = method
	return f.values, f.err
}

func TestNormalizeAdapter(t *testing.T) {
	ctx := context.Background()

	fixture := make([][]float64, 20)
	for i := range fixture {
		fixture[i] = []float64{1, 2, 3, 4}
	}

	fake := &fakeNormalizer{values: fixture}
	out, err := Normalize(ctx, compositionDataset(), "tmm", fake)
	if err != nil {
		t.Fatal(err)
	}
	if fake.method != TMM {
		t.Fatalf("Expected the canonical method name, got %q", fake.method)
	}
	if out.Normalized.Values[3][2] != 3 || out.Normalized.Rows[3] != "g3|h3" {
		t.Fatalf("Normalized matrix was not taken from the normalizer")
	}

	if _, err := Normalize(ctx, compositionDataset(), "DESeq", fake); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected a configuration error, got %v", err)
	}
	if _, err := Normalize(ctx, &expression.Dataset{}, TMM, fake); !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error for an unmerged dataset, got %v", err)
	}
	if _, err := Normalize(ctx, compositionDataset(), TMM, &fakeNormalizer{err: errors.New("edgeR crashed")}); !errors.Is(err, orthoexpr.ErrExternalService) {
		t.Fatalf("Expected an external service error, got %v", err)
	}
	if _, err := Normalize(ctx, compositionDataset(), TMM, &fakeNormalizer{values: fixture[:3]}); !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error for a short result, got %v", err)
	}

	ds := compositionDataset()
	ds.A.Samples = append(ds.A.Samples, ds.B.Samples[0])
	ds.B.Samples = ds.B.Samples[1:]
	if _, err := Normalize(ctx, ds, TMM, fake); !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error for a 3/1 split, got %v", err)
	}

	ds = compositionDataset()
	if _, err := Normalize(ctx, ds, TMM, Builtin{}); err != nil {
		t.Fatal(err)
	}
	if ds.Normalized != nil {
		t.Fatalf("Normalize modified its input")
	}
}
