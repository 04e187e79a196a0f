package diffexpr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/expression"
	"github.com/carbocation/orthoexpr/ortholog"
)

const tolerance = 1e-6

func near(a, b, tol float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tol
}

func TestVerifyGroups(t *testing.T) {
	type expectation struct {
		Labels []string
		Valid  bool
	}

	expectations := []expectation{
		{[]string{"A", "A", "A", "B", "B"}, true},
		{[]string{"A", "B", "A", "B"}, true},
		{[]string{"A", "A", "A", "A"}, false},
		{[]string{"A", "A", "A", "B"}, false},
		{[]string{"A", "A", "B", "B", "C", "C"}, false},
		{nil, false},
	}

	for _, v := range expectations {
		err := VerifyGroups(v.Labels)
		if v.Valid && err != nil {
			t.Fatalf("%+v: %v", v, err)
		}
		if !v.Valid && !errors.Is(err, orthoexpr.ErrValidation) {
			t.Fatalf("%+v: expected a validation error, got %v", v, err)
		}
	}
}

func TestAdjust(t *testing.T) {
	type expectation struct {
		Method   string
		P        []float64
		Adjusted []float64
	}

	flat := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	expectations := []expectation{
		{"bonferroni", flat, []float64{0.05, 0.1, 0.15, 0.2, 0.25}},
		{"holm", flat, []float64{0.05, 0.08, 0.09, 0.09, 0.09}},
		{"hochberg", flat, []float64{0.05, 0.05, 0.05, 0.05, 0.05}},
		{"hommel", flat, []float64{0.05, 0.05, 0.05, 0.05, 0.05}},
		{"BH", flat, []float64{0.05, 0.05, 0.05, 0.05, 0.05}},
		{"fdr", flat, []float64{0.05, 0.05, 0.05, 0.05, 0.05}},
		{"BY", flat, []float64{0.1141667, 0.1141667, 0.1141667, 0.1141667, 0.1141667}},
		{"none", flat, flat},
		{"holm", []float64{0.04, 0.01, 0.03}, []float64{0.06, 0.03, 0.06}},
		{"BH", []float64{0.04, 0.01, 0.03}, []float64{0.04, 0.03, 0.04}},
		{"hommel", []float64{0.01, 0.04, 0.03}, []float64{0.03, 0.04, 0.04}},
		{"hommel", []float64{0.01, 0.04}, []float64{0.02, 0.04}},
		{"bonferroni", []float64{math.NaN(), 0.01, 0.02}, []float64{math.NaN(), 0.02, 0.04}},
		{"bonferroni", []float64{0.3, 0.6}, []float64{0.6, 1}},
	}

	for _, v := range expectations {
		got, err := Adjust(v.P, v.Method)
		if err != nil {
			t.Fatalf("%+v: %v", v, err)
		}
		for i := range got {
			if !near(got[i], v.Adjusted[i], 1e-6) {
				t.Fatalf("%s %v: expected %v, got %v", v.Method, v.P, v.Adjusted, got)
			}
		}
	}

	if _, err := Adjust(flat, "sidak"); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected a configuration error, got %v", err)
	}
}

func TestRankSum(t *testing.T) {
	// wilcox.test(c(1,2,3), c(4,5,6), exact=FALSE) in R gives 0.08086.
	if p := rankSum([]float64{1, 2, 3}, []float64{4, 5, 6}); !near(p, 0.08086, 1e-4) {
		t.Fatalf("Expected p=0.08086, got %v", p)
	}

	if p := rankSum([]float64{1, 1}, []float64{1, 1}); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for identical groups, got %v", p)
	}
}

func TestWelch(t *testing.T) {
	tstat, df, p := welch([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	if !near(tstat, -math.Sqrt(3), tolerance) {
		t.Fatalf("Expected t=-sqrt(3), got %v", tstat)
	}
	if !near(df, 4.411765, 1e-5) {
		t.Fatalf("Expected df=4.411765, got %v", df)
	}
	if p <= 0.1 || p >= 0.2 {
		t.Fatalf("Expected a p-value between 0.1 and 0.2, got %v", p)
	}

	if _, _, p := welch([]float64{2, 2}, []float64{2, 2}); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for zero variance, got %v", p)
	}
}

func TestAverageRanks(t *testing.T) {
	got := AverageRanks([]float64{10, 20, 10, 5})
	want := []float64{2.5, 4, 2.5, 1}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestRankProductSeparatesChangedRows(t *testing.T) {
	var values [][]float64
	for i := 0; i < 50; i++ {
		v := float64(10 + i)
		values = append(values, []float64{v, v + 0.1, v + 0.2, v + 0.05, v + 0.15, v + 0.1})
	}
	values[7] = []float64{500, 520, 510, 10, 11, 12}
	groups := []int{0, 0, 0, 1, 1, 1}

	p := rankProduct(values, groups)
	for i, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("Row %d: p-value %v out of range", i, v)
		}
	}
	if p[7] >= 0.01 {
		t.Fatalf("Expected the changed row to be significant, got %v", p[7])
	}
	if p[20] < 0.05 {
		t.Fatalf("Expected an unchanged row not to be significant, got %v", p[20])
	}
}

func normalizedDataset(rows, perGroup int) *expression.Dataset {
	ds := &expression.Dataset{Orthologs: &ortholog.Table{SpeciesA: "hsapiens", SpeciesB: "mmusculus"}}

	var cols []string
	for _, block := range []*expression.SpeciesBlock{&ds.A, &ds.B} {
		sp := "human"
		if block == &ds.B {
			sp = "mouse"
		}
		block.Species = sp
		for j := 0; j < perGroup; j++ {
			id := fmt.Sprintf("%s%d", sp, j)
			block.Samples = append(block.Samples, expression.Sample{SampleID: id, Species: sp})
			cols = append(cols, id)
		}
	}

	var keys []string
	var values [][]float64
	for i := 0; i < rows; i++ {
		a, b := fmt.Sprintf("ENSG%011d", i), fmt.Sprintf("ENSMUSG%011d", i)
		ds.Orthologs.A = append(ds.Orthologs.A, ortholog.Gene{ID: a, Name: fmt.Sprintf("G%d", i)})
		ds.Orthologs.B = append(ds.Orthologs.B, ortholog.Gene{ID: b})
		keys = append(keys, expression.RowKey(a, b))

		row := make([]float64, len(cols))
		for j := range row {
			row[j] = float64(i + 1 + j%perGroup)
			if j >= perGroup {
				row[j] *= 2
			}
		}
		values = append(values, row)
	}
	ds.Normalized = &expression.Matrix{Rows: keys, Cols: cols, Values: values}
	ds.Merged = ds.Normalized

	return ds
}

type countingTester struct {
	calls int
	st    *Statistics
	err   error
}

func (c *countingTester) Test(ctx context.Context, in Input, method, pAdjust string) (*Statistics, error) {
	c.calls++
	return c.st, c.err
}

func TestCompareRejectsSingleRowBeforeTesting(t *testing.T) {
	ds := normalizedDataset(1, 5)
	tester := &countingTester{}

	_, err := Compare(context.Background(), ds, Options{Method: TTest, PAdjust: "BH"}, tester)
	if !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error, got %v", err)
	}
	if tester.calls != 0 {
		t.Fatalf("The tester was called %d times", tester.calls)
	}
}

func TestCompareErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := Compare(ctx, normalizedDataset(5, 3), Options{Method: "DESeq2", PAdjust: "BH"}, Builtin{}); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected a configuration error for the method, got %v", err)
	}
	if _, err := Compare(ctx, normalizedDataset(5, 3), Options{Method: TTest, PAdjust: "qvalue"}, Builtin{}); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected a configuration error for p-adjust, got %v", err)
	}

	failing := &countingTester{err: errors.New("R is not installed")}
	if _, err := Compare(ctx, normalizedDataset(5, 3), Options{Method: TTest, PAdjust: "BH"}, failing); !errors.Is(err, orthoexpr.ErrExternalService) {
		t.Fatalf("Expected an external service error, got %v", err)
	}

	short := &countingTester{st: &Statistics{PValues: []float64{0.1}, AdjustedPValues: []float64{0.1}}}
	if _, err := Compare(ctx, normalizedDataset(5, 3), Options{Method: TTest, PAdjust: "BH"}, short); !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error for a short result, got %v", err)
	}

	ds := normalizedDataset(5, 3)
	moveToA := func() {
		ds.A.Samples = append(ds.A.Samples, ds.B.Samples[0])
		ds.B.Samples = ds.B.Samples[1:]
	}
	moveToA()
	if _, err := Compare(ctx, ds, Options{Method: TTest, PAdjust: "BH"}, Builtin{}); err != nil {
		t.Fatalf("A 4/2 split should be testable, got %v", err)
	}
	moveToA()
	if _, err := Compare(ctx, ds, Options{Method: TTest, PAdjust: "BH"}, Builtin{}); !errors.Is(err, orthoexpr.ErrValidation) {
		t.Fatalf("Expected a validation error for a 5/1 split, got %v", err)
	}
}

func TestCompareTestsBetweenSpecies(t *testing.T) {
	ds := normalizedDataset(2, 2)
	for i := range ds.Normalized.Values {
		ds.Normalized.Values[i] = []float64{10, 20, 100, 200}
	}
	ds.A.Samples[0].GroupLabel, ds.A.Samples[1].GroupLabel = "liver", "brain"
	ds.B.Samples[0].GroupLabel, ds.B.Samples[1].GroupLabel = "liver", "brain"

	res, err := Compare(context.Background(), ds, Options{Method: TTest, PAdjust: "none"}, Builtin{})
	if err != nil {
		t.Fatal(err)
	}
	if res.GroupA != "human" || res.GroupB != "mouse" {
		t.Fatalf("Expected species groups, got %s and %s", res.GroupA, res.GroupB)
	}
	row := res.Rows[0]
	if !near(row.MeanA, 15, tolerance) || !near(row.MeanB, 150, tolerance) {
		t.Fatalf("Expected per-species means 15 and 150, got %+v", row)
	}
}

func TestCompareBuiltin(t *testing.T) {
	for _, method := range Methods {
		ds := normalizedDataset(20, 3)
		res, err := Compare(context.Background(), ds, Options{Method: method, PAdjust: "BH"}, Builtin{})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if len(res.Rows) != 20 || res.GroupA != "human" || res.GroupB != "mouse" {
			t.Fatalf("%s: unexpected result %+v", method, res)
		}

		first := res.Rows[0]
		if first.GeneIDA != "ENSG00000000000" || first.GeneNameA != "G0" || first.GeneIDB != "ENSMUSG00000000000" {
			t.Fatalf("%s: unexpected annotation %+v", method, first)
		}
		// Group B is exactly twice group A.
		if !first.Log2FoldChange.Valid || !near(first.Log2FoldChange.Float64, -1, tolerance) {
			t.Fatalf("%s: expected log2FC -1, got %+v", method, first.Log2FoldChange)
		}
		for _, row := range res.Rows {
			if row.PValue.Valid && row.AdjustedPValue.Valid && row.AdjustedPValue.Float64 < row.PValue.Float64-tolerance {
				t.Fatalf("%s: adjusted p-value below raw p-value: %+v", method, row)
			}
		}
	}
}

func TestWriteTSV(t *testing.T) {
	ds := normalizedDataset(3, 2)
	ds.Normalized.Values[1] = []float64{0, 0, 1, 1}

	res, err := Compare(context.Background(), ds, Options{Method: TTest, PAdjust: "none"}, Builtin{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := res.WriteTSV(&buf); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header and 3 rows, got %q", buf.String())
	}
	if lines[0] != "gene_id_a\tgene_name_a\tgene_id_b\tgene_name_b\tmean_a\tmean_b\tlog2_fold_change\tp_value\tadjusted_p_value" {
		t.Fatalf("Unexpected header %q", lines[0])
	}

	// Row 1 has meanA = 0, so its fold change is undefined.
	fields := strings.Split(lines[2], "\t")
	if fields[4] != "0" || fields[6] != "NA" {
		t.Fatalf("Expected mean_a 0 and an NA fold change, got %q", lines[2])
	}
}
