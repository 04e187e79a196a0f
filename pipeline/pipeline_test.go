package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/cache"
	"github.com/carbocation/orthoexpr/diffexpr"
	"github.com/carbocation/orthoexpr/normalize"
	"github.com/carbocation/orthoexpr/ortholog"
)

const genes = 30

type fakeSource struct {
	calls int
}

func (f *fakeSource) ListDatasets(ctx context.Context) ([]annotation.DatasetRow, error) {
	return nil, errors.New("not available")
}

func (f *fakeSource) HomologAnnotation(ctx context.Context, source, target string) ([]annotation.HomologRow, error) {
	f.calls++

	prefix := map[string]string{"hsapiens": "ENSG", "mmusculus": "ENSMUSG"}
	var rows []annotation.HomologRow
	for i := 0; i < genes; i++ {
		rows = append(rows, annotation.HomologRow{
			SourceGeneID:     fmt.Sprintf("%s%011d", prefix[source], i),
			SourceGeneName:   fmt.Sprintf("%s-%d", source, i),
			SourceChromosome: "1",
			SourceGeneType:   "protein_coding",
			TargetGeneID:     fmt.Sprintf("%s%011d", prefix[target], i),
		})
	}
	return rows, nil
}

// writeStudy lays out three human and three mouse replicates. Gene 0 is
// strongly up in human; mouse lacks the last two genes.
func writeStudy(t *testing.T) (dir, metadata string) {
	t.Helper()
	dir = t.TempDir()

	var meta strings.Builder
	meta.WriteString("sample_id,species,file_path\n")
	for _, sp := range []struct {
		Name, Prefix string
		Genes        int
		Scale        float64
	}{{"human", "ENSG", genes, 1}, {"mouse", "ENSMUSG", genes - 2, 1.5}} {
		for r := 0; r < 3; r++ {
			id := fmt.Sprintf("%s%d", sp.Name, r)
			var b strings.Builder
			b.WriteString("gene_id\tTPM\n")
			for i := 0; i < sp.Genes; i++ {
				v := sp.Scale * float64(20+i+r)
				if i == 0 && sp.Name == "human" {
					v *= 50
				}
				fmt.Fprintf(&b, "%s%011d.%d\t%g\n", sp.Prefix, i, r+1, v)
			}
			if err := os.WriteFile(filepath.Join(dir, id+".tsv"), []byte(b.String()), 0o644); err != nil {
				t.Fatal(err)
			}
			fmt.Fprintf(&meta, "%s,%s,%s.tsv\n", id, sp.Name, id)
		}
	}

	metadata = filepath.Join(dir, "samples.csv")
	if err := os.WriteFile(metadata, []byte(meta.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, metadata
}

func TestRunEndToEnd(t *testing.T) {
	dir, metadata := writeStudy(t)
	src := &fakeSource{}

	store, err := cache.Open(context.Background(), filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		MetadataPath:  metadata,
		DataDir:       dir,
		Layout:        "rsem",
		StripVersion:  true,
		Normalization: normalize.TMM,
		Method:        diffexpr.Wilcoxon,
		PAdjust:       "BH",
	}
	deps := Deps{Source: src, Cache: store, Normalizer: normalize.Builtin{}, Tester: diffexpr.Builtin{}}

	// The rsem layout expects a gene_id column, which the files have.
	out, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatal(err)
	}

	if out.RunID == "" {
		t.Fatalf("Expected a run id")
	}
	if out.SpeciesA.CanonicalID != "hsapiens" || out.SpeciesB.CanonicalID != "mmusculus" {
		t.Fatalf("Unexpected species: %+v, %+v", out.SpeciesA, out.SpeciesB)
	}
	if len(out.Result.Rows) != genes-2 || out.Dataset.Merge.Dropped() != 2 {
		t.Fatalf("Expected %d rows and 2 dropped, got %d rows and report %+v", genes-2, len(out.Result.Rows), out.Dataset.Merge)
	}
	if out.Result.Rows[0].GeneIDA != "ENSG00000000000" || out.Result.Rows[0].GeneNameB != "mmusculus-0" {
		t.Fatalf("Unexpected first row: %+v", out.Result.Rows[0])
	}
	if !out.Result.Rows[0].Log2FoldChange.Valid || out.Result.Rows[0].Log2FoldChange.Float64 < 3 {
		t.Fatalf("Expected gene 0 to be strongly up in human: %+v", out.Result.Rows[0])
	}

	calls := src.calls
	cfg.Filter = ortholog.Predicates{GeneIDExclude: []string{"ENSG00000000000"}}
	out, err = Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != calls {
		t.Fatalf("Expected the second run to read orthologs from the cache")
	}
	if len(out.Result.Rows) != genes-3 {
		t.Fatalf("Expected the filter to remove one pair, got %d rows", len(out.Result.Rows))
	}
}

func TestRunChecksConfigurationFirst(t *testing.T) {
	base := Config{
		MetadataPath:  "/does/not/exist.csv",
		Normalization: normalize.TMM,
		Method:        diffexpr.TTest,
		PAdjust:       "BH",
	}
	deps := Deps{Source: &fakeSource{}, Normalizer: normalize.Builtin{}, Tester: diffexpr.Builtin{}}

	bad := []Config{base, base, base, base, base}
	bad[0].Method = "edgeR"
	bad[1].Normalization = "TPM"
	bad[2].PAdjust = "storey"
	bad[3].Layout = "cufflinks"
	bad[4].Filter = ortholog.Predicates{GeneTypeInclude: []string{"protein_coding"}, GeneTypeExclude: []string{"lncRNA"}}

	for i, cfg := range bad {
		if _, err := Run(context.Background(), cfg, deps); !errors.Is(err, orthoexpr.ErrConfiguration) {
			t.Fatalf("Config %d: expected a configuration error, got %v", i, err)
		}
	}

	if _, err := Run(context.Background(), base, deps); !errors.Is(err, orthoexpr.ErrIO) {
		t.Fatalf("Expected an IO error for a missing metadata file, got %v", err)
	}
}
