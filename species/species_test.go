package species

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
)

type fakeSource struct {
	rows []annotation.DatasetRow
	err  error
}

func (f fakeSource) ListDatasets(ctx context.Context) ([]annotation.DatasetRow, error) {
	return f.rows, f.err
}

func (f fakeSource) HomologAnnotation(ctx context.Context, s, t string) ([]annotation.HomologRow, error) {
	return nil, errors.New("not implemented")
}

func TestResolveHuman(t *testing.T) {
	records, err := Resolve(context.Background(), "human", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(records) == 0 {
		t.Fatal("Expected at least one human record")
	}

	for _, r := range records {
		if !strings.Contains(strings.ToLower(r.CommonName), "human") && !strings.Contains(strings.ToLower(r.CanonicalID), "human") {
			t.Fatalf("Record does not match pattern: %+v", r)
		}
	}

	if records[0].CanonicalID != "hsapiens" || records[0].CommonName != "Human" || records[0].ScientificName != "Homo sapiens" {
		t.Fatalf("Unexpected record: %+v", records[0])
	}
}

func TestResolveEmptyPatternReturnsAllInOrder(t *testing.T) {
	all, err := Load(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	records, err := Resolve(context.Background(), "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(all) || len(all) < 10 {
		t.Fatalf("Expected every record, got %d of %d", len(records), len(all))
	}
	for i := range all {
		if all[i] != records[i] {
			t.Fatalf("Order changed at %d: %+v vs %+v", i, all[i], records[i])
		}
	}
}

func TestFilterUnionKeepsSourceOrder(t *testing.T) {
	records := []Record{
		{CanonicalID: "mmusculus", CommonName: "Mouse"},
		{CanonicalID: "xmus", CommonName: "Other"},
		{CanonicalID: "abc", CommonName: "Musk ox"},
	}

	got := Filter(records, "MUS")
	if len(got) != 3 {
		t.Fatalf("Expected 3 matches, got %+v", got)
	}
	for i := range got {
		if got[i] != records[i] {
			t.Fatalf("Expected source order, got %+v", got)
		}
	}
}

func TestCommonName(t *testing.T) {
	for _, v := range []struct {
		In, Out string
	}{
		{"Human genes (GRCh38.p14)", "Human"},
		{"Mouse genes (GRCm39)", "Mouse"},
		{"Drosophila melanogaster (Fruit fly) genes (BDGP6.46)", "Drosophila melanogaster"},
		{"Zebrafish", "Zebrafish"},
	} {
		if got := CommonName(v.In); got != v.Out {
			t.Fatalf("CommonName(%q) = %q, expected %q", v.In, got, v.Out)
		}
	}

	if CanonicalID("hsapiens_gene_ensembl") != "hsapiens" {
		t.Fatal("CanonicalID did not strip the dataset suffix")
	}
}

func TestMissingResourceIsIOError(t *testing.T) {
	_, err := Resolve(context.Background(), "human", Options{Locator: DirLocator(t.TempDir())})
	if !errors.Is(err, orthoexpr.ErrIO) {
		t.Fatalf("Expected an IO error, got %v", err)
	}
}

func TestDirLocator(t *testing.T) {
	dir := t.TempDir()
	body := "Dataset\tSpecies\tScientificName\tVersion\nhsapiens_gene_ensembl\tHuman genes (GRCh38.p13)\tHomo sapiens\tGRCh38.p13\n"
	if err := os.WriteFile(filepath.Join(dir, ResourceName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := Resolve(context.Background(), "", Options{Locator: DirLocator(dir)})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].AnnotationVersion != "GRCh38.p13" {
		t.Fatalf("Unexpected records: %+v", records)
	}
}

func TestResolveRemote(t *testing.T) {
	src := fakeSource{rows: []annotation.DatasetRow{
		{Dataset: "hsapiens_gene_ensembl", Description: "Human genes (GRCh38.p14)", Version: "GRCh38.p14"},
		{Dataset: "mmusculus_gene_ensembl", Description: "Mouse genes (GRCm39)", Version: "GRCm39"},
	}}

	records, err := Resolve(context.Background(), "mouse", Options{UseRemote: true, Source: src})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CanonicalID != "mmusculus" || records[0].CommonName != "Mouse" {
		t.Fatalf("Unexpected records: %+v", records)
	}
}

func TestResolveRemoteFailures(t *testing.T) {
	_, err := Resolve(context.Background(), "", Options{UseRemote: true})
	if !errors.Is(err, orthoexpr.ErrExternalService) {
		t.Fatalf("Missing client should be an external service error, got %v", err)
	}

	_, err = Resolve(context.Background(), "", Options{UseRemote: true, Source: fakeSource{err: errors.New("connection reset")}})
	if !errors.Is(err, orthoexpr.ErrExternalService) {
		t.Fatalf("Failed call should be an external service error, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"hsapiens", "Human", "homo sapiens", "hsapiens_gene_ensembl"} {
		r, err := Lookup(ctx, name, Options{})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if r.CanonicalID != "hsapiens" {
			t.Fatalf("%s resolved to %+v", name, r)
		}
	}

	if _, err := Lookup(ctx, "no-such-animal", Options{}); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected a configuration error, got %v", err)
	}

	// "ma" matches several records (macaque, marmoset, ...)
	if _, err := Lookup(ctx, "ma", Options{}); !errors.Is(err, orthoexpr.ErrConfiguration) {
		t.Fatalf("Expected an ambiguity error, got %v", err)
	}
}
