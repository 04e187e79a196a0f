// Package species resolves species names and aliases to the canonical Ensembl
// identifiers (hsapiens, mmusculus, ...) used against the annotation source.
package species

import (
	"bytes"
	"context"
	"embed"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/logger"
)

// ResourceName is the file name of the packaged species table, both inside the
// binary and under a DirLocator.
const ResourceName = "ensembl_species.tsv"

//go:embed lookups/*
var embeddedLookups embed.FS

// Record describes one species known to the annotation source.
type Record struct {
	CanonicalID       string
	CommonName        string
	ScientificName    string
	AnnotationVersion string
	Dataset           string
}

// Locator opens the packaged species table. It is the single place the
// resource is looked for.
type Locator interface {
	Open(name string) (io.ReadCloser, error)
}

type embeddedLocator struct{}

func (embeddedLocator) Open(name string) (io.ReadCloser, error) {
	return embeddedLookups.Open("lookups/" + name)
}

// Embedded returns the Locator for the species table compiled into the binary.
func Embedded() Locator { return embeddedLocator{} }

// DirLocator reads the species table from one configured directory.
type DirLocator string

func (d DirLocator) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), name))
}

// Options scopes one registry call. The zero value reads the embedded table.
type Options struct {
	UseRemote bool
	Locator   Locator
	Source    annotation.Source
}

type localRow struct {
	Dataset        string `csv:"Dataset"`
	Species        string `csv:"Species"`
	ScientificName string `csv:"ScientificName"`
	Version        string `csv:"Version"`
}

// Resolve returns the records whose canonical id or common name contains
// pattern, case-insensitively, in source order. An empty pattern returns every
// record.
func Resolve(ctx context.Context, pattern string, opts Options) ([]Record, error) {
	records, err := Load(ctx, opts)
	if err != nil {
		return nil, err
	}

	return Filter(records, pattern), nil
}

// Load returns every record from the configured source.
func Load(ctx context.Context, opts Options) ([]Record, error) {
	if opts.UseRemote {
		return loadRemote(ctx, opts.Source)
	}

	locator := opts.Locator
	if locator == nil {
		locator = Embedded()
	}

	return loadLocal(locator)
}

func loadLocal(locator Locator) ([]Record, error) {
	const op = "species.Load"

	f, err := locator.Open(ResourceName)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = '\t'
	cr.Comment = '#'

	rows := []*localRow{}
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, orthoexpr.IOf(op, "%s is malformed: %v", ResourceName, err)
	}

	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		if row.Dataset == "" {
			return nil, orthoexpr.IOf(op, "%s row %d has no Dataset", ResourceName, i+1)
		}
		out = append(out, Record{
			CanonicalID:       CanonicalID(row.Dataset),
			CommonName:        CommonName(row.Species),
			ScientificName:    row.ScientificName,
			AnnotationVersion: row.Version,
			Dataset:           row.Dataset,
		})
	}

	return out, nil
}

func loadRemote(ctx context.Context, src annotation.Source) ([]Record, error) {
	const op = "species.Load(remote)"

	if src == nil {
		return nil, orthoexpr.Externalf(op, "no annotation source client is available")
	}

	rows, err := src.ListDatasets(ctx)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	logger.Debug("Fetched live species list", zap.Int("datasets", len(rows)))

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			CanonicalID:       CanonicalID(row.Dataset),
			CommonName:        CommonName(row.Description),
			AnnotationVersion: row.Version,
			Dataset:           row.Dataset,
		})
	}

	return out, nil
}

var trailingParenthetical = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// CanonicalID strips the fixed dataset suffix: hsapiens_gene_ensembl ->
// hsapiens.
func CanonicalID(dataset string) string {
	return strings.TrimSuffix(strings.TrimSpace(dataset), annotation.DatasetSuffix)
}

// CommonName strips trailing parenthetical text and the " genes" suffix from a
// dataset description: "Human genes (GRCh38.p14)" -> "Human".
func CommonName(description string) string {
	name := strings.TrimSpace(description)
	for {
		next := trailingParenthetical.ReplaceAllString(name, "")
		next = strings.TrimSuffix(next, " genes")
		next = strings.TrimSpace(next)
		if next == name {
			return name
		}
		name = next
	}
}

// Filter keeps the records whose CanonicalID or CommonName contains pattern,
// case-insensitively. Matches from both fields are merged into one sorted,
// unique set of indices, so source order is preserved.
func Filter(records []Record, pattern string) []Record {
	if pattern == "" {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}

	p := strings.ToLower(pattern)

	hits := make(map[int]struct{})
	for i, r := range records {
		if strings.Contains(strings.ToLower(r.CanonicalID), p) {
			hits[i] = struct{}{}
		}
	}
	for i, r := range records {
		if strings.Contains(strings.ToLower(r.CommonName), p) {
			hits[i] = struct{}{}
		}
	}

	idx := make([]int, 0, len(hits))
	for i := range hits {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, records[i])
	}

	return out
}

// Lookup resolves one species. An exact, case-insensitive match on canonical
// id, common name or scientific name wins; otherwise name must be a substring
// of exactly one record.
func Lookup(ctx context.Context, name string, opts Options) (Record, error) {
	const op = "species.Lookup"

	if strings.TrimSpace(name) == "" {
		return Record{}, orthoexpr.Configf(op, "species name is empty")
	}

	records, err := Load(ctx, opts)
	if err != nil {
		return Record{}, err
	}

	for _, r := range records {
		if strings.EqualFold(r.CanonicalID, name) ||
			strings.EqualFold(r.CommonName, name) ||
			strings.EqualFold(r.ScientificName, name) ||
			strings.EqualFold(r.Dataset, name) {
			return r, nil
		}
	}

	matches := Filter(records, name)
	switch len(matches) {
	case 0:
		return Record{}, orthoexpr.Configf(op, "no species matches %q", name)
	case 1:
		return matches[0], nil
	}

	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, m.CanonicalID)
	}
	return Record{}, orthoexpr.Configf(op, "%q is ambiguous; candidates: %s", name, strings.Join(candidates, ", "))
}
