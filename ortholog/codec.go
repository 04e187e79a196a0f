package ortholog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/cache"
	"github.com/carbocation/orthoexpr/logger"
)

const codecMagic = "#orthoexpr-orthologs v1"

type codecRow struct {
	GeneIDA     string `csv:"gene_id_a"`
	GeneNameA   string `csv:"gene_name_a"`
	ChromosomeA string `csv:"chromosome_a"`
	GeneTypeA   string `csv:"gene_type_a"`
	GeneIDB     string `csv:"gene_id_b"`
	GeneNameB   string `csv:"gene_name_b"`
	ChromosomeB string `csv:"chromosome_b"`
	GeneTypeB   string `csv:"gene_type_b"`
}

// CacheKey is the store key for a species pair.
func CacheKey(speciesA, speciesB string) string {
	return fmt.Sprintf("orthologs/%s__%s.tsv.gz", speciesA, speciesB)
}

// Encode writes t as a gzip-compressed TSV whose first line names the format
// and the two species.
func Encode(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindValidation, "ortholog.Encode", err)
	}

	zw := gzip.NewWriter(w)
	if _, err := fmt.Fprintf(zw, "%s\t%s\t%s\n", codecMagic, t.SpeciesA, t.SpeciesB); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, "ortholog.Encode", err)
	}

	if err := writeRows(zw, t); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, "ortholog.Encode", err)
	}

	if err := zw.Close(); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, "ortholog.Encode", err)
	}

	return nil
}

// WriteTSV writes t as a plain tab-separated table with one row per pair.
func WriteTSV(w io.Writer, t *Table) error {
	if err := writeRows(w, t); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, "ortholog.WriteTSV", err)
	}
	return nil
}

func writeRows(w io.Writer, t *Table) error {
	rows := make([]codecRow, 0, t.Len())
	for i := range t.A {
		a, b := t.A[i], t.B[i]
		rows = append(rows, codecRow{
			GeneIDA: a.ID, GeneNameA: a.Name, ChromosomeA: a.Chromosome, GeneTypeA: a.Type,
			GeneIDB: b.ID, GeneNameB: b.Name, ChromosomeB: b.Chromosome, GeneTypeB: b.Type,
		})
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(cw))
}

// Decode reads a table written by Encode. Uncompressed input is accepted too.
func Decode(r io.Reader) (*Table, error) {
	const op = "ortholog.Decode"

	raw, err := orthoexpr.ReadAllMaybeCompressed(io.NopCloser(r))
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	br := bufio.NewReader(bytes.NewReader(raw))
	first, err := br.ReadString('\n')
	if err != nil && first == "" {
		return nil, orthoexpr.IOf(op, "empty ortholog cache entry")
	}

	fields := strings.Split(strings.TrimRight(first, "\r\n"), "\t")
	if len(fields) != 3 || fields[0] != codecMagic {
		return nil, orthoexpr.IOf(op, "not an ortholog table: first line is %q", strings.TrimSpace(first))
	}

	t := &Table{
		SpeciesA: fields[1],
		SpeciesB: fields[2],
		A:        make([]Gene, 0),
		B:        make([]Gene, 0),
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	if len(bytes.TrimSpace(rest)) == 0 {
		return t, nil
	}

	cr := csv.NewReader(bytes.NewReader(rest))
	cr.Comma = '\t'
	rows := make([]codecRow, 0)
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	for _, row := range rows {
		t.A = append(t.A, Gene{ID: row.GeneIDA, Name: row.GeneNameA, Chromosome: row.ChromosomeA, Type: row.GeneTypeA})
		t.B = append(t.B, Gene{ID: row.GeneIDB, Name: row.GeneNameB, Chromosome: row.ChromosomeB, Type: row.GeneTypeB})
	}

	if err := t.Validate(); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}

	return t, nil
}

// Cached returns the ortholog table for the species pair from store, resolving
// it through src and storing it on a miss. A nil store always resolves. An
// unreadable or mismatched entry is logged and replaced.
func Cached(ctx context.Context, store cache.Store, src annotation.Source, speciesA, speciesB string) (*Table, error) {
	const op = "ortholog.Cached"

	if store == nil {
		return ResolvePairs(ctx, src, speciesA, speciesB)
	}

	key := CacheKey(speciesA, speciesB)
	rc, err := store.Get(ctx, key)
	switch {
	case err == nil:
		t, decodeErr := Decode(rc)
		rc.Close()
		if decodeErr == nil && t.SpeciesA == speciesA && t.SpeciesB == speciesB {
			logger.Debug("Loaded cached orthologs", zap.String("key", key), zap.Int("pairs", t.Len()))
			return t, nil
		}
		logger.Warn("Ignoring unusable ortholog cache entry", zap.String("key", key), zap.Error(decodeErr))
	case errors.Is(err, cache.ErrNotFound):
	default:
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	t, err := ResolvePairs(ctx, src, speciesA, speciesB)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	logger.Info("Stored orthologs in cache", zap.String("key", key), zap.Int("pairs", t.Len()))

	return t, nil
}
