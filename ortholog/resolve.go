package ortholog

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/logger"
)

// ensemblGeneID matches stable gene ids across Ensembl species (ENSG...,
// ENSMUSG..., ENSDARG...) with an optional version suffix.
var ensemblGeneID = regexp.MustCompile(`^ENS[A-Z]*G[0-9]{11}(\.[0-9]+)?$`)

// ValidEnsemblGeneIDs reports whether every id is a structurally valid Ensembl
// stable gene id. An empty list is not valid.
func ValidEnsemblGeneIDs(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !ensemblGeneID.MatchString(id) {
			return false
		}
	}

	return true
}

// ResolvePairs fetches homology annotation in both directions from src and
// reduces it to unique reciprocal 1-to-1 pairs.
func ResolvePairs(ctx context.Context, src annotation.Source, speciesA, speciesB string) (*Table, error) {
	const op = "ortholog.ResolvePairs"

	if speciesA == "" || speciesB == "" {
		return nil, orthoexpr.Configf(op, "two species are required, got %q and %q", speciesA, speciesB)
	}
	if speciesA == speciesB {
		return nil, orthoexpr.Configf(op, "cannot resolve orthologs of %s against itself", speciesA)
	}
	if src == nil {
		return nil, orthoexpr.Externalf(op, "no annotation source client is available")
	}

	rowsA, err := src.HomologAnnotation(ctx, speciesA, speciesB)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	rowsB, err := src.HomologAnnotation(ctx, speciesB, speciesA)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	t, err := Reduce(rowsA, rowsB)
	if err != nil {
		return nil, err
	}
	t.SpeciesA, t.SpeciesB = speciesA, speciesB

	logger.Info("Resolved 1-to-1 orthologs",
		zap.String("species_a", speciesA),
		zap.String("species_b", speciesB),
		zap.Int("rows_a", len(rowsA)),
		zap.Int("rows_b", len(rowsB)),
		zap.Int("pairs", t.Len()))

	return t, nil
}

// Reduce computes the unique reciprocal pairs from the two directional
// annotation tables. rowsA holds species A genes with their candidate homologs
// in B, rowsB the reverse. Within each direction a (source, target) pair is a
// candidate only if the source id occurs exactly once among that direction's
// source ids and the target id exactly once among its target ids. A pair
// survives if it is a candidate in both directions. Rows follow the order in
// which their A gene first appears in rowsA.
func Reduce(rowsA, rowsB []annotation.HomologRow) (*Table, error) {
	const op = "ortholog.Reduce"

	if err := validateFlatIDs(rowsA); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}
	if err := validateFlatIDs(rowsB); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindValidation, op, err)
	}

	fromA := uniqueCandidates(rowsA)
	fromB := uniqueCandidates(rowsB)

	// Gene annotation comes from each species' own rows.
	annotA := firstAnnotation(rowsA)
	annotB := firstAnnotation(rowsB)

	t := &Table{
		A: make([]Gene, 0),
		B: make([]Gene, 0),
	}
	for _, row := range rowsA {
		gA := row.SourceGeneID
		gB, ok := fromA[gA]
		if !ok || gB != row.TargetGeneID {
			continue
		}
		if back, ok := fromB[gB]; !ok || back != gA {
			continue
		}

		t.A = append(t.A, annotA[gA])
		t.B = append(t.B, geneOrBare(annotB, gB))
	}

	return t, nil
}

// uniqueCandidates maps each eligible source id to its single target.
func uniqueCandidates(rows []annotation.HomologRow) map[string]string {
	sourceCount := make(map[string]int, len(rows))
	targetCount := make(map[string]int, len(rows))
	for _, row := range rows {
		sourceCount[row.SourceGeneID]++
		if row.TargetGeneID != "" {
			targetCount[row.TargetGeneID]++
		}
	}

	out := make(map[string]string)
	for _, row := range rows {
		if row.TargetGeneID == "" {
			continue
		}
		if sourceCount[row.SourceGeneID] != 1 || targetCount[row.TargetGeneID] != 1 {
			continue
		}
		out[row.SourceGeneID] = row.TargetGeneID
	}

	return out
}

func firstAnnotation(rows []annotation.HomologRow) map[string]Gene {
	out := make(map[string]Gene, len(rows))
	for _, row := range rows {
		if _, exists := out[row.SourceGeneID]; exists {
			continue
		}
		out[row.SourceGeneID] = Gene{
			ID:         row.SourceGeneID,
			Name:       row.SourceGeneName,
			Chromosome: row.SourceChromosome,
			Type:       row.SourceGeneType,
		}
	}

	return out
}

func geneOrBare(annot map[string]Gene, id string) Gene {
	if g, exists := annot[id]; exists {
		return g
	}
	return Gene{ID: id}
}

// validateFlatIDs rejects id columns that are not a flat list of single
// identifiers, such as empty ids or cells holding several delimited ids.
func validateFlatIDs(rows []annotation.HomologRow) error {
	for i, row := range rows {
		if row.SourceGeneID == "" {
			return orthoexpr.Validationf("", "row %d has an empty source gene id", i)
		}
		if !isFlatID(row.SourceGeneID) {
			return orthoexpr.Validationf("", "row %d source gene id %q is not a single identifier", i, row.SourceGeneID)
		}
		if row.TargetGeneID != "" && !isFlatID(row.TargetGeneID) {
			return orthoexpr.Validationf("", "row %d homolog gene id %q is not a single identifier", i, row.TargetGeneID)
		}
	}

	return nil
}

func isFlatID(id string) bool {
	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	}) < 0
}
