// Package annotation defines the capability contract of a homology annotation
// source, such as Ensembl BioMart, and the rows it produces.
package annotation

import "context"

// DatasetSuffix is appended to a canonical species id to form the Ensembl
// gene dataset name, e.g. hsapiens -> hsapiens_gene_ensembl.
const DatasetSuffix = "_gene_ensembl"

// DatasetRow is one entry of a live dataset listing.
type DatasetRow struct {
	Dataset     string
	Description string
	Version     string
}

// HomologRow is one (source gene, candidate homolog) record. A source gene with
// no homolog in the target species carries an empty TargetGeneID.
type HomologRow struct {
	SourceGeneID     string
	SourceGeneName   string
	SourceChromosome string
	SourceGeneType   string
	TargetGeneID     string
	OrthologyType    string
}

// Source is anything that can list species datasets and report, for every gene
// of a source species, its candidate homologs in a target species. Species are
// named by canonical id (hsapiens, mmusculus, ...).
type Source interface {
	ListDatasets(ctx context.Context) ([]DatasetRow, error)
	HomologAnnotation(ctx context.Context, sourceSpecies, targetSpecies string) ([]HomologRow, error)
}

// DatasetName converts a canonical species id into its Ensembl dataset name.
func DatasetName(canonicalID string) string {
	return canonicalID + DatasetSuffix
}
