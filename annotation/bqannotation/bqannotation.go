// Package bqannotation serves homology annotation from BigQuery tables, for
// sites that mirror Ensembl Compara rather than querying BioMart live. The
// dataset must hold two tables:
//
//	species(dataset STRING, description STRING, version STRING)
//	homologs(source_species STRING, gene_id STRING, gene_name STRING,
//	         chromosome STRING, gene_biotype STRING, target_species STRING,
//	         homolog_gene_id STRING, orthology_type STRING)
//
// homologs carries one row per (gene, homolog) and one row with a NULL
// homolog_gene_id for genes without any homolog in target_species.
package bqannotation

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
)

type Source struct {
	Client  *bigquery.Client
	Project string
	Dataset string
}

var _ annotation.Source = (*Source)(nil)

// New connects to BigQuery in project. Close the Source when done.
func New(ctx context.Context, project, dataset string) (*Source, error) {
	if project == "" || dataset == "" {
		return nil, orthoexpr.Configf("bqannotation.New", "both a BigQuery project and dataset are required")
	}

	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, "bqannotation.New", fmt.Errorf("connecting to BigQuery: %v", err))
	}

	return &Source{Client: client, Project: project, Dataset: dataset}, nil
}

func (s *Source) Close() error {
	return s.Client.Close()
}

func (s *Source) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.Project, s.Dataset, name)
}

type speciesRow struct {
	Dataset     bigquery.NullString `bigquery:"dataset"`
	Description bigquery.NullString `bigquery:"description"`
	Version     bigquery.NullString `bigquery:"version"`
}

func (s *Source) ListDatasets(ctx context.Context) ([]annotation.DatasetRow, error) {
	const op = "bqannotation.ListDatasets"

	query := s.Client.Query(fmt.Sprintf(`SELECT dataset, description, version FROM %s ORDER BY dataset`, s.table("species")))
	itr, err := query.Read(ctx)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	out := make([]annotation.DatasetRow, 0)
	for {
		var row speciesRow
		err := itr.Next(&row)
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
		}

		out = append(out, annotation.DatasetRow{
			Dataset:     row.Dataset.StringVal,
			Description: row.Description.StringVal,
			Version:     row.Version.StringVal,
		})
	}

	return out, nil
}

type homologRow struct {
	GeneID        bigquery.NullString `bigquery:"gene_id"`
	GeneName      bigquery.NullString `bigquery:"gene_name"`
	Chromosome    bigquery.NullString `bigquery:"chromosome"`
	GeneBiotype   bigquery.NullString `bigquery:"gene_biotype"`
	HomologGeneID bigquery.NullString `bigquery:"homolog_gene_id"`
	OrthologyType bigquery.NullString `bigquery:"orthology_type"`
}

func (s *Source) HomologAnnotation(ctx context.Context, sourceSpecies, targetSpecies string) ([]annotation.HomologRow, error) {
	op := fmt.Sprintf("bqannotation.HomologAnnotation(%s->%s)", sourceSpecies, targetSpecies)

	query := s.Client.Query(fmt.Sprintf(`SELECT gene_id, gene_name, chromosome, gene_biotype, homolog_gene_id, orthology_type
FROM %s
WHERE source_species = @source AND target_species = @target
ORDER BY gene_id, homolog_gene_id`, s.table("homologs")))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "source", Value: sourceSpecies},
		{Name: "target", Value: targetSpecies},
	}

	itr, err := query.Read(ctx)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	out := make([]annotation.HomologRow, 0)
	for {
		var row homologRow
		err := itr.Next(&row)
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
		}

		out = append(out, annotation.HomologRow{
			SourceGeneID:     row.GeneID.StringVal,
			SourceGeneName:   row.GeneName.StringVal,
			SourceChromosome: row.Chromosome.StringVal,
			SourceGeneType:   row.GeneBiotype.StringVal,
			TargetGeneID:     row.HomologGeneID.StringVal,
			OrthologyType:    row.OrthologyType.StringVal,
		})
	}

	if len(out) == 0 {
		return nil, orthoexpr.Externalf(op, "no homology rows for %s -> %s in %s", sourceSpecies, targetSpecies, s.table("homologs"))
	}

	return out, nil
}
