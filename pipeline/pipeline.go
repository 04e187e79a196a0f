// Package pipeline runs the stages of an interspecies comparison in order:
// sample loading, species resolution, ortholog resolution and filtering,
// merging, normalization and differential testing.
package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/cache"
	"github.com/carbocation/orthoexpr/compileinfo"
	"github.com/carbocation/orthoexpr/diffexpr"
	"github.com/carbocation/orthoexpr/expression"
	"github.com/carbocation/orthoexpr/logger"
	"github.com/carbocation/orthoexpr/normalize"
	"github.com/carbocation/orthoexpr/ortholog"
	"github.com/carbocation/orthoexpr/species"
)

// Config describes one run.
type Config struct {
	MetadataPath string
	DataDir      string
	Layout       string
	StripVersion bool
	Workers      int

	// UseRemoteSpecies resolves species names against the live annotation
	// source instead of the packaged list.
	UseRemoteSpecies bool

	Filter        ortholog.Predicates
	Normalization string
	Method        string
	PAdjust       string
}

// Deps are the capabilities a run delegates to. Source, Normalizer and Tester
// are required; Cache and Storage are optional.
type Deps struct {
	Source     annotation.Source
	Cache      cache.Store
	Storage    *storage.Client
	Normalizer normalize.Normalizer
	Tester     diffexpr.Tester
}

// Output is everything a run produced.
type Output struct {
	RunID    string
	SpeciesA species.Record
	SpeciesB species.Record
	Dataset  *expression.Dataset
	Result   *diffexpr.Result
}

// Check rejects unusable parameters before any file or service is touched.
func (c Config) Check() error {
	const op = "pipeline.Check"

	if c.MetadataPath == "" {
		return orthoexpr.Configf(op, "a sample metadata file is required")
	}
	if _, err := expression.ParseLayout(c.Layout); err != nil {
		return err
	}
	if _, err := normalize.ParseMethod(c.Normalization); err != nil {
		return err
	}
	if _, err := diffexpr.ParseMethod(c.Method); err != nil {
		return err
	}
	if _, err := diffexpr.ParsePAdjust(c.PAdjust); err != nil {
		return err
	}
	return c.Filter.Check()
}

// Run executes every stage and stops at the first error.
func Run(ctx context.Context, cfg Config, deps Deps) (*Output, error) {
	const op = "pipeline.Run"

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if deps.Normalizer == nil || deps.Tester == nil {
		return nil, orthoexpr.Configf(op, "a normalizer and a tester are required")
	}

	out := &Output{RunID: uuid.NewString()}
	log := logger.With(zap.String("run_id", out.RunID), zap.String("build", compileinfo.Get().Short()))
	started := time.Now()

	layout, _ := expression.ParseLayout(cfg.Layout)

	samples, err := readMetadata(ctx, cfg.MetadataPath, deps.Storage)
	if err != nil {
		return nil, err
	}
	log.Info("Read sample metadata", zap.String("path", cfg.MetadataPath), zap.Int("samples", len(samples)))

	ds, err := expression.Load(ctx, samples, cfg.DataDir, expression.LoadOptions{
		Layout:       layout,
		StripVersion: cfg.StripVersion,
		Storage:      deps.Storage,
		Workers:      cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	opts := species.Options{UseRemote: cfg.UseRemoteSpecies, Source: deps.Source}
	if out.SpeciesA, err = species.Lookup(ctx, ds.A.Species, opts); err != nil {
		return nil, err
	}
	if out.SpeciesB, err = species.Lookup(ctx, ds.B.Species, opts); err != nil {
		return nil, err
	}
	log.Info("Resolved species",
		zap.String("species_a", out.SpeciesA.CanonicalID),
		zap.String("species_b", out.SpeciesB.CanonicalID))

	orthologs, err := ortholog.Cached(ctx, deps.Cache, deps.Source, out.SpeciesA.CanonicalID, out.SpeciesB.CanonicalID)
	if err != nil {
		return nil, err
	}
	if !cfg.Filter.Empty() {
		before := orthologs.Len()
		if orthologs, err = ortholog.Filter(orthologs, cfg.Filter); err != nil {
			return nil, err
		}
		log.Info("Filtered orthologs", zap.Int("before", before), zap.Int("after", orthologs.Len()))
	}

	if ds, err = expression.Merge(ds, orthologs); err != nil {
		return nil, err
	}
	if ds, err = normalize.Normalize(ctx, ds, cfg.Normalization, deps.Normalizer); err != nil {
		return nil, err
	}

	out.Result, err = diffexpr.Compare(ctx, ds, diffexpr.Options{Method: cfg.Method, PAdjust: cfg.PAdjust}, deps.Tester)
	if err != nil {
		return nil, err
	}
	out.Dataset = ds

	log.Info("Finished",
		zap.Int("pairs_tested", len(out.Result.Rows)),
		zap.Int("pairs_dropped", ds.Merge.Dropped()),
		zap.Duration("elapsed", time.Since(started)))

	return out, nil
}

func readMetadata(ctx context.Context, path string, client *storage.Client) ([]expression.Sample, error) {
	rc, err := orthoexpr.MaybeOpenFromGoogleStorage(ctx, path, client)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, "pipeline.readMetadata", err)
	}
	defer rc.Close()

	return expression.ReadMetadata(rc)
}
