package pipeline

import (
	"context"
	"flag"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/annotation/biomart"
	"github.com/carbocation/orthoexpr/annotation/bqannotation"
	"github.com/carbocation/orthoexpr/cache"
	"github.com/carbocation/orthoexpr/config"
	"github.com/carbocation/orthoexpr/diffexpr"
	"github.com/carbocation/orthoexpr/normalize"
	"github.com/carbocation/orthoexpr/ortholog"
)

// OpenSource builds the annotation source named by c.Source. The returned
// function releases it.
func OpenSource(ctx context.Context, c config.Config) (annotation.Source, func(), error) {
	switch strings.ToLower(c.Source) {
	case "biomart":
		return biomart.New(c.BioMartURL), func() {}, nil
	case "bigquery":
		src, err := bqannotation.New(ctx, c.BQProject, c.BQDataset)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}

	return nil, nil, orthoexpr.Configf("pipeline.OpenSource", "unknown annotation source %q; choose biomart or bigquery", c.Source)
}

// OpenDeps wires the default capabilities for c. A Google Storage client is
// created only when gcs is set. The returned function releases everything.
func OpenDeps(ctx context.Context, c config.Config, gcs bool) (Deps, func(), error) {
	src, closeSource, err := OpenSource(ctx, c)
	if err != nil {
		return Deps{}, nil, err
	}

	store, err := cache.Open(ctx, c.CacheURI)
	if err != nil {
		closeSource()
		return Deps{}, nil, err
	}

	deps := Deps{
		Source:     src,
		Cache:      store,
		Normalizer: normalize.Builtin{},
		Tester:     diffexpr.Builtin{},
	}
	closeAll := func() {
		if c, ok := store.(io.Closer); ok {
			c.Close()
		}
		closeSource()
	}

	if gcs {
		client, err := storage.NewClient(ctx)
		if err != nil {
			closeAll()
			return Deps{}, nil, orthoexpr.Wrap(orthoexpr.KindExternalService, "pipeline.OpenDeps", pfx.Err(err))
		}
		deps.Storage = client
		closeStores := closeAll
		closeAll = func() {
			client.Close()
			closeStores()
		}
	}

	return deps, closeAll, nil
}

// NeedsGoogleStorage reports whether any of paths is a gs:// URL.
func NeedsGoogleStorage(paths ...string) bool {
	for _, p := range paths {
		if orthoexpr.IsGoogleStoragePath(p) {
			return true
		}
	}
	return false
}

// FilterFlags binds the ortholog filter predicates to command-line flags as
// comma-separated lists. An unset flag leaves its predicate unspecified.
type FilterFlags struct {
	geneTypeInclude, geneTypeExclude     string
	chromosomeInclude, chromosomeExclude string
	geneIDInclude, geneIDExclude         string
}

func (f *FilterFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.geneTypeInclude, "genetype-include", "", "Comma-separated gene types of the first species to keep, e.g. protein_coding")
	fs.StringVar(&f.geneTypeExclude, "genetype-exclude", "", "Comma-separated gene types of the first species to drop")
	fs.StringVar(&f.chromosomeInclude, "chromosome-include", "", "Comma-separated chromosomes of the first species to keep")
	fs.StringVar(&f.chromosomeExclude, "chromosome-exclude", "", "Comma-separated chromosomes of the first species to drop, e.g. MT,Y")
	fs.StringVar(&f.geneIDInclude, "geneid-include", "", "Comma-separated Ensembl gene ids (either species) to keep")
	fs.StringVar(&f.geneIDExclude, "geneid-exclude", "", "Comma-separated Ensembl gene ids (either species) to drop")
}

func (f *FilterFlags) Predicates() ortholog.Predicates {
	return ortholog.Predicates{
		GeneTypeInclude:   splitList(f.geneTypeInclude),
		GeneTypeExclude:   splitList(f.geneTypeExclude),
		ChromosomeInclude: splitList(f.chromosomeInclude),
		ChromosomeExclude: splitList(f.chromosomeExclude),
		GeneIDInclude:     splitList(f.geneIDInclude),
		GeneIDExclude:     splitList(f.geneIDExclude),
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
