// orthoexpr compares gene expression between two species. Samples from both
// species are joined on one-to-one orthologs, normalized together and tested
// for differential expression; one row per ortholog pair is written out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr/config"
	"github.com/carbocation/orthoexpr/diffexpr"
	"github.com/carbocation/orthoexpr/expression"
	"github.com/carbocation/orthoexpr/logger"
	"github.com/carbocation/orthoexpr/normalize"
	"github.com/carbocation/orthoexpr/pipeline"

	_ "github.com/carbocation/orthoexpr/compileinfoprint"
)

func main() {
	env := config.Load()

	var (
		cfg        pipeline.Config
		filters    pipeline.FilterFlags
		outPath    string
		matrixPath string
		logLevel   string
		useGCS     bool
	)

	flag.StringVar(&cfg.MetadataPath, "metadata", "", "Sample metadata file (local or gs://) with sample_id, species and file_path columns and an optional group column")
	flag.StringVar(&cfg.DataDir, "datadir", "", "Directory (local or gs://) that relative file_path entries are resolved against. Defaults to the working directory.")
	flag.StringVar(&cfg.Layout, "layout", expression.DefaultLayout, fmt.Sprint("Column layout of the replicate files. Options: ", expression.LayoutNames()))
	flag.BoolVar(&cfg.StripVersion, "strip-version", false, "Strip the .N version suffix from gene ids in the replicate files")
	flag.IntVar(&cfg.Workers, "workers", env.Workers, "Number of replicate files to read concurrently")
	flag.BoolVar(&cfg.UseRemoteSpecies, "remote-species", false, "Resolve species names against the annotation source instead of the packaged list")
	flag.StringVar(&cfg.Normalization, "norm", normalize.TMM, fmt.Sprint("Normalization method. Options: ", strings.Join(normalize.Methods, ", ")))
	flag.StringVar(&cfg.Method, "method", diffexpr.RankProd, fmt.Sprint("Differential expression method. Options: ", strings.Join(diffexpr.Methods, ", ")))
	flag.StringVar(&cfg.PAdjust, "padjust", "BH", fmt.Sprint("Multiple testing correction. Options: ", strings.Join(diffexpr.PAdjustMethods, ", ")))
	flag.StringVar(&outPath, "out", "", "Result TSV path. Defaults to stdout.")
	flag.StringVar(&matrixPath, "matrix", "", "Optional path for the normalized expression matrix")
	flag.StringVar(&env.Source, "source", env.Source, "Annotation source: biomart or bigquery")
	flag.StringVar(&env.BioMartURL, "biomart", env.BioMartURL, "BioMart martservice URL")
	flag.StringVar(&env.CacheURI, "cache", env.CacheURI, "Ortholog cache: a directory, gs://bucket/prefix or s3://bucket/prefix. Empty disables caching.")
	flag.BoolVar(&useGCS, "gcs", false, "Create a Google Storage client even if neither -metadata nor -datadir is a gs:// path, e.g. when file_path entries are gs:// URLs")
	flag.StringVar(&logLevel, "loglevel", env.LogLevel, "Log level: debug, info, warn or error")
	filters.Register(flag.CommandLine)
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Init(level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.MetadataPath == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}
	cfg.Filter = filters.Predicates()

	if err := cfg.Check(); err != nil {
		logger.Fatal("Invalid parameters", zap.Error(err))
	}

	ctx := context.Background()

	deps, closeDeps, err := pipeline.OpenDeps(ctx, env, useGCS || pipeline.NeedsGoogleStorage(cfg.MetadataPath, cfg.DataDir))
	if err != nil {
		logger.Fatal("Could not set up dependencies", zap.Error(err))
	}
	defer closeDeps()

	out, err := pipeline.Run(ctx, cfg, deps)
	if err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}

	if err := writeTo(outPath, out.Result.WriteTSV); err != nil {
		logger.Fatal("Could not write results", zap.Error(err))
	}

	if matrixPath != "" {
		err := writeTo(matrixPath, func(w io.Writer) error {
			return out.Dataset.WriteMatrix(w, out.Dataset.Normalized)
		})
		if err != nil {
			logger.Fatal("Could not write the normalized matrix", zap.Error(err))
		}
	}

	logger.Info("Done", zap.String("run_id", out.RunID), zap.String("out", outPath))
}

func writeTo(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
