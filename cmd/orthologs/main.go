// orthologs resolves the one-to-one ortholog table for a pair of species,
// optionally filters it, and prints either the table or a count of its rows
// by gene type or chromosome.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carbocation/orthoexpr/cache"
	"github.com/carbocation/orthoexpr/config"
	"github.com/carbocation/orthoexpr/logger"
	"github.com/carbocation/orthoexpr/ortholog"
	"github.com/carbocation/orthoexpr/pipeline"
	"github.com/carbocation/orthoexpr/species"

	_ "github.com/carbocation/orthoexpr/compileinfoprint"
)

func main() {
	env := config.Load()

	var (
		speciesA, speciesB string
		summarize          string
		sideB              bool
		remote             bool
		filters            pipeline.FilterFlags
	)

	flag.StringVar(&speciesA, "a", "", "First species (id, common or scientific name), e.g. human")
	flag.StringVar(&speciesB, "b", "", "Second species, e.g. mouse")
	flag.StringVar(&summarize, "summarize", "", "If set, print row counts grouped by genetype or chromosome instead of the table")
	flag.BoolVar(&sideB, "side-b", false, "With -summarize, count the second species' annotation instead of the first")
	flag.BoolVar(&remote, "remote-species", false, "Resolve -a and -b against the annotation source instead of the packaged species list")
	flag.StringVar(&env.Source, "source", env.Source, "Annotation source: biomart or bigquery")
	flag.StringVar(&env.BioMartURL, "biomart", env.BioMartURL, "BioMart martservice URL")
	flag.StringVar(&env.CacheURI, "cache", env.CacheURI, "Ortholog cache: a directory, gs://bucket/prefix or s3://bucket/prefix. Empty disables caching.")
	filters.Register(flag.CommandLine)
	flag.Parse()

	if speciesA == "" || speciesB == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	if level, err := logger.ParseLevel(env.LogLevel); err == nil {
		logger.Init(level)
	}
	defer logger.Sync()

	var by ortholog.GroupBy
	if summarize != "" {
		var err error
		if by, err = ortholog.ParseGroupBy(summarize); err != nil {
			log.Fatalln(err)
		}
	}
	predicates := filters.Predicates()
	if err := predicates.Check(); err != nil {
		log.Fatalln(err)
	}

	ctx := context.Background()

	src, closeSource, err := pipeline.OpenSource(ctx, env)
	if err != nil {
		log.Fatalln(err)
	}
	defer closeSource()

	opts := species.Options{UseRemote: remote, Source: src}
	a, err := species.Lookup(ctx, speciesA, opts)
	if err != nil {
		log.Fatalln(err)
	}
	b, err := species.Lookup(ctx, speciesB, opts)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("Resolving orthologs between %s and %s\n", a.CanonicalID, b.CanonicalID)

	store, err := cache.Open(ctx, env.CacheURI)
	if err != nil {
		log.Fatalln(err)
	}

	table, err := ortholog.Cached(ctx, store, src, a.CanonicalID, b.CanonicalID)
	if err != nil {
		log.Fatalln(err)
	}
	if !predicates.Empty() {
		if table, err = ortholog.Filter(table, predicates); err != nil {
			log.Fatalln(err)
		}
	}
	log.Printf("%d one-to-one ortholog pairs\n", table.Len())

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	if summarize == "" {
		if err := ortholog.WriteTSV(w, table); err != nil {
			log.Fatalln(err)
		}
		return
	}

	side := ortholog.SideA
	if sideB {
		side = ortholog.SideB
	}
	counts, err := ortholog.Summarize(table, by, side)
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Fprintf(w, "%s\tcount\n", by)
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\n", c.Key, c.Count)
	}
}
