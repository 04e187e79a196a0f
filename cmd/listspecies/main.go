// listspecies prints the species known to the annotation source, optionally
// restricted to those whose id or common name contains -pattern.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carbocation/orthoexpr/config"
	"github.com/carbocation/orthoexpr/logger"
	"github.com/carbocation/orthoexpr/pipeline"
	"github.com/carbocation/orthoexpr/species"

	_ "github.com/carbocation/orthoexpr/compileinfoprint"
)

func main() {
	env := config.Load()

	var (
		pattern   string
		remote    bool
		lookupDir string
	)

	flag.StringVar(&pattern, "pattern", "", "Case-insensitive substring of the species id or common name. Empty lists everything.")
	flag.BoolVar(&remote, "remote", false, "Query the annotation source instead of the packaged species list")
	flag.StringVar(&lookupDir, "lookups", "", fmt.Sprintf("Directory holding an alternative %s. Defaults to the packaged copy.", species.ResourceName))
	flag.StringVar(&env.Source, "source", env.Source, "Annotation source for -remote: biomart or bigquery")
	flag.StringVar(&env.BioMartURL, "biomart", env.BioMartURL, "BioMart martservice URL")
	flag.Parse()

	if level, err := logger.ParseLevel(env.LogLevel); err == nil {
		logger.Init(level)
	}
	defer logger.Sync()

	ctx := context.Background()

	opts := species.Options{UseRemote: remote}
	if lookupDir != "" {
		opts.Locator = species.DirLocator(lookupDir)
	}
	if remote {
		src, closeSource, err := pipeline.OpenSource(ctx, env)
		if err != nil {
			log.Fatalln(err)
		}
		defer closeSource()
		opts.Source = src
	}

	records, err := species.Resolve(ctx, pattern, opts)
	if err != nil {
		log.Fatalln(err)
	}

	if len(records) == 0 {
		log.Printf("No species matched %q\n", pattern)
		return
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintln(w, "canonical_id\tcommon_name\tscientific_name\tannotation_version\tdataset")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.CanonicalID, r.CommonName, r.ScientificName, r.AnnotationVersion, r.Dataset)
	}
}
