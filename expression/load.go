package expression

import (
	"bytes"
	"context"
	"io"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/runningvariance"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/logger"
)

// LoadOptions controls how expression files are located and parsed. A zero
// value reads the generic layout from local files with 4×NumCPU workers.
type LoadOptions struct {
	Layout       Layout
	StripVersion bool

	// Storage is required only when a file path is a gs:// URL.
	Storage *storage.Client

	Workers int
}

// replicate is the parsed content of one expression file.
type replicate struct {
	ids    []string
	values map[string]float64
}

// Load reads every sample's expression file and assembles one raw matrix per
// species. Species A is the first species in sample order; exactly two species
// are required. Relative file paths are resolved against dataDir.
func Load(ctx context.Context, samples []Sample, dataDir string, opts LoadOptions) (*Dataset, error) {
	const op = "expression.Load"

	speciesOrder := make([]string, 0, 2)
	seen := make(map[string]bool)
	for _, s := range samples {
		if !seen[s.Species] {
			seen[s.Species] = true
			speciesOrder = append(speciesOrder, s.Species)
		}
	}
	if len(speciesOrder) != 2 {
		return nil, orthoexpr.Validationf(op, "expected samples from exactly 2 species, found %d: %v", len(speciesOrder), speciesOrder)
	}

	ids := make(map[string]bool, len(samples))
	for _, s := range samples {
		if ids[s.SampleID] {
			return nil, orthoexpr.Validationf(op, "sample id %s is duplicated", s.SampleID)
		}
		ids[s.SampleID] = true
	}

	if err := checkGroupLabels(samples, speciesOrder); err != nil {
		return nil, err
	}

	layout := opts.Layout
	if layout.Name == "" {
		layout = Layouts[DefaultLayout]
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 4 * runtime.NumCPU()
	}

	// Results are kept by sample index so that completion order never leaks
	// into the matrices.
	results := make([]replicate, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range samples {
		g.Go(func() error {
			rep, err := readReplicate(gctx, orthoexpr.ResolvePath(dataDir, s.FilePath), layout, opts)
			if err != nil {
				return err
			}
			results[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}

	ds := &Dataset{}
	blocks := []*SpeciesBlock{&ds.A, &ds.B}
	for k, sp := range speciesOrder {
		block := blocks[k]
		block.Species = sp

		var reps []replicate
		for i, s := range samples {
			if s.Species == sp {
				block.Samples = append(block.Samples, s)
				reps = append(reps, results[i])
			}
		}
		block.Raw = outerJoin(block.Samples, reps)

		rows, cols := block.Raw.Dims()
		logger.Info("Loaded expression",
			zap.String("species", sp),
			zap.Int("replicates", cols),
			zap.Int("genes", rows))
	}

	return ds, nil
}

// checkGroupLabels requires every group label to name exactly one species:
// all samples of a species carry the same label, or none do, and the two
// species never share one.
func checkGroupLabels(samples []Sample, speciesOrder []string) error {
	const op = "expression.Load"

	labels := make(map[string]string, len(speciesOrder))
	for _, sp := range speciesOrder {
		first := true
		for _, s := range samples {
			if s.Species != sp {
				continue
			}
			if first {
				labels[sp], first = s.GroupLabel, false
				continue
			}
			if s.GroupLabel != labels[sp] {
				return orthoexpr.Validationf(op, "samples of %s carry different groups (%q and %q); groups must follow species", sp, labels[sp], s.GroupLabel)
			}
		}
	}

	a, b := labels[speciesOrder[0]], labels[speciesOrder[1]]
	if a != "" && a == b {
		return orthoexpr.Validationf(op, "%s and %s share the group %q; groups must follow species", speciesOrder[0], speciesOrder[1], a)
	}

	return nil
}

// outerJoin aligns replicates on the union of their gene ids, sorted, with
// NaN where a replicate lacks a gene.
func outerJoin(samples []Sample, reps []replicate) *Matrix {
	union := make(map[string]struct{})
	for _, rep := range reps {
		for _, id := range rep.ids {
			union[id] = struct{}{}
		}
	}
	rows := make([]string, 0, len(union))
	for id := range union {
		rows = append(rows, id)
	}
	sort.Strings(rows)

	cols := make([]string, 0, len(samples))
	for _, s := range samples {
		cols = append(cols, s.SampleID)
	}

	m := NewMatrix(rows, cols)
	for i, id := range rows {
		for j, rep := range reps {
			if v, exists := rep.values[id]; exists {
				m.Values[i][j] = v
			}
		}
	}

	return m
}

func readReplicate(ctx context.Context, path string, layout Layout, opts LoadOptions) (replicate, error) {
	rc, err := orthoexpr.MaybeOpenFromGoogleStorage(ctx, path, opts.Storage)
	if err != nil {
		return replicate{}, orthoexpr.IOf("", "%s: %v", path, err)
	}

	raw, err := orthoexpr.ReadAllMaybeCompressed(rc)
	if err != nil {
		return replicate{}, orthoexpr.IOf("", "%s: %v", path, err)
	}

	rep, err := parseReplicate(path, raw, layout, opts.StripVersion)
	if err != nil {
		return replicate{}, err
	}

	summary := newReplicateSummary()
	for _, id := range rep.ids {
		summary.Push(rep.values[id])
	}
	logger.Debug("Read replicate",
		zap.String("path", path),
		zap.Int("genes", len(rep.ids)),
		zap.Int("missing", summary.Missing),
		zap.Float64("mean", summary.Mean()),
		zap.Float64("sd", summary.StandardDeviation()),
		zap.Float64("max", summary.Max))

	return rep, nil
}

// replicateSummary tracks the spread of one replicate's values. RunningStat
// itself keeps no extremes.
type replicateSummary struct {
	runningvariance.RunningStat
	Max     float64
	Missing int
}

func newReplicateSummary() *replicateSummary {
	return &replicateSummary{
		RunningStat: *runningvariance.NewRunningStat(),
		Max:         math.Inf(-1),
	}
}

func (s *replicateSummary) Push(x float64) {
	if math.IsNaN(x) {
		s.Missing++
		return
	}
	s.RunningStat.Push(x)
	if x > s.Max {
		s.Max = x
	}
}

func parseReplicate(path string, raw []byte, layout Layout, stripVersion bool) (replicate, error) {
	cr := newReader(raw, orthoexpr.DetermineDelimiterBytes(skipComments(raw)))

	header, err := cr.Read()
	if err == io.EOF {
		return replicate{}, orthoexpr.IOf("", "%s: file is empty", path)
	} else if err != nil {
		return replicate{}, orthoexpr.IOf("", "%s: %v", path, err)
	}

	idCol, valueCol, err := layout.columns(header)
	if err != nil {
		return replicate{}, orthoexpr.IOf("", "%s: %v", path, err)
	}
	need := idCol
	if valueCol > need {
		need = valueCol
	}

	rep := replicate{values: make(map[string]float64)}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return replicate{}, orthoexpr.IOf("", "%s: %v", path, err)
		}
		line, _ := cr.FieldPos(0)

		if len(record) <= need {
			return replicate{}, orthoexpr.IOf("", "%s line %d: expected at least %d fields, found %d", path, line, need+1, len(record))
		}

		id := strings.TrimSpace(record[idCol])
		if id == "" {
			return replicate{}, orthoexpr.IOf("", "%s line %d: empty gene id", path, line)
		}
		if stripVersion {
			id = StripVersion(id)
		}

		v, err := parseValue(record[valueCol])
		if err != nil {
			return replicate{}, orthoexpr.IOf("", "%s line %d: %v", path, line, err)
		}

		if _, exists := rep.values[id]; exists {
			return replicate{}, orthoexpr.Validationf("", "%s line %d: gene id %s is duplicated", path, line, id)
		}
		rep.values[id] = v
		rep.ids = append(rep.ids, id)
	}

	return rep, nil
}

func parseValue(field string) (float64, error) {
	field = strings.TrimSpace(field)
	switch field {
	case "", "NA", "NaN", "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(field, 64)
}

// StripVersion drops a trailing .N version suffix from an Ensembl id.
func StripVersion(id string) string {
	dot := strings.LastIndexByte(id, '.')
	if dot <= 0 || dot == len(id)-1 {
		return id
	}
	for _, r := range id[dot+1:] {
		if r < '0' || r > '9' {
			return id
		}
	}
	return id[:dot]
}

// skipComments returns raw from its first line that is not a # comment, for
// delimiter detection.
func skipComments(raw []byte) []byte {
	for bytes.HasPrefix(raw, []byte("#")) {
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			return nil
		}
		raw = raw[i+1:]
	}
	return raw
}
