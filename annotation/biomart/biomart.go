// Package biomart is a minimal client for the Ensembl BioMart martservice. It
// implements annotation.Source over plain HTTP: the dataset listing endpoint
// and TSV-formatted XML queries.
package biomart

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/orthoexpr/annotation"
	"github.com/carbocation/orthoexpr/logger"
)

const (
	DefaultMart = "ENSEMBL_MART_ENSEMBL"

	completionStamp = "[success]"
)

// Client talks to one martservice endpoint. The zero value is not usable; call
// New.
type Client struct {
	BaseURL    string
	Mart       string
	HTTPClient *http.Client
}

var _ annotation.Source = (*Client)(nil)

// New returns a client for baseURL, e.g.
// https://www.ensembl.org/biomart/martservice. Homology queries over a whole
// genome routinely take minutes, so no client-side timeout is set; bound calls
// with the context instead.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Mart:       DefaultMart,
		HTTPClient: &http.Client{Timeout: 0},
	}
}

// ListDatasets returns the gene datasets of the configured mart.
func (c *Client) ListDatasets(ctx context.Context) ([]annotation.DatasetRow, error) {
	const op = "biomart.ListDatasets"

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, orthoexpr.Configf(op, "invalid BioMart URL %q: %v", c.BaseURL, err)
	}
	q := u.Query()
	q.Set("type", "datasets")
	q.Set("mart", c.Mart)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	// Lines look like:
	// TableSet	hsapiens_gene_ensembl	Human genes (GRCh38.p14)	1	GRCh38.p14	200	...
	out := make([]annotation.DatasetRow, 0)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			continue
		}
		if !strings.HasSuffix(cols[1], annotation.DatasetSuffix) {
			continue
		}
		out = append(out, annotation.DatasetRow{
			Dataset:     cols[1],
			Description: cols[2],
			Version:     cols[4],
		})
	}

	if len(out) == 0 {
		return nil, orthoexpr.Externalf(op, "BioMart returned no gene datasets for mart %s", c.Mart)
	}

	return out, nil
}

// HomologAnnotation fetches, for every gene of sourceSpecies, its homologs in
// targetSpecies together with the source gene's name, chromosome and biotype.
// BioMart refuses to mix attributes from the homologs and features pages, so
// two queries are issued and joined on the gene id.
func (c *Client) HomologAnnotation(ctx context.Context, sourceSpecies, targetSpecies string) ([]annotation.HomologRow, error) {
	op := fmt.Sprintf("biomart.HomologAnnotation(%s->%s)", sourceSpecies, targetSpecies)
	dataset := annotation.DatasetName(sourceSpecies)

	started := time.Now()
	homologs, err := c.Query(ctx, dataset, []string{
		"ensembl_gene_id",
		targetSpecies + "_homolog_ensembl_gene",
		targetSpecies + "_homolog_orthology_type",
	})
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	features, err := c.Query(ctx, dataset, []string{
		"ensembl_gene_id",
		"external_gene_name",
		"chromosome_name",
		"gene_biotype",
	})
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
	}

	logger.Debug("BioMart homology query finished",
		zap.String("source", sourceSpecies),
		zap.String("target", targetSpecies),
		zap.Int("homolog_rows", len(homologs)),
		zap.Int("feature_rows", len(features)),
		zap.Duration("elapsed", time.Since(started)))

	featureMap := make(map[string][]string, len(features))
	for _, f := range features {
		if _, exists := featureMap[f[0]]; !exists {
			featureMap[f[0]] = f
		}
	}

	out := make([]annotation.HomologRow, 0, len(homologs))
	for _, h := range homologs {
		row := annotation.HomologRow{
			SourceGeneID:  h[0],
			TargetGeneID:  h[1],
			OrthologyType: h[2],
		}
		if f, exists := featureMap[h[0]]; exists {
			row.SourceGeneName = f[1]
			row.SourceChromosome = f[2]
			row.SourceGeneType = f[3]
		}
		out = append(out, row)
	}

	return out, nil
}

type xmlQuery struct {
	XMLName              xml.Name   `xml:"Query"`
	VirtualSchemaName    string     `xml:"virtualSchemaName,attr"`
	Formatter            string     `xml:"formatter,attr"`
	Header               int        `xml:"header,attr"`
	UniqueRows           int        `xml:"uniqueRows,attr"`
	CompletionStamp      int        `xml:"completionStamp,attr"`
	DatasetConfigVersion string     `xml:"datasetConfigVersion,attr"`
	Dataset              xmlDataset `xml:"Dataset"`
}

type xmlDataset struct {
	Name       string         `xml:"name,attr"`
	Interface  string         `xml:"interface,attr"`
	Attributes []xmlAttribute `xml:"Attribute"`
}

type xmlAttribute struct {
	Name string `xml:"name,attr"`
}

// BuildQuery renders the XML document for a TSV query of attributes against
// dataset.
func BuildQuery(dataset string, attributes []string) (string, error) {
	q := xmlQuery{
		VirtualSchemaName:    "default",
		Formatter:            "TSV",
		Header:               1,
		UniqueRows:           1,
		CompletionStamp:      1,
		DatasetConfigVersion: "0.6",
		Dataset: xmlDataset{
			Name:      dataset,
			Interface: "default",
		},
	}
	for _, a := range attributes {
		q.Dataset.Attributes = append(q.Dataset.Attributes, xmlAttribute{Name: a})
	}

	b, err := xml.Marshal(q)
	if err != nil {
		return "", err
	}

	return xml.Header + "<!DOCTYPE Query>" + string(b), nil
}

// Query runs a TSV query and returns the data rows, each with exactly
// len(attributes) columns. The header row and completion stamp are checked and
// stripped.
func (c *Client) Query(ctx context.Context, dataset string, attributes []string) ([][]string, error) {
	doc, err := BuildQuery(dataset, attributes)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("query", doc)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return parseTSV(body, len(attributes))
}

func (c *Client) do(req *http.Request) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	body := buf.String()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("BioMart returned HTTP %d: %s", resp.StatusCode, firstLine(body))
	}

	// BioMart reports query errors with a 200 status.
	if trimmed := strings.TrimSpace(body); strings.HasPrefix(trimmed, "Query ERROR") || strings.HasPrefix(trimmed, "ERROR") {
		return "", fmt.Errorf("BioMart: %s", firstLine(trimmed))
	}

	return body, nil
}

func parseTSV(body string, ncol int) ([][]string, error) {
	lines := strings.Split(strings.TrimRight(body, "\r\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[len(lines)-1]) != completionStamp {
		return nil, fmt.Errorf("BioMart response is incomplete: missing %s stamp", completionStamp)
	}
	lines = lines[:len(lines)-1]

	if len(lines) == 0 {
		return nil, fmt.Errorf("BioMart response has no header row")
	}

	// Header
	if x := len(strings.Split(strings.TrimRight(lines[0], "\r"), "\t")); x != ncol {
		return nil, fmt.Errorf("BioMart header had %d columns, expected %d", x, ncol)
	}

	out := make([][]string, 0, len(lines)-1)
	for i, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != ncol {
			return nil, fmt.Errorf("BioMart row %d had %d columns, expected %d", i+1, len(cols), ncol)
		}
		for k := range cols {
			cols[k] = strings.TrimSpace(cols[k])
		}
		out = append(out, cols)
	}

	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
