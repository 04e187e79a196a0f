package expression

import (
	"sort"
	"strings"

	"github.com/carbocation/orthoexpr"
)

// Layout says which columns of an expression file hold the gene id and the
// value. An empty column name selects by position instead; a negative
// position counts from the end of the header.
type Layout struct {
	Name        string
	IDColumn    string
	ValueColumn string
	IDCol       int
	ValueCol    int
}

var Layouts = map[string]Layout{
	"generic":       {Name: "generic", IDCol: 0, ValueCol: 1},
	"salmon":        {Name: "salmon", IDColumn: "Name", ValueColumn: "TPM"},
	"kallisto":      {Name: "kallisto", IDColumn: "target_id", ValueColumn: "tpm"},
	"rsem":          {Name: "rsem", IDColumn: "gene_id", ValueColumn: "TPM"},
	"stringtie":     {Name: "stringtie", IDColumn: "Gene ID", ValueColumn: "TPM"},
	"featurecounts": {Name: "featurecounts", IDColumn: "Geneid", ValueCol: -1},
}

// DefaultLayout reads the first two columns.
const DefaultLayout = "generic"

func LayoutNames() string {
	names := make([]string, 0, len(Layouts))
	for name := range Layouts {
		names = append(names, name)
	}
	sort.Strings(names)

	return strings.Join(names, ", ")
}

// ParseLayout looks up a layout by name, case-insensitively. An empty name is
// the generic layout.
func ParseLayout(name string) (Layout, error) {
	if name == "" {
		name = DefaultLayout
	}
	if l, exists := Layouts[strings.ToLower(name)]; exists {
		return l, nil
	}

	return Layout{}, orthoexpr.Configf("expression.ParseLayout", "unknown layout %q; choose one of %s", name, LayoutNames())
}

// columns resolves the layout against a header row.
func (l Layout) columns(header []string) (idCol, valueCol int, err error) {
	idCol, err = l.column(header, l.IDColumn, l.IDCol)
	if err != nil {
		return -1, -1, err
	}
	valueCol, err = l.column(header, l.ValueColumn, l.ValueCol)
	if err != nil {
		return -1, -1, err
	}
	if idCol == valueCol {
		return -1, -1, orthoexpr.IOf("", "layout %s reads gene ids and values from the same column", l.Name)
	}

	return idCol, valueCol, nil
}

func (l Layout) column(header []string, name string, pos int) (int, error) {
	if name != "" {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i, nil
			}
		}
		return -1, orthoexpr.IOf("", "layout %s needs a %q column, header has %v", l.Name, name, header)
	}

	if pos < 0 {
		pos = len(header) + pos
	}
	if pos < 0 || pos >= len(header) {
		return -1, orthoexpr.IOf("", "layout %s needs at least %d columns, header has %d", l.Name, pos+1, len(header))
	}

	return pos, nil
}
