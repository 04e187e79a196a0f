package diffexpr

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"

	"github.com/carbocation/orthoexpr"
)

// naFloat writes a null as NA.
type naFloat struct {
	null.Float
}

func (f naFloat) MarshalCSV() (string, error) {
	if !f.Valid {
		return "NA", nil
	}
	return strconv.FormatFloat(f.Float64, 'g', -1, 64), nil
}

type tsvRow struct {
	GeneIDA        string  `csv:"gene_id_a"`
	GeneNameA      string  `csv:"gene_name_a"`
	GeneIDB        string  `csv:"gene_id_b"`
	GeneNameB      string  `csv:"gene_name_b"`
	MeanA          naFloat `csv:"mean_a"`
	MeanB          naFloat `csv:"mean_b"`
	Log2FoldChange naFloat `csv:"log2_fold_change"`
	PValue         naFloat `csv:"p_value"`
	AdjustedPValue naFloat `csv:"adjusted_p_value"`
}

// WriteTSV writes the result table in row order, with undefined statistics as
// NA.
func (r *Result) WriteTSV(w io.Writer) error {
	rows := make([]tsvRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, tsvRow{
			GeneIDA:        row.GeneIDA,
			GeneNameA:      row.GeneNameA,
			GeneIDB:        row.GeneIDB,
			GeneNameB:      row.GeneNameB,
			MeanA:          naFloat{finite(row.MeanA)},
			MeanB:          naFloat{finite(row.MeanB)},
			Log2FoldChange: naFloat{row.Log2FoldChange},
			PValue:         naFloat{row.PValue},
			AdjustedPValue: naFloat{row.AdjustedPValue},
		})
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return orthoexpr.Wrap(orthoexpr.KindIO, "diffexpr.WriteTSV", err)
	}

	return nil
}
