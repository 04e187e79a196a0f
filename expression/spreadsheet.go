package expression

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/extrame/xls"
)

// Legacy Excel workbooks are OLE2 compound files.
var ole2Signature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

func isSpreadsheet(raw []byte) bool {
	return bytes.HasPrefix(raw, ole2Signature)
}

// spreadsheetToTSV flattens the first sheet of an .xls workbook into
// tab-delimited text. Rows whose cells are all empty are skipped.
func spreadsheetToTSV(raw []byte) (out []byte, err error) {
	// The xls reader panics on some malformed workbooks.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("unreadable spreadsheet: %v", r)
		}
	}()

	spreadsheet, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, err
	}
	if spreadsheet == nil || spreadsheet.NumSheets() < 1 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	sheet := spreadsheet.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("spreadsheet sheet 0 was nil")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	for rowID := 0; rowID <= int(sheet.MaxRow); rowID++ {
		row := sheetRow(sheet, rowID)
		if row == nil {
			continue
		}

		record := make([]string, 0, row.LastCol()+1)
		blank := true
		for colID := 0; colID <= row.LastCol(); colID++ {
			value := row.Col(colID)
			if value != "" {
				blank = false
			}
			record = append(record, value)
		}
		if blank {
			continue
		}

		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// sheetRow returns nil for rows the sheet does not store; Row itself panics on
// them.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
