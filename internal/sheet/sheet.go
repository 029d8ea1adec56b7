// Package sheet turns uploaded spreadsheets into reconciliation input:
// it parses the file into a grid of cell text, finds the header row,
// maps columns onto guide fields and extracts per-row data.
package sheet

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ParseGrid reads an xlsx/xls file into a 2D grid of cell text from the
// first sheet. Rows are as formatted by the spreadsheet, trailing empty
// cells may be absent (callers must bounds-check).
func ParseGrid(file []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(file))
	if err != nil {
		return nil, errors.Wrap(err, "open spreadsheet")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "read rows")
	}
	return rows, nil
}
