package descriptor

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the descriptor table from one sheet of a workbook.
// Rows that are entirely blank are skipped, as they are in delimited text.
func parseXLSX(path string, opts Options) (*Cohort, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &MalformedError{Source: path, Reason: "cannot open workbook", Err: err}
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &MalformedError{Source: path, Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, &MalformedError{Source: path, Reason: fmt.Sprintf("cannot read sheet %q", sheet), Err: err}
	}

	rows := make([]row, 0, len(raw))
	for i, cells := range raw {
		if blankRow(cells) {
			continue
		}
		rows = append(rows, row{line: i + 1, fields: cells})
	}
	return build(path, rows, opts)
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
