package descriptor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Options tune parsing. The zero value parses comma-separated text with
// DefaultClassifier.
type Options struct {
	Classifier Classifier // nil => DefaultClassifier()
	Comma      rune       // CSV only; 0 => ','
	Sheet      string     // XLSX only; "" => first sheet
}

// row is a raw record with its 1-based position in the source.
type row struct {
	line   int
	fields []string
}

// ParseFile parses a descriptor on disk. Files ending in .xlsx are read as
// spreadsheets; everything else is read as delimited text.
func ParseFile(path string, opts Options) (*Cohort, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return parseXLSX(path, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(path, f, opts)
}

// Parse reads a comma-separated descriptor from r. source is used in errors only.
func Parse(source string, r io.Reader, opts Options) (*Cohort, error) {
	return parseCSV(source, r, opts)
}

func parseCSV(source string, r io.Reader, opts Options) (*Cohort, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // short rows are padded by build
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	var rows []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			me := &MalformedError{Source: source, Reason: "unreadable row", Err: err}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				me.Rows = []int{pe.StartLine}
			}
			return nil, me
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, row{line: line, fields: rec})
	}
	return build(source, rows, opts)
}

// build validates header and rows and assembles the cohort.
func build(source string, rows []row, opts Options) (*Cohort, error) {
	if len(rows) == 0 {
		return nil, &MalformedError{Source: source, Reason: "no header row"}
	}
	cls := opts.Classifier
	if cls == nil {
		cls = DefaultClassifier()
	}

	header := make([]string, len(rows[0].fields))
	for i, h := range rows[0].fields {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	uidCol := -1
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if _, dup := seen[h]; dup {
			return nil, &MalformedError{Source: source, Reason: fmt.Sprintf("column %q appears more than once", h), Rows: []int{rows[0].line}}
		}
		seen[h] = struct{}{}
		if h == UIDColumn {
			uidCol = i
		}
	}
	if uidCol < 0 {
		return nil, &MalformedError{Source: source, Reason: `no column named "uid"`, Rows: []int{rows[0].line}}
	}
	if len(header) < 2 {
		return nil, &MalformedError{Source: source, Reason: "no resource columns besides uid", Rows: []int{rows[0].line}}
	}

	columns := make([]string, 0, len(header)-1)
	kinds := make(map[string]Kind, len(header)-1)
	for i, h := range header {
		if i == uidCol {
			continue
		}
		if h == "" {
			return nil, &MalformedError{Source: source, Reason: fmt.Sprintf("column %d has an empty name", i+1), Rows: []int{rows[0].line}}
		}
		columns = append(columns, h)
		kinds[h] = cls.Classify(h)
	}

	var (
		cases    = make([]CaseRecord, 0, len(rows)-1)
		blank    []int
		rowsByID = make(map[string][]int, len(rows)-1)
	)
	for _, r := range rows[1:] {
		if len(r.fields) > len(header) {
			return nil, &MalformedError{Source: source, Reason: "row has more cells than the header", Rows: []int{r.line}}
		}
		cell := func(i int) string {
			if i < len(r.fields) {
				return strings.TrimSpace(r.fields[i])
			}
			return ""
		}

		uid := cell(uidCol)
		if uid == "" {
			blank = append(blank, r.line)
			continue
		}
		rowsByID[uid] = append(rowsByID[uid], r.line)

		res := make(map[string]ResourceRef, len(columns))
		for i, h := range header {
			if i == uidCol {
				continue
			}
			res[h] = ResourceRef{Column: h, Path: cell(i), Kind: kinds[h], Primary: IsPrimary(h)}
		}
		cases = append(cases, CaseRecord{UID: uid, Row: r.line, Resources: res, columns: columns})
	}

	var errs []error
	if len(blank) > 0 {
		errs = append(errs, &MalformedError{Source: source, Reason: "empty uid", Rows: blank})
	}

	var dups []Duplicate
	for uid, lines := range rowsByID {
		if len(lines) > 1 {
			dups = append(dups, Duplicate{UID: uid, Rows: lines})
		}
	}
	if len(dups) > 0 {
		sort.Slice(dups, func(i, j int) bool { return dups[i].Rows[0] < dups[j].Rows[0] })
		errs = append(errs, &DuplicateUIDError{Source: source, Duplicates: dups})
	}
	if len(errs) > 0 {
		// both problems are reported so the file can be fixed in one pass
		return nil, errors.Join(errs...)
	}

	return newCohort(source, columns, cases), nil
}
