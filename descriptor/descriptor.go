// Package descriptor parses cohort descriptors into ordered, validated case records.
//
// A descriptor is a table whose first row is a header. Exactly one column must be
// named "uid"; every other column references one resource file per case. Column
// names are mapped to a resource Kind by a pluggable Classifier.
//
// Row order is preserved: it is the traversal order of the cohort.
package descriptor

import "sort"

// UIDColumn is the mandatory primary key column.
const UIDColumn = "uid"

// Kind classifies a resource column.
type Kind uint8

const (
	KindOther Kind = iota
	KindImage
	KindLabel
	KindPointSet
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindLabel:
		return "label"
	case KindPointSet:
		return "pointset"
	default:
		return "other"
	}
}

// Overlay reports whether resources of this kind are drawn on top of a reference image.
func (k Kind) Overlay() bool { return k == KindLabel }

// ResourceRef is one cell of a case row.
type ResourceRef struct {
	Column  string
	Path    string // raw cell value; absolute or relative to the data root
	Kind    Kind
	Primary bool
}

// Empty reports whether the case lacks this resource.
func (r ResourceRef) Empty() bool { return r.Path == "" }

// CaseRecord is one validated descriptor row.
type CaseRecord struct {
	UID       string
	Row       int // 1-based row in the source, header is row 1
	Resources map[string]ResourceRef
	columns   []string
}

// Columns returns the resource columns in descriptor order.
func (c CaseRecord) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

func (c CaseRecord) Resource(column string) (ResourceRef, bool) {
	r, ok := c.Resources[column]
	return r, ok
}

// ByKind returns the non-empty resources of kind k in column order.
func (c CaseRecord) ByKind(k Kind) []ResourceRef {
	var out []ResourceRef
	for _, col := range c.columns {
		r := c.Resources[col]
		if r.Kind == k && !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// Cohort is the ordered result of parsing a descriptor.
type Cohort struct {
	Source  string
	Columns []string // resource columns, "uid" excluded
	Cases   []CaseRecord

	index map[string]int
}

func newCohort(source string, columns []string, cases []CaseRecord) *Cohort {
	idx := make(map[string]int, len(cases))
	for i, c := range cases {
		idx[c.UID] = i
	}
	return &Cohort{Source: source, Columns: columns, Cases: cases, index: idx}
}

func (c *Cohort) Len() int { return len(c.Cases) }

// Index returns the position of uid in traversal order.
func (c *Cohort) Index(uid string) (int, bool) {
	i, ok := c.index[uid]
	return i, ok
}

func (c *Cohort) Case(uid string) (CaseRecord, bool) {
	i, ok := c.index[uid]
	if !ok {
		return CaseRecord{}, false
	}
	return c.Cases[i], true
}

func (c *Cohort) UIDs() []string {
	out := make([]string, len(c.Cases))
	for i, cs := range c.Cases {
		out[i] = cs.UID
	}
	return out
}

// KindsPresent lists every kind that at least one column maps to, sorted.
func (c *Cohort) KindsPresent() []Kind {
	seen := map[Kind]struct{}{}
	if len(c.Cases) > 0 {
		for _, r := range c.Cases[0].Resources {
			seen[r.Kind] = struct{}{}
		}
	}
	out := make([]Kind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
