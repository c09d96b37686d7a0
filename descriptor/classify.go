package descriptor

import "strings"

// Classifier maps a column name to a resource Kind. Tasks may supply their own.
type Classifier interface {
	Classify(column string) Kind
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(column string) Kind

func (f ClassifierFunc) Classify(column string) Kind { return f(column) }

// Rule maps any column containing Substr (case-insensitive) to Kind.
type Rule struct {
	Substr string
	Kind   Kind
}

// SubstringClassifier applies Rules in order; the first match wins.
// Columns matching no rule are KindOther.
type SubstringClassifier struct {
	Rules []Rule
}

var _ Classifier = SubstringClassifier{}

// DefaultClassifier recognises the usual imaging column conventions.
func DefaultClassifier() SubstringClassifier {
	return SubstringClassifier{Rules: []Rule{
		{Substr: "volume", Kind: KindImage},
		{Substr: "image", Kind: KindImage},
		{Substr: "img", Kind: KindImage},
		{Substr: "seg", Kind: KindLabel},
		{Substr: "label", Kind: KindLabel},
		{Substr: "mask", Kind: KindLabel},
		{Substr: "markup", Kind: KindPointSet},
		{Substr: "point", Kind: KindPointSet},
		{Substr: "fiducial", Kind: KindPointSet},
		{Substr: "landmark", Kind: KindPointSet},
	}}
}

func (c SubstringClassifier) Classify(column string) Kind {
	lc := strings.ToLower(column)
	for _, r := range c.Rules {
		if r.Substr != "" && strings.Contains(lc, strings.ToLower(r.Substr)) {
			return r.Kind
		}
	}
	return KindOther
}

// IsPrimary reports whether a column is marked as the primary resource of its kind.
func IsPrimary(column string) bool {
	return strings.Contains(strings.ToLower(column), "primary")
}

// ParseKind is the inverse of Kind.String. It is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return KindImage, true
	case "label":
		return KindLabel, true
	case "pointset":
		return KindPointSet, true
	case "other":
		return KindOther, true
	}
	return KindOther, false
}
