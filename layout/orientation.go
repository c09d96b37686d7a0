package layout

import "strings"

// Orientation is a combinable set of display planes.
type Orientation uint8

const (
	Axial Orientation = 1 << iota
	Sagittal
	Coronal

	Trio = Axial | Sagittal | Coronal
)

var baseOrientations = [...]struct {
	o    Orientation
	name string
}{
	{Axial, "Axial"},
	{Sagittal, "Sagittal"},
	{Coronal, "Coronal"},
}

// Has reports whether every plane in x is also in o.
func (o Orientation) Has(x Orientation) bool { return x != 0 && o&x == x }

// Union returns o ∪ x.
func (o Orientation) Union(x Orientation) Orientation { return (o | x) & Trio }

// Len is the number of base planes in o.
func (o Orientation) Len() int {
	n := 0
	for _, b := range baseOrientations {
		if o&b.o != 0 {
			n++
		}
	}
	return n
}

// Each calls fn for each base plane in o, in Axial, Sagittal, Coronal order.
func (o Orientation) Each(fn func(Orientation)) {
	for _, b := range baseOrientations {
		if o&b.o != 0 {
			fn(b.o)
		}
	}
}

func (o Orientation) String() string {
	if o&Trio == 0 {
		return "None"
	}
	var parts []string
	for _, b := range baseOrientations {
		if o&b.o != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseOrientation accepts names joined by "|" or ",", case-insensitive.
// "trio" selects all three planes.
func ParseOrientation(s string) (Orientation, bool) {
	var o Orientation
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, "trio") {
			o |= Trio
			continue
		}
		found := false
		for _, b := range baseOrientations {
			if strings.EqualFold(part, b.name) {
				o |= b.o
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return o, o != 0
}
