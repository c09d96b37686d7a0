// Package layout computes deterministic panel arrangements for the visual
// resources of the active case.
//
// PlanFor is pure: one panel per (resource x base orientation), resources in the
// order given and planes in Axial, Sagittal, Coronal order. Planner adds the
// small amount of state a display needs (the orientation set and the last plan)
// and never recomputes on its own.
package layout

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sync"
)

// ErrNoPlan is returned by Planner.XML when no valid plan is held.
var ErrNoPlan = errors.New("layout: no current plan")

// Resource is a displayable resource. Overlay marks overlay-bearing kinds
// such as segmentations.
type Resource struct {
	Name    string
	Overlay bool
}

// Panel is one view in a plan.
type Panel struct {
	Name        string // "<resource>--<Orientation>"
	Resource    string
	Orientation Orientation
	Color       int    // 1-based colour index, unique per panel
	Reference   string // background resource, "" => native space
}

// Plan is a computed layout.
type Plan struct {
	Panels      []Panel
	Reference   string // resource used for co-registration, "" if none
	Orientation Orientation
}

// Len is |resources| x |orientations|.
func (p Plan) Len() int { return len(p.Panels) }

// PlanFor computes panels for resources. A nil primary selects the first
// overlay resource as reference; with no overlay resource there is no reference.
// Resources with duplicate or empty names are planned once and skipped, respectively.
func PlanFor(resources []Resource, primary *Resource, o Orientation) Plan {
	p := Plan{Orientation: o & Trio}

	uniq := make([]Resource, 0, len(resources))
	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r.Name == "" {
			continue
		}
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}
		uniq = append(uniq, r)
	}

	switch {
	case primary != nil && primary.Name != "":
		p.Reference = primary.Name
	default:
		for _, r := range uniq {
			if r.Overlay {
				p.Reference = r.Name
				break
			}
		}
	}

	p.Panels = make([]Panel, 0, len(uniq)*p.Orientation.Len())
	for _, r := range uniq {
		p.Orientation.Each(func(base Orientation) {
			p.Panels = append(p.Panels, Panel{
				Name:        fmt.Sprintf("%s--%s", r.Name, base),
				Resource:    r.Name,
				Orientation: base,
				Color:       len(p.Panels) + 1,
				Reference:   p.Reference,
			})
		})
	}
	return p
}

// Options configure a Planner.
type Options struct {
	Orientation Orientation // 0 => Axial
	Horizontal  bool        // panels side by side instead of stacked
	Opacity     float64     // foreground opacity; 0 => 0.5
}

// Planner holds the requested orientation set and the last computed plan.
// It is safe for concurrent use.
type Planner struct {
	mu         sync.Mutex
	o          Orientation
	horizontal bool
	opacity    float64
	last       Plan
	valid      bool
}

func NewPlanner(opts Options) *Planner {
	o := opts.Orientation & Trio
	if o == 0 {
		o = Axial
	}
	op := opts.Opacity
	if op <= 0 || op > 1 {
		op = 0.5
	}
	return &Planner{o: o, horizontal: opts.Horizontal, opacity: op}
}

func (pl *Planner) Orientation() Orientation {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.o
}

// SetOrientation replaces the orientation set and drops the current plan.
// Callers must call Plan again before using the layout.
func (pl *Planner) SetOrientation(o Orientation) {
	pl.mu.Lock()
	pl.o = o & Trio
	pl.valid = false
	pl.last = Plan{}
	pl.mu.Unlock()
}

// Invalidate drops the current plan.
func (pl *Planner) Invalidate() {
	pl.mu.Lock()
	pl.valid = false
	pl.last = Plan{}
	pl.mu.Unlock()
}

// SetHorizontal changes the arrangement and drops the current plan.
func (pl *Planner) SetHorizontal(h bool) {
	pl.mu.Lock()
	pl.horizontal = h
	pl.valid = false
	pl.last = Plan{}
	pl.mu.Unlock()
}

// Plan computes and stores a plan for the current orientation set.
func (pl *Planner) Plan(resources []Resource, primary *Resource) Plan {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.last = PlanFor(resources, primary, pl.o)
	pl.valid = true
	return pl.last
}

// Current returns the last plan; ok is false after invalidation.
func (pl *Planner) Current() (Plan, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.last, pl.valid
}

// XML renders the current plan as a layout description.
func (pl *Planner) XML() ([]byte, error) {
	pl.mu.Lock()
	p, ok, h, op := pl.last, pl.valid, pl.horizontal, pl.opacity
	pl.mu.Unlock()
	if !ok {
		return nil, ErrNoPlan
	}
	return MarshalXML(p, h, op)
}

type xmlLayout struct {
	XMLName xml.Name  `xml:"layout"`
	Type    string    `xml:"type,attr"`
	Split   bool      `xml:"split,attr"`
	Items   []xmlItem `xml:"item"`
}

type xmlItem struct {
	View xmlView `xml:"view"`
}

type xmlView struct {
	Name        string  `xml:"name,attr"`
	Orientation string  `xml:"orientation,attr"`
	Color       int     `xml:"color,attr"`
	Background  string  `xml:"background,attr,omitempty"`
	Foreground  string  `xml:"foreground,attr,omitempty"`
	Opacity     float64 `xml:"opacity,attr,omitempty"`
}

// MarshalXML renders p. The reference, when set, is the background of every
// panel; every other resource is drawn as foreground at the given opacity.
func MarshalXML(p Plan, horizontal bool, opacity float64) ([]byte, error) {
	doc := xmlLayout{Type: "vertical", Split: true}
	if horizontal {
		doc.Type = "horizontal"
	}
	doc.Items = make([]xmlItem, 0, len(p.Panels))
	for _, pn := range p.Panels {
		v := xmlView{Name: pn.Name, Orientation: pn.Orientation.String(), Color: pn.Color}
		switch {
		case pn.Reference == "" || pn.Reference == pn.Resource:
			v.Background = pn.Resource
		default:
			v.Background = pn.Reference
			v.Foreground = pn.Resource
			v.Opacity = opacity
		}
		doc.Items = append(doc.Items, xmlItem{View: v})
	}
	return xml.MarshalIndent(doc, "", "  ")
}
