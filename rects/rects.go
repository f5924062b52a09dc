// Package rects persists page-relative rectangle annotations through the
// metadata store, under the namespace convention consumed by layout tools:
// one record per rectangle, content {page, category, x1, y1, x2, y2} with
// coordinates as fractions of the page in [0,1]. The store treats that
// shape as opaque; only this package interprets it.
package rects

import (
	"fmt"
	"math"

	"github.com/hazyhaar/pdfmeta/meta"
)

// DefaultNamespace is the partition rectangle records live under.
const DefaultNamespace = "pdfops.rect"

// Rectangle is one named, categorized region on a page. Corner order is
// normalized so X1 <= X2 and Y1 <= Y2.
type Rectangle struct {
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Page     int     `json:"page" yaml:"page"`
	X1       float64 `json:"x1" yaml:"x1"`
	Y1       float64 `json:"y1" yaml:"y1"`
	X2       float64 `json:"x2" yaml:"x2"`
	Y2       float64 `json:"y2" yaml:"y2"`
}

// New builds a Rectangle with normalized corners.
func New(name, category string, page int, x1, y1, x2, y2 float64) Rectangle {
	return Rectangle{
		Name:     name,
		Category: category,
		Page:     page,
		X1:       math.Min(x1, x2),
		Y1:       math.Min(y1, y2),
		X2:       math.Max(x1, x2),
		Y2:       math.Max(y1, y2),
	}
}

// Width returns the horizontal extent.
func (r Rectangle) Width() float64 { return math.Abs(r.X2 - r.X1) }

// Height returns the vertical extent.
func (r Rectangle) Height() float64 { return math.Abs(r.Y2 - r.Y1) }

// content returns the record content map, name excluded: the record's own
// name field carries it.
func (r Rectangle) content() map[string]any {
	return map[string]any{
		"page":     r.Page,
		"category": r.Category,
		"x1":       r.X1,
		"y1":       r.Y1,
		"x2":       r.X2,
		"y2":       r.Y2,
	}
}

// fromRecord decodes a rectangle record. JSON numbers arrive as float64.
func fromRecord(rec meta.Record) (Rectangle, error) {
	num := func(key string) (float64, error) {
		switch v := rec.Content[key].(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
		return 0, fmt.Errorf("rects: record %d: missing or non-numeric %q", rec.ID, key)
	}
	page, err := num("page")
	if err != nil {
		return Rectangle{}, err
	}
	category, _ := rec.Content["category"].(string)
	x1, err := num("x1")
	if err != nil {
		return Rectangle{}, err
	}
	y1, err := num("y1")
	if err != nil {
		return Rectangle{}, err
	}
	x2, err := num("x2")
	if err != nil {
		return Rectangle{}, err
	}
	y2, err := num("y2")
	if err != nil {
		return Rectangle{}, err
	}
	return New(rec.Name, category, int(page), x1, y1, x2, y2), nil
}

// Adapter reads and writes the rectangle set of a PDF through the metadata
// store. Set replaces the whole namespace in one dirty episode, so repeated
// round trips cost one snapshot each.
type Adapter struct {
	ns  string
	cfg meta.Config
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithNamespace overrides the record namespace.
func WithNamespace(ns string) AdapterOption {
	return func(a *Adapter) { a.ns = ns }
}

// WithStoreConfig sets the store configuration used for each open.
func WithStoreConfig(cfg meta.Config) AdapterOption {
	return func(a *Adapter) { a.cfg = cfg }
}

// NewAdapter creates an Adapter with the default namespace.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{ns: DefaultNamespace}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Get returns every rectangle stored in the PDF, in insertion order.
// Records whose content does not decode as a rectangle are reported.
func (a *Adapter) Get(pdf []byte) ([]Rectangle, error) {
	s, err := meta.Open(pdf, a.cfg)
	if err != nil {
		return nil, err
	}
	var out []Rectangle
	for _, rec := range s.All(nil, meta.String(a.ns)) {
		r, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Set replaces the PDF's rectangle set and returns the updated bytes.
// Previous rectangle records are removed and the new set appended, all
// within a single dirty episode (one snapshot, one version bump).
func (a *Adapter) Set(pdf []byte, rects []Rectangle) ([]byte, error) {
	s, err := meta.Open(pdf, a.cfg)
	if err != nil {
		return nil, err
	}
	ns := meta.String(a.ns)
	for _, rec := range s.All(nil, ns) {
		s.RemoveByID(rec.ID, ns)
	}
	for _, r := range rects {
		s.Add(r.Name, r.content(), a.ns)
	}
	return s.PDF()
}
