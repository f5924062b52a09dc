// Package increment appends objects to a PDF as an incremental update.
//
// An incremental update leaves every previously committed byte untouched:
// new indirect objects, a rewritten document catalog, a cross-reference
// section and a trailer chained via /Prev are appended after the original
// %%EOF. Readers that only understand the prior revision still see a valid
// file, and a torn append is ignorable because the old startxref remains
// intact.
//
// pdfcpu handles parsing and object serialization (PDFString); this package
// only owns the additive write protocol, since pdfcpu's writer always emits
// a full rewrite of the cross-reference data it manages.
//
// Usage:
//
//	w, err := increment.NewWriter(raw, ctx)
//	ref := w.AddStream(dict, payload)
//	w.Root()["MyPointer"] = *ref
//	w.UpdateRoot()
//	out, err := w.Bytes()
package increment

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Writer accumulates objects for one incremental revision of a PDF.
// It is single-use: after Bytes succeeds the writer must be discarded.
type Writer struct {
	base        []byte
	root        types.Dict
	rootRef     *types.IndirectRef
	infoRef     *types.IndirectRef
	rootChanged bool
	next        int // next free object number
	size        int // trailer /Size for the new revision
	prev        int64
	queue       []pending
}

type pending struct {
	nr  int
	gen int
	obj types.Object
	raw []byte // stream body, already encoded; nil for non-stream objects
}

// NewWriter prepares an incremental revision on top of the original file
// bytes. ctx must be the parsed context of exactly those bytes.
func NewWriter(base []byte, ctx *model.Context) (*Writer, error) {
	if ctx.Root == nil {
		return nil, fmt.Errorf("increment: context has no catalog reference")
	}
	root, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("increment: resolve catalog: %w", err)
	}

	prev, err := lastStartXref(base)
	if err != nil {
		return nil, err
	}

	// Highest committed object number, from the merged xref table. The
	// trailer /Size may lie in damaged files, the table does not.
	maxNr := 0
	for nr := range ctx.Table {
		if nr > maxNr {
			maxNr = nr
		}
	}

	return &Writer{
		base:    base,
		root:    root,
		rootRef: ctx.Root,
		infoRef: ctx.Info,
		next:    maxNr + 1,
		size:    maxNr + 1,
		prev:    prev,
	}, nil
}

// Root returns the live catalog dictionary. Mutations are only committed
// when UpdateRoot has been called before Bytes.
func (w *Writer) Root() types.Dict {
	return w.root
}

// UpdateRoot marks the catalog as changed so the revision rewrites it at
// its original object number.
func (w *Writer) UpdateRoot() {
	w.rootChanged = true
}

// AddObject queues obj as a new indirect object and returns its reference.
func (w *Writer) AddObject(obj types.Object) *types.IndirectRef {
	nr := w.next
	w.next++
	w.queue = append(w.queue, pending{nr: nr, obj: obj})
	return types.NewIndirectRef(nr, 0)
}

// AddStream queues a stream object with the given dictionary and raw
// (already encoded) body. /Length is set from the body.
func (w *Writer) AddStream(d types.Dict, raw []byte) *types.IndirectRef {
	d["Length"] = types.Integer(len(raw))
	nr := w.next
	w.next++
	w.queue = append(w.queue, pending{nr: nr, obj: d, raw: raw})
	return types.NewIndirectRef(nr, 0)
}

// Bytes serializes the revision and returns the complete new file:
// original bytes, new objects, cross-reference section, trailer.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.queue) == 0 && !w.rootChanged {
		return w.base, nil
	}

	var out bytes.Buffer
	out.Write(w.base)
	if n := len(w.base); n == 0 || (w.base[n-1] != '\n' && w.base[n-1] != '\r') {
		out.WriteByte('\n')
	}

	objs := w.queue
	if w.rootChanged {
		objs = append(objs, pending{
			nr:  int(w.rootRef.ObjectNumber),
			gen: int(w.rootRef.GenerationNumber),
			obj: w.root,
		})
	}

	entries := make(map[int]xrefEntry, len(objs))
	for _, p := range objs {
		entries[p.nr] = xrefEntry{off: int64(out.Len()), gen: p.gen}
		out.WriteString(strconv.Itoa(p.nr))
		out.WriteByte(' ')
		out.WriteString(strconv.Itoa(p.gen))
		out.WriteString(" obj\n")
		out.WriteString(p.obj.PDFString())
		if p.raw != nil {
			out.WriteString("\nstream\n")
			out.Write(p.raw)
			out.WriteString("\nendstream")
		}
		out.WriteString("\nendobj\n")
	}

	size := w.size
	if w.next > size {
		size = w.next
	}

	xrefOffset := int64(out.Len())
	writeXrefSection(&out, entries)

	out.WriteString("trailer\n<</Size ")
	out.WriteString(strconv.Itoa(size))
	out.WriteString(" /Root ")
	out.WriteString(w.rootRef.PDFString())
	if w.infoRef != nil {
		out.WriteString(" /Info ")
		out.WriteString(w.infoRef.PDFString())
	}
	out.WriteString(" /Prev ")
	out.WriteString(strconv.FormatInt(w.prev, 10))
	out.WriteString(">>\nstartxref\n")
	out.WriteString(strconv.FormatInt(xrefOffset, 10))
	out.WriteString("\n%%EOF\n")

	return out.Bytes(), nil
}

// xrefEntry is one in-use cross-reference row.
type xrefEntry struct {
	off int64
	gen int
}

// writeXrefSection emits a classic cross-reference section covering the
// given entries, split into contiguous subsections.
func writeXrefSection(out *bytes.Buffer, entries map[int]xrefEntry) {
	nrs := make([]int, 0, len(entries))
	for nr := range entries {
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)

	out.WriteString("xref\n")
	for i := 0; i < len(nrs); {
		j := i + 1
		for j < len(nrs) && nrs[j] == nrs[j-1]+1 {
			j++
		}
		out.WriteString(strconv.Itoa(nrs[i]))
		out.WriteByte(' ')
		out.WriteString(strconv.Itoa(j - i))
		out.WriteByte('\n')
		for _, nr := range nrs[i:j] {
			e := entries[nr]
			fmt.Fprintf(out, "%010d %05d n \n", e.off, e.gen)
		}
		i = j
	}
}

// lastStartXref locates the startxref offset of the newest committed
// revision, which becomes the /Prev of the one being written.
func lastStartXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("increment: no startxref in file")
	}
	rest := data[idx+len("startxref"):]
	i := 0
	for i < len(rest) && (rest[i] == '\r' || rest[i] == '\n' || rest[i] == ' ') {
		i++
	}
	j := i
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == i {
		return 0, fmt.Errorf("increment: malformed startxref")
	}
	off, err := strconv.ParseInt(string(rest[i:j]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("increment: malformed startxref: %w", err)
	}
	return off, nil
}
