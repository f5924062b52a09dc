package meta

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/pdfmeta/increment"
)

// ErrCommit wraps every flush failure. Unlike load, flush never swallows
// errors: a silently dropped mutation would break the durability contract.
var ErrCommit = errors.New("meta: commit failed")

// Flush commits the in-memory document as a new snapshot in an additive
// revision of the PDF. No-op when clean. On failure the document stays
// dirty and the prior bytes remain current.
func (s *Store) Flush() error {
	if !s.dirty {
		return nil
	}

	payload, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrCommit, err)
	}

	ctx, err := readContext(s.data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
	w, err := increment.NewWriter(s.data, ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}

	// Snapshot stream: compact JSON, flate-compressed, tagged as ours.
	body, err := increment.FlateEncode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
	sd := types.NewDict()
	sd["Type"] = types.Name(streamTypeValue)
	sd["Subtype"] = types.Name("application/json")
	sd["Filter"] = types.Name("FlateDecode")
	ref := w.AddStream(sd, body)

	// Catalog pointers: Latest moves to the new snapshot, History grows by
	// one. History is read from the current revision (absent means empty)
	// so the chain stays append-only across writers.
	root := w.Root()
	root[catalogKeyLatest] = *ref

	var items types.Array
	if prev, ok := root.Find(catalogKeyHistory); ok {
		if arr, err := ctx.DereferenceArray(prev); err == nil {
			items = append(items, arr...)
		}
	}
	items = append(items, *ref)
	root[catalogKeyHistory] = items
	w.UpdateRoot()

	out, err := w.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}

	s.data = out
	s.dirty = false
	s.logger.Debug("meta: snapshot committed",
		"version", s.doc.Version, "records", len(s.doc.Records), "bytes", len(out))
	return nil
}

// PDF returns the current PDF bytes, flushing first if the store is dirty.
func (s *Store) PDF() ([]byte, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	return s.data, nil
}

// PDFBase64 is PDF with base64-encoded output.
func (s *Store) PDFBase64() (string, error) {
	out, err := s.PDF()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
