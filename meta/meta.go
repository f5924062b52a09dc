// Package meta embeds an append-only, versioned metadata store inside a PDF.
//
// Records survive edits made by unrelated tools because every flush commits
// a brand-new snapshot as an incremental revision; prior bytes are never
// rewritten. Two private catalog keys locate the store's state:
//
//   - /HorosPdfmetaLatest  — reference to the newest snapshot stream
//   - /HorosPdfmetaHistory — append-only array of every snapshot ever written
//
// Each snapshot is a FlateDecode stream tagged /Type /HorosPdfmeta carrying
// a compact JSON payload. When prior state is missing, foreign, or
// unreadable, Open recovers with a fresh document flagged corrupt instead of
// failing: availability wins over surfacing parse errors. Flush failures, by
// contrast, are always surfaced — silently dropping a mutation would break
// the durability contract.
//
// Usage:
//
//	s, err := meta.Open(raw, meta.Config{})
//	rec := s.Add("sig", map[string]any{"x": 1}, "")
//	out, err := s.PDF() // flushes if dirty
package meta

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Private catalog keys and the snapshot ownership tag. pdfcpu stores dict
// keys without the leading slash.
const (
	catalogKeyLatest  = "HorosPdfmetaLatest"
	catalogKeyHistory = "HorosPdfmetaHistory"
	streamTypeValue   = "HorosPdfmeta"
)

// storeVersion prefixes the version string of freshly created documents.
const storeVersion = "1.0"

// LoadState reports how the in-memory document was obtained.
type LoadState int

const (
	// StateLoaded: a valid prior snapshot was adopted verbatim.
	StateLoaded LoadState = iota
	// StateFresh: no metadata existed yet; a clean document was created.
	StateFresh
	// StateFreshCorrupt: prior state was unreadable or foreign; a fresh
	// document was created with the corruption flag set.
	StateFreshCorrupt
)

func (s LoadState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFresh:
		return "fresh"
	case StateFreshCorrupt:
		return "fresh-corrupt"
	default:
		return "unknown"
	}
}

// Config configures a Store.
type Config struct {
	// Base64 indicates the input bytes are base64-encoded.
	Base64 bool `json:"base64" yaml:"base64"`

	// Logger for debug messages on recovery paths.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store owns one in-memory metadata document decoded from the PDF bytes
// supplied at construction. Not safe for concurrent use.
type Store struct {
	cfg    Config
	logger *slog.Logger

	data  []byte
	doc   Document
	state LoadState
	dirty bool
}

// String returns a pointer to s, for use as an optional namespace or name
// filter in queries.
func String(s string) *string { return &s }

// Open builds a Store from raw PDF bytes. Loading never fails: any prior
// state that cannot be adopted yields a fresh document, corrupt-flagged when
// the state existed but was unreadable or foreign. The only error case is
// undecodable base64 input when cfg.Base64 is set.
func Open(data []byte, cfg Config) (*Store, error) {
	cfg.defaults()
	if cfg.Base64 {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("meta: base64 input: %w", err)
		}
		data = decoded
	}
	s := &Store{cfg: cfg, logger: cfg.Logger, data: data}
	s.load()
	return s, nil
}

// State reports whether the document was loaded from a prior snapshot or
// freshly created.
func (s *Store) State() LoadState { return s.state }

// Corrupt reports whether the document was produced by fallback recovery.
func (s *Store) Corrupt() bool { return s.doc.Corrupt != 0 }

// Version returns the current document version string.
func (s *Store) Version() string { return s.doc.Version }

// Dirty reports whether there are unflushed mutations.
func (s *Store) Dirty() bool { return s.dirty }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.doc.Records) }

// fresh resets the document to an initialized empty state.
func (s *Store) fresh(state LoadState) {
	corrupt := 0
	if state == StateFreshCorrupt {
		corrupt = 1
	}
	s.doc = Document{
		Version: storeVersion + ".0",
		NextID:  0,
		Corrupt: corrupt,
		Records: []Record{},
	}
	s.state = state
}

// load resolves the newest committed snapshot and adopts it. Every failure
// branch maps deterministically to a fresh corrupt document; the only clean
// fresh outcome is a PDF that simply carries no metadata yet.
func (s *Store) load() {
	ctx, err := readContext(s.data)
	if err != nil {
		s.logger.Debug("meta: unreadable pdf, starting fresh", "error", err)
		s.fresh(StateFreshCorrupt)
		return
	}

	root, err := ctx.Catalog()
	if err != nil {
		s.fresh(StateFreshCorrupt)
		return
	}

	// Prefer the Latest pointer; fall back to the tail of History.
	target, found := root.Find(catalogKeyLatest)
	if !found {
		if histObj, ok := root.Find(catalogKeyHistory); ok {
			if arr, err := ctx.DereferenceArray(histObj); err == nil && len(arr) > 0 {
				target = arr[len(arr)-1]
				found = true
			}
		}
	}
	if !found {
		// No metadata yet. Legitimate, not corruption.
		s.fresh(StateFresh)
		return
	}

	sd, _, err := ctx.DereferenceStreamDict(target)
	if err != nil || sd == nil {
		s.fresh(StateFreshCorrupt)
		return
	}

	// Ownership check before touching the payload: a present but foreign
	// /Type means another actor took over the pointer slot.
	if owner, mismatched := foreignType(sd.Dict); mismatched {
		s.logger.Debug("meta: pointer owned by another actor", "type", owner)
		s.fresh(StateFreshCorrupt)
		return
	}

	if err := sd.Decode(); err != nil {
		s.fresh(StateFreshCorrupt)
		return
	}

	doc, err := parseSnapshot(sd.Content)
	if err != nil {
		s.logger.Debug("meta: invalid snapshot payload, starting fresh", "error", err)
		s.fresh(StateFreshCorrupt)
		return
	}

	s.doc = doc
	s.state = StateLoaded
}

// foreignType inspects the dict's /Type. Returns the tag value and whether
// it is present but not ours. An absent tag is accepted.
func foreignType(d types.Dict) (string, bool) {
	t, ok := d.Find("Type")
	if !ok || t == nil {
		return "", false
	}
	name, isName := t.(types.Name)
	if !isName {
		return fmt.Sprintf("%v", t), true
	}
	return string(name), name != types.Name(streamTypeValue)
}

// parseSnapshot validates and decodes a snapshot payload. The payload must
// be UTF-8 JSON, an object, and carry a "meta" array and an "nid" integer.
func parseSnapshot(raw []byte) (Document, error) {
	var doc Document
	if !utf8.Valid(raw) {
		return doc, fmt.Errorf("payload is not valid UTF-8")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return doc, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	metaRaw, ok := probe["meta"]
	if !ok {
		return doc, fmt.Errorf("payload has no meta field")
	}
	var records []Record
	if err := json.Unmarshal(metaRaw, &records); err != nil {
		return doc, fmt.Errorf("meta field: %w", err)
	}
	nidRaw, ok := probe["nid"]
	if !ok {
		return doc, fmt.Errorf("payload has no nid field")
	}
	if err := json.Unmarshal(nidRaw, &doc.NextID); err != nil {
		return doc, fmt.Errorf("nid field: %w", err)
	}

	if v, ok := probe["v"]; ok {
		_ = json.Unmarshal(v, &doc.Version)
	}
	if cr, ok := probe["cr"]; ok {
		_ = json.Unmarshal(cr, &doc.Corrupt)
	}
	if records == nil {
		records = []Record{}
	}
	doc.Records = records
	return doc, nil
}

// markDirty performs the clean-to-dirty transition. The version bumps at
// most once per dirty episode, and only for documents adopted from a prior
// snapshot; fresh documents already start at an initialized version.
func (s *Store) markDirty() {
	if s.dirty {
		return
	}
	if s.state == StateLoaded {
		s.doc.Version = bumpVersion(s.doc.Version)
	}
	s.dirty = true
}

// readContext parses PDF bytes into a pdfcpu context with relaxed
// validation, matching how third-party-edited files arrive in practice.
func readContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}
