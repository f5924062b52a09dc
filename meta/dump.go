package meta

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Diagnostics: a forensic scan over every snapshot ever committed, not just
// the one Latest points at. Read-only; never mutates the store and never
// raises — failures land in the report, per candidate or as one fatal item
// when the PDF itself cannot be parsed.

// DumpOptions configures DumpAll.
type DumpOptions struct {
	// IncludeRaw adds the decoded payload text to parsed/error items.
	IncludeRaw bool
}

// DumpItem describes one candidate snapshot.
type DumpItem struct {
	Source  string         `json:"source,omitempty"` // latest or history
	TypeVal string         `json:"type_val,omitempty"`
	Status  string         `json:"status"` // parsed, skipped, error, fatal
	Reason  string         `json:"reason,omitempty"`
	ByteLen int            `json:"byte_len,omitempty"`
	Raw     string         `json:"raw,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// DumpSummary aggregates candidate outcomes.
type DumpSummary struct {
	Candidates int `json:"candidates"`
	Accepted   int `json:"accepted"`
	Parsed     int `json:"parsed"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// DumpReport is the result of a full-history scan.
type DumpReport struct {
	OK      bool        `json:"ok"`
	Items   []DumpItem  `json:"items"`
	Summary DumpSummary `json:"summary"`
}

// candidate is one snapshot reference found in the catalog.
type candidate struct {
	source string
	obj    types.Object
}

// DumpAll enumerates every candidate snapshot reachable from the Latest
// pointer and the History chain, deduplicated by object identity, and
// classifies each one. Streams without a /Type tag are accepted, matching
// the load path's tolerance for legacy snapshots.
func (s *Store) DumpAll(opts DumpOptions) *DumpReport {
	report := &DumpReport{OK: true, Items: []DumpItem{}}

	ctx, err := readContext(s.data)
	if err != nil {
		report.OK = false
		report.Summary.Errors++
		report.Items = append(report.Items, DumpItem{
			Status: "fatal",
			Error:  fmt.Sprintf("pdf read failed: %v", err),
		})
		return report
	}

	root, err := ctx.Catalog()
	if err != nil {
		report.OK = false
		report.Summary.Errors++
		report.Items = append(report.Items, DumpItem{
			Status: "fatal",
			Error:  fmt.Sprintf("catalog resolve failed: %v", err),
		})
		return report
	}

	for _, c := range collectCandidates(ctx, root) {
		report.Summary.Candidates++
		item, accepted := s.inspectCandidate(ctx, c, opts)
		if accepted {
			report.Summary.Accepted++
		}
		switch item.Status {
		case "parsed":
			report.Summary.Parsed++
		case "skipped":
			report.Summary.Skipped++
		default:
			report.Summary.Errors++
		}
		report.Items = append(report.Items, item)
	}

	return report
}

// collectCandidates gathers Latest plus every History element, oldest
// first, deduplicating indirect references by (object, generation) so a
// snapshot referenced from both sources is counted once.
func collectCandidates(ctx *model.Context, root types.Dict) []candidate {
	var out []candidate
	seen := map[[2]int]bool{}

	push := func(source string, obj types.Object) {
		if obj == nil {
			return
		}
		if key, ok := refKey(obj); ok {
			if seen[key] {
				return
			}
			seen[key] = true
		}
		out = append(out, candidate{source: source, obj: obj})
	}

	if latest, ok := root.Find(catalogKeyLatest); ok {
		push("latest", latest)
	}
	if histObj, ok := root.Find(catalogKeyHistory); ok {
		if arr, err := ctx.DereferenceArray(histObj); err == nil {
			for _, item := range arr {
				push("history", item)
			}
		}
	}
	return out
}

// refKey extracts a dedup key from an indirect reference. Direct objects
// (illegal for snapshots, but seen in damaged files) are never deduped.
func refKey(obj types.Object) ([2]int, bool) {
	switch ir := obj.(type) {
	case types.IndirectRef:
		return [2]int{int(ir.ObjectNumber), int(ir.GenerationNumber)}, true
	case *types.IndirectRef:
		return [2]int{int(ir.ObjectNumber), int(ir.GenerationNumber)}, true
	}
	return [2]int{}, false
}

// inspectCandidate classifies one candidate: skipped (foreign tag), error
// (unreadable or undecodable), or parsed (JSON object payload). The second
// return reports whether the candidate passed the ownership check.
func (s *Store) inspectCandidate(ctx *model.Context, c candidate, opts DumpOptions) (DumpItem, bool) {
	item := DumpItem{Source: c.source}

	sd, _, err := ctx.DereferenceStreamDict(c.obj)
	if err != nil || sd == nil {
		item.Status = "error"
		item.Error = fmt.Sprintf("stream read failed: %v", err)
		return item, false
	}

	if t, ok := sd.Dict.Find("Type"); ok && t != nil {
		item.TypeVal = fmt.Sprintf("%v", t)
		if _, mismatched := foreignType(sd.Dict); mismatched {
			item.Status = "skipped"
			item.Reason = "not our type"
			return item, false
		}
	}

	if err := sd.Decode(); err != nil {
		item.Status = "error"
		item.Error = fmt.Sprintf("stream decode failed: %v", err)
		return item, true
	}
	raw := sd.Content
	item.ByteLen = len(raw)

	if !utf8.Valid(raw) {
		item.Status = "error"
		item.Error = "payload is not valid UTF-8"
		return item, true
	}
	if opts.IncludeRaw {
		item.Raw = string(raw)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		item.Status = "error"
		item.Error = fmt.Sprintf("json parse failed: %v", err)
		return item, true
	}

	item.Status = "parsed"
	item.Meta = payload
	return item, true
}
