package meta

import (
	"strconv"
	"strings"
)

// Record is one stored metadata entry. IDs are unique for the lifetime of
// the document and never reused; Name is not unique; NS is an opaque
// partition key owned by the caller. Content is a JSON-shaped value tree
// (nil, bool, float64, string, []any, map[string]any).
type Record struct {
	ID      int            `json:"id"`
	NS      string         `json:"ns"`
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
}

// clone returns a deep copy so callers never alias store-owned state.
func (r Record) clone() Record {
	r.Content = copyContent(r.Content)
	return r
}

// Document is the full metadata state, in its wire shape: Corrupt is 0/1 to
// match the snapshot JSON. Records are kept in insertion order; that order
// determines first-match query results.
type Document struct {
	Version string   `json:"v"`
	NextID  int      `json:"nid"`
	Corrupt int      `json:"cr"`
	Records []Record `json:"meta"`
}

// copyContent deep-copies a record content map.
func copyContent(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies a JSON-shaped value. Scalars are immutable and
// returned as-is; so is anything outside the JSON kinds.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// bumpVersion advances the trailing numeric segment of a dot-separated
// version string. Malformed inputs never fail: a string without a separator
// or with a non-numeric trailing segment gets ".0" appended instead, so a
// later bump has something to increment.
func bumpVersion(v string) string {
	segs := strings.Split(v, ".")
	if len(segs) < 2 {
		return v + ".0"
	}
	last, err := strconv.Atoi(segs[len(segs)-1])
	if err != nil {
		return v + ".0"
	}
	segs[len(segs)-1] = strconv.Itoa(last + 1)
	return strings.Join(segs, ".")
}
