package meta

import (
	"reflect"
	"testing"
)

func mustOpen(t *testing.T, data []byte) *Store {
	t.Helper()
	s, err := Open(data, Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestOpen_NoMetadata(t *testing.T) {
	// WHAT: A PDF without metadata yields a fresh, clean document.
	// WHY: "No metadata yet" is legitimate and must not look like corruption.
	s := mustOpen(t, buildTestPDF("plain document"))

	if s.State() != StateFresh {
		t.Fatalf("state = %v, want %v", s.State(), StateFresh)
	}
	if s.Corrupt() {
		t.Error("fresh document must not be corrupt-flagged")
	}
	if s.Version() != "1.0.0" {
		t.Errorf("version = %q, want %q", s.Version(), "1.0.0")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
	if s.Dirty() {
		t.Error("fresh document must start clean")
	}
}

func TestOpen_GarbageBytes(t *testing.T) {
	// WHAT: Unparseable host bytes yield a fresh corrupt document, no error.
	// WHY: Load prioritizes availability; it never fails to the caller.
	s := mustOpen(t, []byte("this is not a pdf"))

	if s.State() != StateFreshCorrupt {
		t.Fatalf("state = %v, want %v", s.State(), StateFreshCorrupt)
	}
	if !s.Corrupt() {
		t.Error("expected corruption flag")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestOpen_Base64(t *testing.T) {
	raw := buildTestPDF("b64 host")
	s, err := Open(raw, Config{})
	if err != nil {
		t.Fatal(err)
	}
	s.Add("k", map[string]any{"v": true}, "")
	encoded, err := s.PDFBase64()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}

	s2, err := Open([]byte(encoded), Config{Base64: true})
	if err != nil {
		t.Fatalf("open base64: %v", err)
	}
	if s2.State() != StateLoaded {
		t.Fatalf("state = %v, want %v", s2.State(), StateLoaded)
	}
	if _, ok := s2.FirstByName("k", nil); !ok {
		t.Error("record lost through base64 round trip")
	}

	if _, err := Open([]byte("!!not base64!!"), Config{Base64: true}); err == nil {
		t.Error("expected error for invalid base64 input")
	}
}

func TestAdd_ConcreteScenario(t *testing.T) {
	// WHAT: Add("sig", {"x":1}) on an empty fresh store returns
	// {id:0, ns:"", name:"sig", content:{"x":1}}; the record survives a
	// flush/reload and is found by FirstByName.
	s := mustOpen(t, buildTestPDF("host"))

	rec := s.Add("sig", map[string]any{"x": 1}, "")
	if rec.ID != 0 || rec.NS != "" || rec.Name != "sig" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !s.Dirty() {
		t.Fatal("add must mark dirty")
	}

	out, err := s.PDF()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}

	s2 := mustOpen(t, out)
	if s2.State() != StateLoaded {
		t.Fatalf("state = %v, want %v", s2.State(), StateLoaded)
	}
	got, ok := s2.FirstByName("sig", nil)
	if !ok {
		t.Fatal("record not found after reload")
	}
	want := Record{ID: 0, NS: "", Name: "sig", Content: map[string]any{"x": float64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAdd_IDMonotonicity(t *testing.T) {
	// WHAT: Sequential adds produce ids 0..N-1; removals never free an id.
	// WHY: IDs are unique for the document's lifetime, never reused.
	s := mustOpen(t, buildTestPDF("host"))

	for i := 0; i < 5; i++ {
		rec := s.Add("r", nil, "")
		if rec.ID != i {
			t.Fatalf("add %d: id = %d", i, rec.ID)
		}
	}
	if !s.RemoveByID(4, nil) || !s.RemoveByID(2, nil) {
		t.Fatal("remove failed")
	}
	if rec := s.Add("r", nil, ""); rec.ID != 5 {
		t.Errorf("id after removals = %d, want 5", rec.ID)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("x", map[string]any{"from": "a"}, "a")
	s.Add("x", map[string]any{"from": "b"}, "b")

	got := s.All(String("x"), String("a"))
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].NS != "a" || got[0].Content["from"] != "a" {
		t.Errorf("wrong record: %+v", got[0])
	}

	// Nil namespace filter matches everything.
	if all := s.All(String("x"), nil); len(all) != 2 {
		t.Errorf("nil ns filter: got %d, want 2", len(all))
	}
}

func TestVersionBump_OncePerEpisode(t *testing.T) {
	// WHAT: Three mutations in one episode bump "1.0.0" to "1.0.1" exactly
	// once; the next episode yields "1.0.2".
	// WHY: The version counts editing episodes, not individual mutations.
	base := buildTestPDF("host")
	s := mustOpen(t, base)
	s.Add("seed", nil, "")
	flushed, err := s.PDF()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}

	s2 := mustOpen(t, flushed)
	if s2.Version() != "1.0.0" {
		t.Fatalf("loaded version = %q, want %q", s2.Version(), "1.0.0")
	}
	s2.Add("a", nil, "")
	s2.Add("b", nil, "")
	s2.EditByName("a", map[string]any{"k": 1}, true, nil)
	if s2.Version() != "1.0.1" {
		t.Fatalf("after 3 mutations version = %q, want %q", s2.Version(), "1.0.1")
	}
	if _, err := s2.PDF(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	s2.RemoveByName("b", false, nil)
	if s2.Version() != "1.0.2" {
		t.Errorf("second episode version = %q, want %q", s2.Version(), "1.0.2")
	}
}

func TestVersionBump_FreshDocumentUnbumped(t *testing.T) {
	// WHAT: A freshly created document keeps its initialized version on the
	// first write.
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("a", nil, "")
	if s.Version() != "1.0.0" {
		t.Errorf("version = %q, want %q", s.Version(), "1.0.0")
	}
}

func TestBumpVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1.0.0", "1.0.1"},
		{"1.0.9", "1.0.10"},
		{"2.7", "2.8"},
		{"weird", "weird.0"},
		{"1.x", "1.x.0"},
		{"", ".0"},
	}
	for _, tt := range tests {
		if got := bumpVersion(tt.in); got != tt.want {
			t.Errorf("bumpVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContent_DeepCopied(t *testing.T) {
	// WHAT: Caller-side mutation of content maps, before or after a query,
	// never reaches store-owned state.
	// WHY: Untracked external mutation would bypass dirty tracking.
	s := mustOpen(t, buildTestPDF("host"))

	content := map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{1, 2}}
	s.Add("r", content, "")
	content["nested"].(map[string]any)["k"] = "changed"

	got, _ := s.FirstByName("r", nil)
	if got.Content["nested"].(map[string]any)["k"] != "v" {
		t.Error("caller mutation leaked into the store")
	}

	got.Content["nested"].(map[string]any)["k"] = "also changed"
	again, _ := s.FirstByName("r", nil)
	if again.Content["nested"].(map[string]any)["k"] != "v" {
		t.Error("query-result mutation leaked into the store")
	}
}

func TestEdit_MergeSemantics(t *testing.T) {
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("r", map[string]any{"keep": "old", "patch": "old"}, "")

	if !s.EditByName("r", map[string]any{"patch": "new", "added": true}, true, nil) {
		t.Fatal("edit reported no match")
	}
	got, _ := s.FirstByName("r", nil)
	if got.Content["keep"] != "old" {
		t.Error("merge destroyed an unrelated key")
	}
	if got.Content["patch"] != "new" || got.Content["added"] != true {
		t.Errorf("merge not applied: %+v", got.Content)
	}
}

func TestEdit_FirstVersusAll(t *testing.T) {
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("r", map[string]any{"n": 0}, "")
	s.Add("r", map[string]any{"n": 0}, "")

	s.EditByName("r", map[string]any{"n": 1}, true, nil)
	recs := s.All(String("r"), nil)
	if recs[0].Content["n"] != 1 || recs[1].Content["n"] != 0 {
		t.Errorf("editFirst touched the wrong records: %+v", recs)
	}

	s.EditByName("r", map[string]any{"n": 2}, false, nil)
	recs = s.All(String("r"), nil)
	if recs[0].Content["n"] != 2 || recs[1].Content["n"] != 2 {
		t.Errorf("edit-all missed a record: %+v", recs)
	}
}

func TestMutation_NoOpStaysClean(t *testing.T) {
	// WHAT: Mutations that match nothing return false and do not dirty the
	// store or bump the version.
	base := buildTestPDF("host")
	s := mustOpen(t, base)
	s.Add("seed", nil, "")
	flushed, _ := s.PDF()

	s2 := mustOpen(t, flushed)
	if s2.EditByName("missing", map[string]any{"k": 1}, true, nil) {
		t.Error("edit of missing name returned true")
	}
	if s2.EditByID(99, map[string]any{"k": 1}, nil) {
		t.Error("edit of missing id returned true")
	}
	if s2.RemoveByName("missing", true, nil) {
		t.Error("remove of missing name returned true")
	}
	if s2.RemoveByID(99, nil) {
		t.Error("remove of missing id returned true")
	}
	if s2.Dirty() {
		t.Error("no-op mutations dirtied the store")
	}
	if s2.Version() != "1.0.0" {
		t.Errorf("version = %q after no-ops, want %q", s2.Version(), "1.0.0")
	}
}

func TestRemove_OrderPreserved(t *testing.T) {
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("a", nil, "")
	s.Add("b", nil, "")
	s.Add("a", nil, "")
	s.Add("c", nil, "")

	if !s.RemoveByName("a", false, nil) {
		t.Fatal("remove first failed")
	}
	var names []string
	var ids []int
	for _, r := range s.All(nil, nil) {
		names = append(names, r.Name)
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(names, []string{"b", "a", "c"}) {
		t.Errorf("names = %v", names)
	}
	if !reflect.DeepEqual(ids, []int{1, 2, 3}) {
		t.Errorf("ids = %v", ids)
	}

	if !s.RemoveByName("a", true, nil) {
		t.Fatal("remove all failed")
	}
	if got := s.All(String("a"), nil); len(got) != 0 {
		t.Errorf("remove-all left %d records", len(got))
	}
}

func TestNamespaceFilteredMutations(t *testing.T) {
	s := mustOpen(t, buildTestPDF("host"))
	s.Add("x", nil, "a")
	s.Add("x", nil, "b")

	if s.RemoveByName("x", true, String("c")) {
		t.Error("remove in empty namespace returned true")
	}
	if !s.RemoveByName("x", true, String("a")) {
		t.Error("remove in namespace a failed")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if rec, _ := s.FirstByName("x", nil); rec.NS != "b" {
		t.Errorf("survivor ns = %q, want %q", rec.NS, "b")
	}
}
