package meta

// Mutations are the only way records change. Each successful mutation marks
// the store dirty exactly once per call; no-ops (nothing matched) return
// false without a dirty transition. Patches merge by shallow key overwrite,
// leaving unrelated content keys untouched.

// Add allocates the next id, deep-copies content, and appends a new record.
// Returns a copy of the created record.
func (s *Store) Add(name string, content map[string]any, ns string) Record {
	r := Record{
		ID:      s.doc.NextID,
		NS:      ns,
		Name:    name,
		Content: copyContent(content),
	}
	s.doc.NextID++
	s.doc.Records = append(s.doc.Records, r)
	s.markDirty()
	return r.clone()
}

// EditByName merges patch into the content of records matching name and the
// optional namespace filter. With editFirst only the first match changes,
// otherwise every match. Returns false (no dirty transition) when nothing
// matched.
func (s *Store) EditByName(name string, patch map[string]any, editFirst bool, ns *string) bool {
	edited := false
	for i := range s.doc.Records {
		r := &s.doc.Records[i]
		if r.Name != name || !inNS(*r, ns) {
			continue
		}
		applyPatch(r, patch)
		edited = true
		if editFirst {
			break
		}
	}
	if edited {
		s.markDirty()
	}
	return edited
}

// EditByID merges patch into the single record with the given id, or
// returns false if none matched.
func (s *Store) EditByID(id int, patch map[string]any, ns *string) bool {
	for i := range s.doc.Records {
		r := &s.doc.Records[i]
		if r.ID == id && inNS(*r, ns) {
			applyPatch(r, patch)
			s.markDirty()
			return true
		}
	}
	return false
}

// RemoveByName deletes the first match, or every match with removeAll.
// Survivors keep their relative order. Returns whether anything was removed.
func (s *Store) RemoveByName(name string, removeAll bool, ns *string) bool {
	removed := false
	kept := s.doc.Records[:0]
	for i, r := range s.doc.Records {
		if r.Name == name && inNS(r, ns) && (removeAll || !removed) {
			removed = true
			continue
		}
		kept = append(kept, s.doc.Records[i])
	}
	if removed {
		s.doc.Records = kept
		s.markDirty()
	}
	return removed
}

// RemoveByID deletes the first record with the given id. Returns false if
// none matched.
func (s *Store) RemoveByID(id int, ns *string) bool {
	for i, r := range s.doc.Records {
		if r.ID == id && inNS(r, ns) {
			s.doc.Records = append(s.doc.Records[:i], s.doc.Records[i+1:]...)
			s.markDirty()
			return true
		}
	}
	return false
}

// applyPatch merges patch keys into a record's content, deep-copying the
// incoming values so the caller's structures are never aliased.
func applyPatch(r *Record, patch map[string]any) {
	if r.Content == nil {
		r.Content = map[string]any{}
	}
	for k, v := range patch {
		r.Content[k] = copyValue(v)
	}
}
