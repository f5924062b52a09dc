package meta

// Queries scan records in insertion order. The ns filter is optional: nil
// matches any namespace, otherwise equality on Record.NS. Returned records
// are deep copies; mutations only take effect through the Edit/Remove
// operations so dirty tracking cannot be bypassed.

// inNS reports whether a record passes the optional namespace filter.
func inNS(r Record, ns *string) bool {
	return ns == nil || r.NS == *ns
}

// ByID returns the first record with the given id passing the namespace
// filter, or false if none exists.
func (s *Store) ByID(id int, ns *string) (Record, bool) {
	for _, r := range s.doc.Records {
		if r.ID == id && inNS(r, ns) {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// FirstByName returns the first record with the given name passing the
// namespace filter, or false if none exists.
func (s *Store) FirstByName(name string, ns *string) (Record, bool) {
	for _, r := range s.doc.Records {
		if r.Name == name && inNS(r, ns) {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// All returns every record matching the optional name and namespace
// filters, preserving insertion order. Nil filters match anything.
func (s *Store) All(name, ns *string) []Record {
	var out []Record
	for _, r := range s.doc.Records {
		if (name == nil || r.Name == *name) && inNS(r, ns) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Dump returns a deep copy of the whole document, for inspection.
func (s *Store) Dump() Document {
	doc := s.doc
	doc.Records = make([]Record, len(s.doc.Records))
	for i, r := range s.doc.Records {
		doc.Records[i] = r.clone()
	}
	return doc
}
