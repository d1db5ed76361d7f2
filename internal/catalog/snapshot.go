package catalog

import "sort"

// Key identifies one asset in a snapshot.
type Key struct {
	Category Category
	Base     string
}

// Snapshot holds exactly one Record per Key: the highest version seen.
type Snapshot struct {
	Dir string

	// Skipped lists recognized files without a version token.
	Skipped []string
	// Shadowed lists records that lost the tie-break against an earlier
	// file with the same base and version (e.g. v003.abc vs v003.fbx).
	Shadowed []Record

	order   []Category
	records map[Key]Record
}

func newSnapshot(dir string, order []Category) *Snapshot {
	return &Snapshot{
		Dir:     dir,
		order:   order,
		records: make(map[Key]Record),
	}
}

// offer keeps r if it beats the current record for its key. Equal versions
// keep the incumbent.
func (s *Snapshot) offer(r Record) {
	k := Key{Category: r.Category, Base: r.Base}
	cur, ok := s.records[k]
	switch {
	case !ok || r.Version > cur.Version:
		s.records[k] = r
	case r.Version == cur.Version:
		s.Shadowed = append(s.Shadowed, r)
	}
}

// Len returns the number of assets.
func (s *Snapshot) Len() int { return len(s.records) }

// Get returns the latest record for (cat, base).
func (s *Snapshot) Get(cat Category, base string) (Record, bool) {
	r, ok := s.records[Key{Category: cat, Base: base}]
	return r, ok
}

// Categories returns the bucket order of this snapshot.
func (s *Snapshot) Categories() []Category {
	return append([]Category(nil), s.order...)
}

// Records returns all records ordered by category bucket, then base name.
func (s *Snapshot) Records() []Record {
	rank := make(map[Category]int, len(s.order))
	for i, c := range s.order {
		rank[c] = i
	}
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank[out[i].Category], rank[out[j].Category]
		if ri != rj {
			return ri < rj
		}
		return out[i].Base < out[j].Base
	})
	return out
}

// ByCategory returns the records of one bucket ordered by base name.
func (s *Snapshot) ByCategory(cat Category) []Record {
	var out []Record
	for _, r := range s.Records() {
		if r.Category == cat {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record whose filename is name.
func (s *Snapshot) Find(name string) (Record, bool) {
	for _, r := range s.records {
		if r.Filename == name {
			return r, true
		}
	}
	return Record{}, false
}

// View is the JSON form of a snapshot: every bucket is present, possibly
// empty.
type View struct {
	Dir        string                `json:"dir"`
	Categories map[Category][]Record `json:"categories"`
	Skipped    []string              `json:"skipped,omitempty"`
	Shadowed   []Record              `json:"shadowed,omitempty"`
}

func (s *Snapshot) View() View {
	v := View{
		Dir:        s.Dir,
		Categories: make(map[Category][]Record, len(s.order)),
		Skipped:    s.Skipped,
		Shadowed:   s.Shadowed,
	}
	for _, c := range s.order {
		recs := s.ByCategory(c)
		if recs == nil {
			recs = []Record{}
		}
		v.Categories[c] = recs
	}
	return v
}
