package cache

import (
	"time"

	"github.com/godlewis/process-list/internal/record"
)

// snapshot is one immutable generation of the record table and the indices
// derived from it. Readers obtain the current generation through an atomic
// pointer and never observe it change.
type snapshot struct {
	records []record.Record
	byID    map[string]record.Record
	byName  map[string][]string // name -> ids in table order
	byOwner map[string][]string // owner -> ids in table order
	byPort  map[string]string   // port -> id, last writer wins

	refreshedAt time.Time // zero until the first successful rebuild
	invalid     bool      // set by Invalidate, cleared by Rebuild
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byID:    map[string]record.Record{},
		byName:  map[string][]string{},
		byOwner: map[string][]string{},
		byPort:  map[string]string{},
	}
}

// buildSnapshot indexes records in table order. Ids are expected to be
// unique per the source contract; should a duplicate slip through, the map
// entry of the later record wins, mirroring the port index rule.
func buildSnapshot(records []record.Record) *snapshot {
	s := &snapshot{
		records: make([]record.Record, len(records)),
		byID:    make(map[string]record.Record, len(records)),
		byName:  make(map[string][]string, len(records)),
		byOwner: make(map[string][]string, len(records)),
		byPort:  make(map[string]string),
	}
	copy(s.records, records)
	for _, r := range s.records {
		s.byID[r.ID] = r
		s.byName[r.Name] = append(s.byName[r.Name], r.ID)
		s.byOwner[r.Owner] = append(s.byOwner[r.Owner], r.ID)
		for _, p := range r.Ports {
			s.byPort[p] = r.ID
		}
	}
	return s
}

// search returns the union of matches over id, name, port, and owner, in
// that field order, each record at most once.
func (s *snapshot) search(m *record.Matcher) []record.Record {
	if m.MatchAll() {
		out := make([]record.Record, len(s.records))
		copy(out, s.records)
		return out
	}
	seen := make(map[string]struct{}, len(s.records))
	out := make([]record.Record, 0)
	emit := func(r record.Record) {
		if _, dup := seen[r.ID]; dup {
			return
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	for _, r := range s.records {
		if m.Match(r.ID) {
			emit(r)
		}
	}
	for _, r := range s.records {
		if m.Match(r.Name) {
			emit(r)
		}
	}
	for _, r := range s.records {
		for _, p := range r.Ports {
			if m.Match(p) {
				emit(r)
				break
			}
		}
	}
	for _, r := range s.records {
		if m.Match(r.Owner) {
			emit(r)
		}
	}
	return out
}
