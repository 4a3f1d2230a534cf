package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/godlewis/process-list/internal/record"
)

// DefaultTTL is the age after which a snapshot stops being valid.
const DefaultTTL = 10 * time.Second

// State is the trust level of the current snapshot.
type State int

const (
	StateEmpty   State = iota // never refreshed
	StateValid                // refreshed within TTL
	StateStale                // refreshed, TTL exceeded
	StateInvalid              // explicitly invalidated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Validity is a point-in-time report of the cache state for status
// surfaces.
type Validity struct {
	State       string    `json:"state"`
	Valid       bool      `json:"valid"`
	Records     int       `json:"records"`
	LastRefresh time.Time `json:"last_refresh"`
	Age         string    `json:"age,omitempty"`
	TTL         string    `json:"ttl"`
}

// Cache holds the current snapshot of host records and answers queries
// against it. Readers never block: the snapshot is an immutable value
// swapped through an atomic pointer. Writers are serialized by a mutex,
// and of two concurrent Rebuild calls only one proceeds.
type Cache struct {
	ttl atomic.Int64 // nanoseconds
	now func() time.Time

	mu         sync.Mutex // serializes all snapshot transitions
	rebuilding atomic.Bool
	snap       atomic.Pointer[snapshot]
}

// New returns an empty cache. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{now: time.Now}
	c.ttl.Store(int64(ttl))
	c.snap.Store(emptySnapshot())
	return c
}

// TTL returns the configured snapshot time-to-live.
func (c *Cache) TTL() time.Duration { return time.Duration(c.ttl.Load()) }

// SetTTL adjusts the time-to-live at runtime. Non-positive values are
// ignored.
func (c *Cache) SetTTL(d time.Duration) {
	if d > 0 {
		c.ttl.Store(int64(d))
	}
}

// State derives the validity state of the current snapshot.
func (c *Cache) State() State {
	s := c.snap.Load()
	switch {
	case s.invalid:
		return StateInvalid
	case s.refreshedAt.IsZero():
		return StateEmpty
	case c.now().Sub(s.refreshedAt) < c.TTL():
		return StateValid
	default:
		return StateStale
	}
}

// Valid reports whether the snapshot may be trusted: refreshed, not
// invalidated, and younger than the TTL.
func (c *Cache) Valid() bool { return c.State() == StateValid }

// LastRefresh returns when the snapshot was last rebuilt, zero if never.
func (c *Cache) LastRefresh() time.Time { return c.snap.Load().refreshedAt }

// Len returns the number of records in the current snapshot.
func (c *Cache) Len() int { return len(c.snap.Load().records) }

// Validity assembles the full state report.
func (c *Cache) Validity() Validity {
	s := c.snap.Load()
	v := Validity{
		State:       c.State().String(),
		Valid:       c.Valid(),
		Records:     len(s.records),
		LastRefresh: s.refreshedAt,
		TTL:         c.TTL().String(),
	}
	if !s.refreshedAt.IsZero() {
		v.Age = c.now().Sub(s.refreshedAt).String()
	}
	return v
}

// Rebuild replaces the record table and all three indices with a snapshot
// built from records, marks the cache valid and stamps the refresh time.
// At most one rebuild proceeds at a time: a call that finds another in
// flight is a no-op and returns false, relying on the in-flight result.
func (c *Cache) Rebuild(records []record.Record) bool {
	if !c.rebuilding.CompareAndSwap(false, true) {
		return false
	}
	defer c.rebuilding.Store(false)

	next := buildSnapshot(records)
	c.mu.Lock()
	next.refreshedAt = c.now()
	c.snap.Store(next)
	c.mu.Unlock()
	return true
}

// RemoveRecord drops the record with the given id and rebuilds the indices
// from the remaining table. Refresh time and validity are left untouched;
// a caller that changed external state triggers a real refresh itself.
// Returns whether the record was present.
func (c *Cache) RemoveRecord(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.snap.Load()
	if _, ok := cur.byID[id]; !ok {
		return false
	}
	remaining := make([]record.Record, 0, len(cur.records)-1)
	for _, r := range cur.records {
		if r.ID != id {
			remaining = append(remaining, r)
		}
	}
	next := buildSnapshot(remaining)
	next.refreshedAt = cur.refreshedAt
	next.invalid = cur.invalid
	c.snap.Store(next)
	return true
}

// Invalidate forces the state to invalid without dropping data. The
// records stay readable for callers that accept stale reads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.snap.Load()
	if cur.invalid {
		return
	}
	next := *cur // shallow copy, shared maps stay immutable
	next.invalid = true
	c.snap.Store(&next)
}

// Clear drops the record table and all indices and resets to empty.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Store(emptySnapshot())
}

// Search answers a keyword query against the current snapshot. An empty
// keyword returns all records in table order. Matches are emitted in field
// order id, name, port, owner, each record once. Never errors: any keyword
// is a literal pattern except '*'.
func (c *Cache) Search(keyword string) []record.Record {
	return c.snap.Load().search(record.NewMatcher(keyword))
}

// Get looks up a record by exact id.
func (c *Cache) Get(id string) (record.Record, bool) {
	r, ok := c.snap.Load().byID[id]
	return r, ok
}

// ForPort returns the record owning the exact port, the last writer when
// several records claimed it during rebuild.
func (c *Cache) ForPort(port string) (record.Record, bool) {
	s := c.snap.Load()
	id, ok := s.byPort[port]
	if !ok {
		return record.Record{}, false
	}
	r, ok := s.byID[id]
	return r, ok
}

// ForName returns all records with the exact name, in table order.
func (c *Cache) ForName(name string) []record.Record {
	s := c.snap.Load()
	return s.collect(s.byName[name])
}

// ForOwner returns all records with the exact owner, in table order.
func (c *Cache) ForOwner(owner string) []record.Record {
	s := c.snap.Load()
	return s.collect(s.byOwner[owner])
}

func (s *snapshot) collect(ids []string) []record.Record {
	if len(ids) == 0 {
		return nil
	}
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
