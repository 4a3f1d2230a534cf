package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/godlewis/process-list/internal/record"
)

func seedRecords() []record.Record {
	return []record.Record{
		{ID: "100", Name: "nginx", Owner: "www", Ports: []string{"80", "443"}, Detail: "nginx -g daemon off"},
		{ID: "200", Name: "postgres", Owner: "db", Ports: []string{"5432"}},
		{ID: "300", Name: "sshd", Owner: "root", Ports: []string{"22"}},
	}
}

func TestRebuildMakesValidAndSearchAllPreservesOrder(t *testing.T) {
	c := New(time.Minute)
	if st := c.State(); st != StateEmpty {
		t.Fatalf("new cache state = %v, want empty", st)
	}
	if !c.Rebuild(seedRecords()) {
		t.Fatalf("rebuild reported no-op")
	}
	if !c.Valid() {
		t.Fatalf("cache should be valid after rebuild")
	}
	got := c.Search("")
	if len(got) != 3 {
		t.Fatalf("search(\"\") returned %d records, want 3", len(got))
	}
	for i, id := range []string{"100", "200", "300"} {
		if got[i].ID != id {
			t.Fatalf("position %d: got id %s, want %s", i, got[i].ID, id)
		}
	}
	if star := c.Search("*"); len(star) != 3 {
		t.Fatalf("search(\"*\") returned %d records, want 3", len(star))
	}
}

func TestSearchFieldOrderAndDedup(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild([]record.Record{
		{ID: "1", Name: "svc7070", Owner: "alice"},            // name match
		{ID: "2", Name: "worker", Owner: "user7070"},          // owner match
		{ID: "3", Name: "proxy", Owner: "bob", Ports: []string{"7070"}}, // port match
		{ID: "7070", Name: "other", Owner: "carol"},           // id match
	})
	got := c.Search("7070")
	want := []string{"7070", "1", "3", "2"} // id, then name, then port, then owner
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got id %s, want %s (full: %+v)", i, got[i].ID, id, got)
		}
	}
}

func TestSearchEmitsRecordOnce(t *testing.T) {
	c := New(time.Minute)
	// Matches id, name, port, and owner at once.
	c.Rebuild([]record.Record{
		{ID: "8080", Name: "app8080", Owner: "op8080", Ports: []string{"8080"}},
		{ID: "2", Name: "other", Owner: "x"},
	})
	got := c.Search("8080")
	if len(got) != 1 || got[0].ID != "8080" {
		t.Fatalf("expected single result, got %+v", got)
	}
}

func TestSearchNeverMatchesDetail(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild([]record.Record{{ID: "1", Name: "app", Owner: "u", Detail: "secret-flag --listen 9999"}})
	if got := c.Search("secret"); len(got) != 0 {
		t.Fatalf("detail must not be searchable, got %+v", got)
	}
	if got := c.Search("9999"); len(got) != 0 {
		t.Fatalf("detail port text must not be searchable, got %+v", got)
	}
}

func TestSearchSubstringAcrossFields(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild(seedRecords())
	if got := c.Search("ngin"); len(got) != 1 || got[0].ID != "100" {
		t.Fatalf("substring name match failed: %+v", got)
	}
	if got := c.Search("54"); len(got) != 1 || got[0].ID != "200" {
		t.Fatalf("substring port match failed: %+v", got)
	}
	if got := c.Search("ROOT"); len(got) != 1 || got[0].ID != "300" {
		t.Fatalf("case-insensitive owner match failed: %+v", got)
	}
	if got := c.Search("8*f"); len(got) != 0 {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	c := New(time.Second)
	c.now = func() time.Time { return clock }

	c.Rebuild(seedRecords())
	if !c.Valid() {
		t.Fatalf("fresh snapshot should be valid")
	}
	clock = base.Add(999 * time.Millisecond)
	if !c.Valid() {
		t.Fatalf("snapshot younger than TTL should be valid")
	}
	clock = base.Add(time.Second)
	if c.Valid() {
		t.Fatalf("snapshot at TTL age should be stale")
	}
	if st := c.State(); st != StateStale {
		t.Fatalf("state = %v, want stale", st)
	}
	// Data stays servable while stale.
	if got := c.Search(""); len(got) != 3 {
		t.Fatalf("stale snapshot should remain readable, got %d", len(got))
	}
	// The next rebuild restores validity.
	clock = base.Add(2 * time.Second)
	c.Rebuild(seedRecords())
	if !c.Valid() {
		t.Fatalf("rebuild should restore validity")
	}
	if lr := c.LastRefresh(); !lr.Equal(clock) {
		t.Fatalf("last refresh = %v, want %v", lr, clock)
	}
}

func TestRemoveRecordLeavesNoDanglingReferences(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild(seedRecords())
	before := c.LastRefresh()

	if !c.RemoveRecord("100") {
		t.Fatalf("expected removal of existing record")
	}
	if c.RemoveRecord("100") {
		t.Fatalf("second removal should report absence")
	}
	if got := c.Search("100"); len(got) != 0 {
		t.Fatalf("removed record still searchable: %+v", got)
	}
	if _, ok := c.Get("100"); ok {
		t.Fatalf("removed record still in id index")
	}
	if _, ok := c.ForPort("80"); ok {
		t.Fatalf("port index kept a dangling reference")
	}
	if rs := c.ForName("nginx"); len(rs) != 0 {
		t.Fatalf("name index kept a dangling reference: %+v", rs)
	}
	if rs := c.ForOwner("www"); len(rs) != 0 {
		t.Fatalf("owner index kept a dangling reference: %+v", rs)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	// Removal must not touch refresh bookkeeping.
	if !c.LastRefresh().Equal(before) {
		t.Fatalf("removal changed last refresh time")
	}
	if !c.Valid() {
		t.Fatalf("removal changed validity")
	}
}

func TestPortCollisionLastWriterWins(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild([]record.Record{
		{ID: "1", Name: "first", Ports: []string{"6000"}},
		{ID: "2", Name: "second", Ports: []string{"6000"}},
	})
	r, ok := c.ForPort("6000")
	if !ok || r.ID != "2" {
		t.Fatalf("port winner = %+v, want id 2", r)
	}
	// Removing the winner re-indexes from the remaining table, so the
	// earlier claimant takes the port over.
	c.RemoveRecord("2")
	r, ok = c.ForPort("6000")
	if !ok || r.ID != "1" {
		t.Fatalf("port after removal = %+v, want id 1", r)
	}
}

func TestInvalidateKeepsDataReadable(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild(seedRecords())
	c.Invalidate()
	if c.Valid() {
		t.Fatalf("invalidated cache must not be valid")
	}
	if st := c.State(); st != StateInvalid {
		t.Fatalf("state = %v, want invalid", st)
	}
	if got := c.Search("nginx"); len(got) != 1 {
		t.Fatalf("invalidated data should stay readable, got %+v", got)
	}
	// Idempotent.
	c.Invalidate()
	if st := c.State(); st != StateInvalid {
		t.Fatalf("state after second invalidate = %v", st)
	}
	// Rebuild clears the flag.
	c.Rebuild(seedRecords())
	if !c.Valid() {
		t.Fatalf("rebuild should clear invalidation")
	}
}

func TestClearResetsToEmpty(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild(seedRecords())
	c.Clear()
	if st := c.State(); st != StateEmpty {
		t.Fatalf("state = %v, want empty", st)
	}
	if got := c.Search(""); len(got) != 0 {
		t.Fatalf("cleared cache returned records: %+v", got)
	}
	if !c.LastRefresh().IsZero() {
		t.Fatalf("cleared cache kept a refresh time")
	}
}

func TestRebuildLoserIsNoOp(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild(seedRecords())
	// Simulate an in-flight rebuild holding the guard.
	c.rebuilding.Store(true)
	if c.Rebuild([]record.Record{{ID: "9", Name: "intruder"}}) {
		t.Fatalf("rebuild should lose while another is in flight")
	}
	c.rebuilding.Store(false)
	if got := c.Search(""); len(got) != 3 {
		t.Fatalf("losing rebuild mutated the snapshot: %+v", got)
	}
}

func TestConcurrentRebuildYieldsOneCoherentInput(t *testing.T) {
	c := New(time.Minute)
	inputs := make([][]record.Record, 2)
	for i := range inputs {
		rs := make([]record.Record, 50)
		for j := range rs {
			rs[j] = record.Record{
				ID:    fmt.Sprintf("%c%d", 'a'+i, j),
				Name:  fmt.Sprintf("name-%c", 'a'+i),
				Owner: fmt.Sprintf("owner-%c", 'a'+i),
				Ports: []string{fmt.Sprintf("%d", 10000+i*1000+j)},
			}
		}
		inputs[i] = rs
	}

	for iter := 0; iter < 50; iter++ {
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(in []record.Record) {
				defer wg.Done()
				<-start
				c.Rebuild(in)
			}(inputs[i])
		}
		close(start)
		wg.Wait()

		got := c.Search("")
		if len(got) != 50 {
			t.Fatalf("snapshot holds %d records, want 50 of one input", len(got))
		}
		prefix := got[0].ID[:1]
		for _, r := range got {
			if r.ID[:1] != prefix {
				t.Fatalf("snapshot interleaves inputs: %s vs %s", got[0].ID, r.ID)
			}
			// Every indexed port must resolve back to a record of the same input.
			for _, p := range r.Ports {
				pr, ok := c.ForPort(p)
				if !ok {
					t.Fatalf("port %s of record %s missing from index", p, r.ID)
				}
				if pr.ID[:1] != prefix {
					t.Fatalf("port index crosses inputs: record %s, index %s", r.ID, pr.ID)
				}
			}
		}
	}
}

func TestDuplicateIDKeepsTableAndIndexConsistent(t *testing.T) {
	c := New(time.Minute)
	c.Rebuild([]record.Record{
		{ID: "dup", Name: "one", Owner: "a"},
		{ID: "dup", Name: "two", Owner: "b"},
	})
	// The table holds both rows, the id index resolves to the later one,
	// and search still emits the id only once.
	if got := c.Search("dup"); len(got) != 1 {
		t.Fatalf("duplicate id emitted %d times", len(got))
	}
	r, ok := c.Get("dup")
	if !ok || r.Name != "two" {
		t.Fatalf("id index should keep the later record, got %+v", r)
	}
}

func TestValidityReport(t *testing.T) {
	c := New(2 * time.Second)
	v := c.Validity()
	if v.State != "empty" || v.Valid || v.Records != 0 {
		t.Fatalf("empty validity report: %+v", v)
	}
	c.Rebuild(seedRecords())
	v = c.Validity()
	if v.State != "valid" || !v.Valid || v.Records != 3 || v.TTL != "2s" {
		t.Fatalf("valid report: %+v", v)
	}
	if v.LastRefresh.IsZero() || v.Age == "" {
		t.Fatalf("report misses refresh bookkeeping: %+v", v)
	}
}
