package journal

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
}

func (f *fakePurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestJanitorRunsOnSchedule(t *testing.T) {
	p := &fakePurger{}
	j, err := NewJanitor(p, time.Hour, "@every 50ms", discardLogger())
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for p.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("purge never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	cutoff := p.cutoffs[0]
	p.mu.Unlock()
	if d := time.Until(cutoff); d > -30*time.Minute {
		t.Fatalf("cutoff %v not pushed back by retention", cutoff)
	}
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	if _, err := NewJanitor(&fakePurger{}, time.Hour, "not-a-schedule", discardLogger()); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
