package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/metrics"
	"github.com/godlewis/process-list/internal/record"
	"github.com/godlewis/process-list/internal/source"
)

const (
	DefaultWaitBudget   = 5 * time.Second
	DefaultRecheck      = 100 * time.Millisecond
	DefaultFetchTimeout = 30 * time.Second
)

// Waiter is the coordinator surface the façade leans on while the cache is
// not yet trustworthy.
type Waiter interface {
	// RequestRefresh queues a refresh without blocking.
	RequestRefresh()
	// Completed returns a channel closed when the in-flight or next
	// refresh attempt finishes.
	Completed() <-chan struct{}
}

// Options tune a Facade. Zero values select the defaults.
type Options struct {
	WaitBudget   time.Duration
	Recheck      time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Facade answers keyword queries with the freshest data available. A valid
// cache is served directly. Otherwise, with fallback allowed, it waits a
// bounded budget for a refresh to land and finally falls back to one
// direct source fetch filtered in-process, which never touches the cache.
type Facade struct {
	cache        *cache.Cache
	src          source.Source
	waiter       Waiter
	waitBudget   time.Duration
	recheck      time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func New(c *cache.Cache, src source.Source, w Waiter, opts Options) *Facade {
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = DefaultWaitBudget
	}
	if opts.Recheck <= 0 {
		opts.Recheck = DefaultRecheck
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Facade{
		cache:        c,
		src:          src,
		waiter:       w,
		waitBudget:   opts.WaitBudget,
		recheck:      opts.Recheck,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
	}
}

// Search resolves keyword. With fallback disabled an expired, invalidated,
// or empty snapshot is served as-is: the caller accepted stale reads.
func (f *Facade) Search(ctx context.Context, keyword string, fallback bool) ([]record.Record, error) {
	if f.cache.Valid() {
		metrics.IncQuery("cache")
		return f.cache.Search(keyword), nil
	}
	if !fallback {
		metrics.IncQuery("stale")
		return f.cache.Search(keyword), nil
	}
	if f.waitValid(ctx) {
		metrics.IncQuery("wait")
		return f.cache.Search(keyword), nil
	}
	metrics.IncQuery("direct")
	return f.direct(ctx, keyword)
}

// waitValid blocks until the cache turns valid, the wait budget runs out,
// or ctx is cancelled. Refresh completions wake it immediately; the
// re-check tick covers completions that land between the validity check
// and the wait.
func (f *Facade) waitValid(ctx context.Context) bool {
	metrics.IncFallbackWait()
	deadline := time.NewTimer(f.waitBudget)
	defer deadline.Stop()
	tick := time.NewTicker(f.recheck)
	defer tick.Stop()
	for {
		completed := f.waiter.Completed()
		if f.cache.Valid() {
			return true
		}
		f.waiter.RequestRefresh()
		select {
		case <-completed:
		case <-tick.C:
		case <-deadline.C:
			return f.cache.Valid()
		case <-ctx.Done():
			return f.cache.Valid()
		}
	}
}

// direct performs the one-shot source fetch and filters it in-process.
func (f *Facade) direct(ctx context.Context, keyword string) ([]record.Record, error) {
	f.logger.Debug("cache not valid in time, falling back to direct fetch", "keyword", keyword)
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()
	records, err := f.src.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("direct fetch: %w", err)
	}
	return record.Filter(records, keyword), nil
}
