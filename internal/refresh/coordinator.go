package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/metrics"
	"github.com/godlewis/process-list/internal/record"
	"github.com/godlewis/process-list/internal/source"
)

// Trigger identifies what initiated a refresh attempt.
type Trigger string

const (
	TriggerPeriodic  Trigger = "periodic"
	TriggerForced    Trigger = "forced"
	TriggerRequested Trigger = "requested"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// Result describes one finished refresh attempt.
type Result struct {
	Trigger Trigger
	Records []record.Record // nil when Err is set
	Err     error
	At      time.Time
	Took    time.Duration
}

// Options tune a Coordinator. Zero values select the defaults.
type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Coordinator drives the snapshot cache. A timer goroutine owns the
// periodic fetch-and-rebuild path; ForceRefresh runs the same sequence for
// callers that cannot wait for the next tick. Refreshes are single-flight:
// a caller that arrives while one is running joins it and shares its
// result instead of fetching again. A batch failure leaves the cache
// untouched and is never fatal to the loop.
type Coordinator struct {
	src          source.Source
	cache        *cache.Cache
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cur     *flight       // in-flight attempt, nil when idle
	gen     chan struct{} // closed when the current attempt finishes, then replaced
	subs    map[int]chan Result
	nextSub int

	kick     chan Trigger // at most one queued on-demand request
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	wg       sync.WaitGroup
}

type flight struct {
	done chan struct{}
	res  Result
}

// New builds a Coordinator over src feeding c. Start launches the timer.
func New(src source.Source, c *cache.Cache, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		src:          src,
		cache:        c,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		gen:          make(chan struct{}),
		subs:         make(map[int]chan Result),
		kick:         make(chan Trigger, 1),
		stop:         make(chan struct{}),
	}
}

// Start launches the periodic loop and queues an immediate first refresh.
// Calling Start more than once is a no-op.
func (c *Coordinator) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.RequestRefresh()
	c.wg.Add(1)
	go c.loop()
}

// Stop cancels the periodic timer. An in-flight refresh completes; ticks
// pending at stop time do not fire. Safe to call at any time and more than
// once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Coordinator) loop() {
	defer c.wg.Done()
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			select {
			case <-c.stop:
				return
			default:
			}
			c.join(context.Background(), TriggerPeriodic)
		case trig := <-c.kick:
			c.join(context.Background(), trig)
		}
	}
}

// ForceRefresh performs a fetch-and-rebuild immediately and synchronously,
// joining any refresh already in flight instead of starting a second one.
// The returned error is the batch error of the attempt, nil on success.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	return c.join(ctx, TriggerForced).Err
}

// RequestRefresh queues an on-demand refresh without waiting for it. At
// most one request is pending; extras are dropped.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.kick <- TriggerRequested:
	default:
	}
}

// Completed returns a channel closed when the refresh attempt in flight,
// or else the next one, finishes, successfully or not.
func (c *Coordinator) Completed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Subscribe registers a listener for refresh results. Sends never block
// the refresh path: a subscriber whose buffer is full misses the result.
// The returned cancel removes the subscription and closes the channel.
func (c *Coordinator) Subscribe(buf int) (<-chan Result, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Result, buf)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// join returns the result of the in-flight attempt, starting one when
// idle. Only the goroutine that starts the attempt runs the fetch; joiners
// wait for its outcome or their context.
func (c *Coordinator) join(ctx context.Context, trig Trigger) Result {
	c.mu.Lock()
	if f := c.cur; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.res
		case <-ctx.Done():
			return Result{Trigger: trig, Err: ctx.Err(), At: time.Now()}
		}
	}
	f := &flight{done: make(chan struct{})}
	c.cur = f
	c.mu.Unlock()

	f.res = c.attempt(ctx, trig)

	c.mu.Lock()
	c.cur = nil
	gen := c.gen
	c.gen = make(chan struct{})
	c.mu.Unlock()
	close(f.done)
	close(gen)

	c.broadcast(f.res)
	return f.res
}

// attempt runs one fetch-and-rebuild cycle.
func (c *Coordinator) attempt(ctx context.Context, trig Trigger) Result {
	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	records, err := c.src.FetchAll(fctx)
	cancel()

	res := Result{Trigger: trig, At: time.Now(), Took: time.Since(start)}
	if err != nil {
		res.Err = err
		c.logger.Warn("refresh failed", "trigger", trig, "took", res.Took, "error", err)
		metrics.ObserveRefresh(string(trig), "failure", res.Took)
		metrics.SetSnapshot(c.cache.Len(), int(c.cache.State()))
		return res
	}
	c.cache.Rebuild(records)
	res.Records = records
	c.logger.Debug("refresh complete", "trigger", trig, "records", len(records), "took", res.Took)
	metrics.ObserveRefresh(string(trig), "success", res.Took)
	metrics.SetLastSuccess(res.At)
	metrics.SetSnapshot(c.cache.Len(), int(c.cache.State()))
	return res
}

func (c *Coordinator) broadcast(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- res:
		default:
		}
	}
}
