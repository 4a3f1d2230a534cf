package proclist

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/godlewis/process-list/internal/cache"
	cfg "github.com/godlewis/process-list/internal/config"
	"github.com/godlewis/process-list/internal/metrics"
	"github.com/godlewis/process-list/internal/query"
	"github.com/godlewis/process-list/internal/record"
	"github.com/godlewis/process-list/internal/refresh"
	iapi "github.com/godlewis/process-list/internal/server"
	"github.com/godlewis/process-list/internal/source"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = record.Record

type Validity = cache.Validity

type Source = source.Source

type SourceFunc = source.Func

type RefreshResult = refresh.Result

type FileConfig = cfg.Config

// Config tunes a Service. Zero values select the documented defaults; a
// nil Source selects the live system source.
type Config struct {
	TTL             time.Duration
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	FallbackWait    time.Duration
	FallbackPoll    time.Duration
	Source          Source
	Logger          *slog.Logger
}

// Service is a thin facade over the snapshot cache, its refresh
// coordinator and the query path. It provides a stable public API for
// embedding.
type Service struct {
	cache *cache.Cache
	coord *refresh.Coordinator
	query *query.Facade
}

func New(config Config) *Service {
	if config.Source == nil {
		config.Source = source.NewSystem()
	}

	c := cache.New(config.TTL)
	coord := refresh.New(config.Source, c, refresh.Options{
		Interval:     config.RefreshInterval,
		FetchTimeout: config.FetchTimeout,
		Logger:       config.Logger,
	})
	q := query.New(c, config.Source, coord, query.Options{
		WaitBudget:   config.FallbackWait,
		Recheck:      config.FallbackPoll,
		FetchTimeout: config.FetchTimeout,
		Logger:       config.Logger,
	})
	return &Service{cache: c, coord: coord, query: q}
}

// Start launches the periodic refresh loop.
func (s *Service) Start() { s.coord.Start() }

// Stop halts the refresh loop and waits for an in-flight attempt to
// finish. The cached snapshot stays queryable.
func (s *Service) Stop() { s.coord.Stop() }

func (s *Service) Search(ctx context.Context, keyword string, fallback bool) ([]Record, error) {
	return s.query.Search(ctx, keyword, fallback)
}

func (s *Service) ForceRefresh(ctx context.Context) error { return s.coord.ForceRefresh(ctx) }
func (s *Service) RequestRefresh()                        { s.coord.RequestRefresh() }

// Subscribe delivers every refresh outcome to the returned channel until
// the cancel func is called. Slow subscribers miss results instead of
// stalling the refresh loop.
func (s *Service) Subscribe(buf int) (<-chan RefreshResult, func()) { return s.coord.Subscribe(buf) }

func (s *Service) Get(id string) (Record, bool)         { return s.cache.Get(id) }
func (s *Service) PortOwner(port string) (Record, bool) { return s.cache.ForPort(port) }
func (s *Service) RemoveRecord(id string) bool          { return s.cache.RemoveRecord(id) }
func (s *Service) Invalidate()                          { s.cache.Invalidate() }
func (s *Service) Clear()                               { s.cache.Clear() }
func (s *Service) Valid() bool                          { return s.cache.Valid() }
func (s *Service) Validity() Validity                   { return s.cache.Validity() }
func (s *Service) Len() int                             { return s.cache.Len() }
func (s *Service) SetTTL(d time.Duration)               { s.cache.SetTTL(d) }

func LoadConfig(path string) (FileConfig, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the query API backed by the given service.
func NewHTTPServer(addr, basePath string, s *Service) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, iapi.Deps{Cache: s.cache, Coord: s.coord, Query: s.query})
}

// NewHTTPHandler returns the API router for mounting into an existing
// server or web framework.
func NewHTTPHandler(basePath string, s *Service) http.Handler {
	return iapi.NewRouter(iapi.Deps{Cache: s.cache, Coord: s.coord, Query: s.query}, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
