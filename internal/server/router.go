package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/journal"
	"github.com/godlewis/process-list/internal/query"
	"github.com/godlewis/process-list/internal/refresh"
)

// Router provides embeddable HTTP handlers over the snapshot cache.
// Endpoints under {basePath}:
//
//	GET    /records?keyword=&fallback=   search (fallback defaults to true)
//	GET    /records/:id                  id point lookup
//	DELETE /records/:id                  remove a record from the snapshot
//	GET    /ports/:port                  port point lookup
//	POST   /refresh                      synchronous forced refresh
//	GET    /validity                     cache state report
//	POST   /invalidate                   mark the snapshot invalid
//	GET    /journal?limit=               recent journal entries (when wired)
//	GET    /events                       WebSocket event feed (when wired)
//	GET    /metrics                      Prometheus exposition (when wired)
//	GET    /healthz                      liveness
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	deps     Deps
	basePath string
}

// Deps carries the router's collaborators. Journal, Events, Hub and
// Metrics are optional; their endpoints are not registered when nil.
type Deps struct {
	Cache   *cache.Cache
	Coord   *refresh.Coordinator
	Query   *query.Facade
	Journal journal.Reader
	Events  *journal.Writer
	Hub     http.Handler
	Metrics http.Handler
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/api" results in /api/records, /api/refresh, ...
func NewRouter(deps Deps, basePath string) *Router {
	return &Router{deps: deps, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/records", r.handleSearch)
	group.GET("/records/:id", r.handleGet)
	group.DELETE("/records/:id", r.handleRemove)
	group.GET("/ports/:port", r.handlePort)
	group.POST("/refresh", r.handleRefresh)
	group.GET("/validity", r.handleValidity)
	group.POST("/invalidate", r.handleInvalidate)
	group.GET("/healthz", r.handleHealthz)
	if r.deps.Journal != nil {
		group.GET("/journal", r.handleJournal)
	}
	if r.deps.Hub != nil {
		group.GET("/events", gin.WrapH(r.deps.Hub))
	}
	if r.deps.Metrics != nil {
		group.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, deps Deps) (*http.Server, error) {
	r := NewRouter(deps, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type refreshResp struct {
	OK      bool `json:"ok"`
	Records int  `json:"records"`
}

func (r *Router) handleSearch(c *gin.Context) {
	keyword := c.Query("keyword")
	fallback := true
	if v := c.Query("fallback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid fallback: " + err.Error()})
			return
		}
		fallback = b
	}
	records, err := r.deps.Query.Search(c.Request.Context(), keyword, fallback)
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, records)
}

func (r *Router) handleGet(c *gin.Context) {
	id := c.Param("id")
	rec, ok := r.deps.Cache.Get(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "record not found: " + id})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleRemove(c *gin.Context) {
	id := c.Param("id")
	if !r.deps.Cache.RemoveRecord(id) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "record not found: " + id})
		return
	}
	if r.deps.Events != nil {
		r.deps.Events.Enqueue(journal.Event{Type: journal.EventRecordRemoved, RecordID: id})
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePort(c *gin.Context) {
	port := c.Param("port")
	if _, err := strconv.Atoi(port); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid port: " + port})
		return
	}
	rec, ok := r.deps.Cache.ForPort(port)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no record listening on port " + port})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleRefresh(c *gin.Context) {
	if err := r.deps.Coord.ForceRefresh(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, refreshResp{OK: true, Records: r.deps.Cache.Len()})
}

func (r *Router) handleValidity(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.deps.Cache.Validity())
}

func (r *Router) handleInvalidate(c *gin.Context) {
	r.deps.Cache.Invalidate()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleJournal(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit: " + v})
			return
		}
		limit = n
	}
	events, err := r.deps.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
