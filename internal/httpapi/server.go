// Package httpapi serves the dashboard core to the browser UI: the site
// list and node graph (writes routed through the syncstore), and stats
// snapshots computed from the polling orchestrators. Rendering happens
// client-side; this surface only hands out JSON view models.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/flow"
	"github.com/watchboard/watchboard/internal/poll"
	"github.com/watchboard/watchboard/internal/syncstore"
)

// ViewFactory builds a detail orchestrator for one site URL. Each detail
// view owns its own cancellation scope.
type ViewFactory func() *poll.Orchestrator

type Server struct {
	Logger *zap.Logger
	Sites  *syncstore.Store
	Nodes  *flow.Store

	Overview    *poll.Orchestrator
	NewView     ViewFactory
	Defaults    poll.Query    // window / group_by / raw limit for new views
	AutoRefresh time.Duration // applied to detail views; 0 disables

	mu      sync.Mutex
	details map[string]*poll.Orchestrator // keyed by site id
}

func NewServer(l *zap.Logger, sites *syncstore.Store, nodes *flow.Store, overview *poll.Orchestrator, newView ViewFactory, defaults poll.Query, autoRefresh time.Duration) *Server {
	return &Server{
		Logger:      l,
		Sites:       sites,
		Nodes:       nodes,
		Overview:    overview,
		NewView:     newView,
		Defaults:    defaults,
		AutoRefresh: autoRefresh,
		details:     make(map[string]*poll.Orchestrator),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/sites", s.handleListSites)
	r.Post("/api/sites", s.handleCreateSite)
	r.Patch("/api/sites/{id}", s.handleEditSite)
	r.Patch("/api/sites/{id}/params", s.handlePatchParams)
	r.Delete("/api/sites/{id}", s.handleDeleteSite)
	r.Get("/api/sites/{id}/series", s.handleSiteSeries)

	r.Get("/api/nodes", s.handleListNodes)
	r.Post("/api/nodes", s.handleAddNode)
	r.Delete("/api/nodes/{id}", s.handleRemoveNode)

	r.Get("/api/overview", s.handleOverview)
	r.Get("/api/overview/series", s.handleOverviewSeries)
	r.Post("/api/refresh", s.handleRefresh)

	return r
}

// detailFor returns the per-site orchestrator, creating and starting it on
// first use.
func (s *Server) detailFor(siteID, url string) *poll.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.details[siteID]; ok {
		return o
	}
	o := s.NewView()
	q := s.Defaults
	q.URL = url
	o.SetQuery(q)
	if s.AutoRefresh > 0 {
		o.SetAutoRefresh(s.AutoRefresh)
	}
	s.details[siteID] = o
	return o
}

// dropDetail tears the per-site view down, stopping its timers.
func (s *Server) dropDetail(siteID string) {
	s.mu.Lock()
	o := s.details[siteID]
	delete(s.details, siteID)
	s.mu.Unlock()
	if o != nil {
		o.Close()
	}
}

// Close tears down every detail view.
func (s *Server) Close() {
	s.mu.Lock()
	views := make([]*poll.Orchestrator, 0, len(s.details))
	for _, o := range s.details {
		views = append(views, o)
	}
	s.details = make(map[string]*poll.Orchestrator)
	s.mu.Unlock()
	for _, o := range views {
		o.Close()
	}
}
