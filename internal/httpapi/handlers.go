package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
	"github.com/watchboard/watchboard/internal/filter"
	"github.com/watchboard/watchboard/internal/stats"
	"github.com/watchboard/watchboard/internal/syncstore"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	kind := "internal"
	var be *backend.Error
	if errors.As(err, &be) {
		kind = be.Kind.String()
		switch be.Kind {
		case backend.KindValidation:
			code = http.StatusBadRequest
		case backend.KindNotFound:
			code = http.StatusNotFound
		case backend.KindNetwork:
			code = http.StatusBadGateway
		}
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "kind": kind})
}

// --- sites ---

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sites.Snapshot())
}

type sitePayload struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	PingInterval int    `json:"ping_interval"`
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var p sitePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	id, err := s.Sites.Create(backend.SiteSpec{URL: p.URL, Name: p.Name, PingIntervalSeconds: p.PingInterval})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	site, _ := s.Sites.Get(id)
	s.Logger.Info("site_created", zap.String("site_id", id), zap.String("url", p.URL))
	writeJSON(w, http.StatusOK, site)
}

type editPayload struct {
	URL          *string `json:"url"`
	Name         *string `json:"name"`
	PingInterval *int    `json:"ping_interval"`
}

func (s *Server) handleEditSite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p editPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := s.Sites.ApplyEdit(id, syncstore.Patch{URL: p.URL, Name: p.Name, PingInterval: p.PingInterval}); err != nil {
		s.writeErr(w, err)
		return
	}
	site, _ := s.Sites.Get(id)
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handlePatchParams(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p struct {
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := s.Sites.SetParams(r.Context(), id, p.Params); err != nil {
		s.writeErr(w, err)
		return
	}
	site, _ := s.Sites.Get(id)
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.Sites.Remove(r.Context(), id)
	s.dropDetail(id)
	resp := map[string]any{"removed": true}
	if err != nil {
		// entity is gone locally either way; the transport failure is a
		// warning, not a blocker
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- nodes ---

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Nodes.Snapshot())
}

type nodePayload struct {
	Kind         string `json:"kind"`
	Label        string `json:"label"`
	URL          string `json:"url"`
	Name         string `json:"name"`
	PingInterval int    `json:"ping_interval"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var p nodePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	var (
		node domain.AutomationNode
		err  error
	)
	switch domain.NodeKind(p.Kind) {
	case domain.NodeWebsite:
		node, err = s.Nodes.AddWebsite(backend.SiteSpec{URL: p.URL, Name: p.Name, PingIntervalSeconds: p.PingInterval})
	case domain.NodeLogic, domain.NodeDelivery:
		node, err = s.Nodes.AddNode(domain.NodeKind(p.Kind), p.Label)
	default:
		http.Error(w, "unknown node kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.Nodes.Remove(r.Context(), id)
	resp := map[string]any{"removed": true}
	if err != nil {
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- overview & series ---

type overviewResponse struct {
	Loaded         bool                      `json:"loaded"`
	Refreshing     bool                      `json:"refreshing"`
	LastUpdated    time.Time                 `json:"last_updated"`
	Error          string                    `json:"error,omitempty"`
	Uptime         *int                      `json:"uptime"`
	LatencyAvg     *int                      `json:"latency_avg"`
	PingAvg        *int                      `json:"ping_avg"`
	MinSSLDaysLeft *int                      `json:"min_ssl_days_left"`
	DNSSuccessRate *float64                  `json:"dns_success_rate"`
	TrafficLight   domain.TrafficLightCounts `json:"traffic_light"`
	Incidents      int                       `json:"incidents"`
	Summary        domain.AggregatedSummary  `json:"summary"`
}

// recordFilter builds the conjunction of the filter query params:
// lights=red,orange  status_min / status_max  q=<substring>.
func recordFilter(r *http.Request) filter.Predicate {
	preds := []filter.Predicate{}
	if raw := r.URL.Query().Get("lights"); raw != "" {
		var set []domain.TrafficLight
		for _, l := range strings.Split(raw, ",") {
			set = append(set, domain.TrafficLight(strings.TrimSpace(l)))
		}
		preds = append(preds, filter.Lights(set...))
	}
	minRaw, maxRaw := r.URL.Query().Get("status_min"), r.URL.Query().Get("status_max")
	if minRaw != "" || maxRaw != "" {
		lo, hi := 0, 999
		if v, err := strconv.Atoi(minRaw); err == nil {
			lo = v
		}
		if v, err := strconv.Atoi(maxRaw); err == nil {
			hi = v
		}
		preds = append(preds, filter.StatusRange(lo, hi))
	}
	if q := r.URL.Query().Get("q"); q != "" {
		preds = append(preds, filter.Search(q))
	}
	return filter.All(preds...)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.Overview.Snapshot()
	records := filter.Apply(snap.Result.Records, recordFilter(r))

	writeJSON(w, http.StatusOK, overviewResponse{
		Loaded:         snap.Loaded,
		Refreshing:     snap.Refreshing,
		LastUpdated:    snap.LastUpdated,
		Error:          snap.Err,
		Uptime:         stats.Uptime(records),
		LatencyAvg:     stats.Average(records, stats.Latency),
		PingAvg:        stats.Average(records, stats.Ping),
		MinSSLDaysLeft: stats.MinSSLDaysLeft(records),
		DNSSuccessRate: stats.DNSSuccessRate(records),
		TrafficLight:   stats.TrafficLightCounts(records),
		Incidents:      stats.IncidentCount(records),
		Summary:        stats.Summarize(snap.Result.Buckets),
	})
}

func sampleFor(name string) (stats.Sample, bool) {
	switch name {
	case "latency", "":
		return stats.Latency, true
	case "ping":
		return stats.Ping, true
	case "ssl_days":
		return stats.SSLDays, true
	case "redirects":
		return stats.RedirectCount, true
	}
	return nil, false
}

func bucketFieldFor(name string) (stats.BucketField, bool) {
	switch name {
	case "latency", "":
		return stats.BucketLatency, true
	case "ping":
		return stats.BucketPing, true
	case "ssl_days":
		return stats.BucketSSLDays, true
	case "dns_rate":
		return stats.BucketDNSRate, true
	}
	return nil, false
}

type seriesResponse struct {
	Refreshing  bool                 `json:"refreshing"`
	LastUpdated time.Time            `json:"last_updated"`
	Error       string               `json:"error,omitempty"`
	Points      []domain.SeriesPoint `json:"points"`
}

func (s *Server) handleOverviewSeries(w http.ResponseWriter, r *http.Request) {
	snap := s.Overview.Snapshot()
	field := r.URL.Query().Get("field")

	var points []domain.SeriesPoint
	if r.URL.Query().Get("source") == "buckets" {
		f, ok := bucketFieldFor(field)
		if !ok {
			http.Error(w, "unknown field", http.StatusBadRequest)
			return
		}
		points = stats.AggregatedSeries(snap.Result.Buckets, f)
	} else {
		f, ok := sampleFor(field)
		if !ok {
			http.Error(w, "unknown field", http.StatusBadRequest)
			return
		}
		maxPoints := 0
		if v, err := strconv.Atoi(r.URL.Query().Get("max_points")); err == nil {
			maxPoints = v
		}
		points = stats.BucketedTimeseries(snap.Result.Records, f, maxPoints)
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Refreshing:  snap.Refreshing,
		LastUpdated: snap.LastUpdated,
		Error:       snap.Err,
		Points:      points,
	})
}

func (s *Server) handleSiteSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	site, ok := s.Sites.Get(id)
	if !ok {
		http.Error(w, "unknown site", http.StatusNotFound)
		return
	}
	o := s.detailFor(id, site.URL)

	// window/group_by overrides supersede the in-flight request for the view
	q := o.Query()
	changed := false
	if raw := r.URL.Query().Get("window"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 && d != q.Window {
			q.Window = d
			changed = true
		}
	}
	if gb := r.URL.Query().Get("group_by"); gb != "" && gb != q.GroupBy {
		q.GroupBy = gb
		changed = true
	}
	if changed {
		o.SetQuery(q)
	}

	f, ok := bucketFieldFor(r.URL.Query().Get("field"))
	if !ok {
		http.Error(w, "unknown field", http.StatusBadRequest)
		return
	}
	snap := o.Snapshot()
	writeJSON(w, http.StatusOK, seriesResponse{
		Refreshing:  snap.Refreshing,
		LastUpdated: snap.LastUpdated,
		Error:       snap.Err,
		Points:      stats.AggregatedSeries(snap.Result.Buckets, f),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var p struct {
		View string `json:"view"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if p.View == "" || p.View == "overview" {
		s.Overview.Refresh()
		writeJSON(w, http.StatusOK, map[string]string{"refreshed": "overview"})
		return
	}
	s.mu.Lock()
	o := s.details[p.View]
	s.mu.Unlock()
	if o == nil {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}
	o.Refresh()
	writeJSON(w, http.StatusOK, map[string]string{"refreshed": p.View})
}
