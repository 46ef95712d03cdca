package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
	"github.com/watchboard/watchboard/internal/flow"
	"github.com/watchboard/watchboard/internal/poll"
	"github.com/watchboard/watchboard/internal/syncstore"
)

// ---- fakes ----

type fakeBackend struct {
	mu     sync.Mutex
	nextID int
}

func (f *fakeBackend) ListSites(ctx context.Context) ([]domain.MonitoredSite, error) {
	return nil, nil
}

func (f *fakeBackend) CreateSite(ctx context.Context, spec backend.SiteSpec) (domain.MonitoredSite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := domain.MonitoredSite{ID: "srv-1", URL: spec.URL, Name: spec.Name, PingIntervalSeconds: spec.PingIntervalSeconds}
	s.RefreshDisplay()
	return s, nil
}

func (f *fakeBackend) UpdateSite(ctx context.Context, id string, spec backend.SiteSpec) (domain.MonitoredSite, error) {
	return domain.MonitoredSite{ID: id, URL: spec.URL, Name: spec.Name, PingIntervalSeconds: spec.PingIntervalSeconds}, nil
}

func (f *fakeBackend) DeleteSite(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) PatchSiteParams(ctx context.Context, id string, params map[string]any) (domain.MonitoredSite, error) {
	return domain.MonitoredSite{ID: id, Params: params}, nil
}

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func fixedFetch() poll.FetchFunc {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func(ctx context.Context, q poll.Query) (poll.Result, error) {
		return poll.Result{
			Records: []domain.CheckRecord{
				{Timestamp: base, TrafficLight: domain.LightGreen, HTTPStatus: ip(200), LatencyMS: fp(50), URL: "https://a.example"},
				{Timestamp: base.Add(time.Minute), TrafficLight: domain.LightRed, HTTPStatus: ip(500), LatencyMS: fp(90), URL: "https://a.example"},
			},
			Buckets: []domain.AggregatedBucket{
				{Timestamp: base, Count: 2, LatencyAvg: fp(70), TrafficLight: domain.TrafficLightCounts{Green: 1, Red: 1}},
			},
		}, nil
	}
}

func setup(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	log := zap.NewNop()
	sites := syncstore.New(log, &fakeBackend{}, 150*time.Millisecond)
	nodes := flow.New(log, sites)
	sites.SetRekeyHook(nodes.RelinkSite)

	overview := poll.New(log, fixedFetch())
	overview.SetQuery(poll.Query{Limit: 100, GroupBy: "hour", Window: 24 * time.Hour})
	t.Cleanup(overview.Close)

	newView := func() *poll.Orchestrator { return poll.New(log, fixedFetch()) }
	srv := NewServer(log, sites, nodes, overview, newView, poll.Query{Limit: 100, GroupBy: "hour", Window: 24 * time.Hour}, 0)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	// wait for the overview's initial load
	require.Eventually(t, func() bool { return overview.Snapshot().Loaded }, time.Second, 5*time.Millisecond)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func doReq(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ---- tests ----

func TestSiteLifecycleOverHTTP(t *testing.T) {
	_, ts := setup(t)

	// create
	resp := postJSON(t, ts.URL+"/api/sites", map[string]any{"url": "https://a.example", "name": "A", "ping_interval": 60})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created domain.MonitoredSite
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, syncstore.IsTempID(created.ID), "optimistic create returns the temp id")
	require.Equal(t, domain.SyncUnsaved, created.Sync)

	// edit before the server id lands
	resp2 := doReq(t, http.MethodPatch, ts.URL+"/api/sites/"+created.ID, map[string]any{"name": "renamed"})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var edited domain.MonitoredSite
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&edited))
	require.Equal(t, "renamed", edited.Name)

	// list reflects local state immediately
	resp3, err := http.Get(ts.URL + "/api/sites")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var list []domain.MonitoredSite
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&list))
	require.Len(t, list, 1)

	// delete always reports removed
	resp4 := doReq(t, http.MethodDelete, ts.URL+"/api/sites/"+created.ID, nil)
	defer resp4.Body.Close()
	var del map[string]any
	require.NoError(t, json.NewDecoder(resp4.Body).Decode(&del))
	require.Equal(t, true, del["removed"])
}

func TestCreateSiteValidation(t *testing.T) {
	_, ts := setup(t)
	resp := postJSON(t, ts.URL+"/api/sites", map[string]any{"url": ""})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "validation", body["kind"])
}

func TestOverviewComputesStats(t *testing.T) {
	_, ts := setup(t)

	resp, err := http.Get(ts.URL + "/api/overview")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ov overviewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ov))

	require.True(t, ov.Loaded)
	require.NotNil(t, ov.Uptime)
	require.Equal(t, 50, *ov.Uptime)
	require.NotNil(t, ov.LatencyAvg)
	require.Equal(t, 70, *ov.LatencyAvg)
	require.Equal(t, 1, ov.Incidents)
	require.Equal(t, domain.TrafficLightCounts{Green: 1, Red: 1}, ov.TrafficLight)
	require.NotNil(t, ov.Summary.LatencyAvg)
	require.Equal(t, float64(70), *ov.Summary.LatencyAvg)
}

func TestOverviewFilters(t *testing.T) {
	_, ts := setup(t)

	resp, err := http.Get(ts.URL + "/api/overview?lights=red")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ov overviewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ov))

	require.Equal(t, domain.TrafficLightCounts{Red: 1}, ov.TrafficLight)
	require.NotNil(t, ov.Uptime)
	require.Equal(t, 0, *ov.Uptime, "only the 500 record passes the filter")
}

func TestOverviewSeries(t *testing.T) {
	_, ts := setup(t)

	resp, err := http.Get(ts.URL + "/api/overview/series?field=latency&max_points=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sr seriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	require.Len(t, sr.Points, 1, "max_points bounds the series")
	require.Equal(t, float64(70), sr.Points[0].Value)

	bad, err := http.Get(ts.URL + "/api/overview/series?field=nope")
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestNodeGraphOverHTTP(t *testing.T) {
	srv, ts := setup(t)

	resp := postJSON(t, ts.URL+"/api/nodes", map[string]any{"kind": "website", "url": "https://a.example"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var node domain.AutomationNode
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&node))
	require.Equal(t, domain.NodeWebsite, node.Kind)
	require.NotEmpty(t, node.SiteID)

	// the backing site exists in the syncstore
	_, ok := srv.Sites.Get(node.SiteID)
	require.True(t, ok)

	resp2 := doReq(t, http.MethodDelete, ts.URL+"/api/nodes/"+node.ID, nil)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	_, ok = srv.Sites.Get(node.SiteID)
	require.False(t, ok, "removing the node removes the backing site")
}

func TestRefreshUnknownView(t *testing.T) {
	_, ts := setup(t)
	resp := postJSON(t, ts.URL+"/api/refresh", map[string]any{"view": "nope"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSiteSeriesSpinsUpDetailView(t *testing.T) {
	srv, ts := setup(t)

	resp := postJSON(t, ts.URL+"/api/sites", map[string]any{"url": "https://a.example"})
	var created domain.MonitoredSite
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	// wait for the debounced create to adopt the server id
	var siteID string
	require.Eventually(t, func() bool {
		sites := srv.Sites.Snapshot()
		if len(sites) == 1 && sites[0].Sync == domain.SyncSaved {
			siteID = sites[0].ID
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	var sr seriesResponse
	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/api/sites/" + siteID + "/series?field=latency")
		if err != nil {
			return false
		}
		defer r.Body.Close()
		if r.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
			return false
		}
		return len(sr.Points) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, float64(70), sr.Points[0].Value)

	// manual refresh of the detail view now resolves
	resp2 := postJSON(t, ts.URL+"/api/refresh", map[string]any{"view": siteID})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}
