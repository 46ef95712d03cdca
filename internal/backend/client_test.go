package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/domain"
)

func TestListSites_DecodesWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sites", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// one string id, one numeric id, one out-of-range interval
		_, _ = w.Write([]byte(`[
			{"id":"s1","url":"https://a.example","name":"A","ping_interval":60},
			{"id":42,"url":"https://b.example","name":"","ping_interval":999999}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	sites, err := c.ListSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)

	require.Equal(t, "s1", sites[0].ID)
	require.Equal(t, 60, sites[0].PingIntervalSeconds)
	require.Equal(t, domain.SyncSaved, sites[0].Sync)
	require.NotEmpty(t, sites[0].Display)

	require.Equal(t, "42", sites[1].ID)
	require.Equal(t, domain.MaxPingInterval, sites[1].PingIntervalSeconds)
}

func TestRawLogs_QueryParams(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "https://a.example", q.Get("url"))
		require.Equal(t, "500", q.Get("limit"))
		require.Equal(t, "2024-01-01T00:00:00Z", q.Get("since"))
		_, _ = w.Write([]byte(`[{"timestamp":"2024-01-01T00:05:00Z","trafficLight":"green","httpStatus":200,"latencyMs":12.5,"dnsResolved":1}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	records, err := c.RawLogs(context.Background(), LogQuery{URL: "https://a.example", Limit: 500, Since: since})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].HTTPStatus)
	require.Equal(t, 200, *records[0].HTTPStatus)
	require.True(t, records[0].DNSResolved.True(), "numeric 1 should be truthy")
}

func TestAggregatedLogs_SanitizesEmptyBuckets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/logs/aggregated", r.URL.Path)
		require.Equal(t, "hour", r.URL.Query().Get("group_by"))
		_, _ = w.Write([]byte(`{
			"summary": {"latencyAvg": 10, "trafficLight": {"green": 3, "orange": 0, "red": 1}},
			"buckets": [
				{"timestamp":"2024-01-01T00:00:00Z","count":4,"latencyAvg":10},
				{"timestamp":"2024-01-01T01:00:00Z","count":0,"latencyAvg":99}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	summary, buckets, err := c.AggregatedLogs(context.Background(), AggQuery{GroupBy: "hour"})
	require.NoError(t, err)
	require.NotNil(t, summary.LatencyAvg)
	require.Len(t, buckets, 2)
	require.Nil(t, buckets[1].LatencyAvg, "count=0 bucket must drop its averages")
}

func TestErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sites/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, zap.NewNop())

	err := c.DeleteSite(context.Background(), "missing")
	require.True(t, IsNotFound(err), "404 should classify as not found, got %v", err)

	_, err = c.ListSites(context.Background())
	require.Error(t, err)
	require.False(t, IsNotFound(err))
	require.False(t, IsCancelled(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ListSites(ctx)
	require.True(t, IsCancelled(err), "cancelled context should classify as cancelled, got %v", err)
}
