package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
)

type fakeSites struct {
	mu       sync.Mutex
	created  []backend.SiteSpec
	removed  []string
	sites    map[string]domain.MonitoredSite
	nextTemp int
}

func newFakeSites() *fakeSites {
	return &fakeSites{sites: make(map[string]domain.MonitoredSite)}
}

func (f *fakeSites) Create(spec backend.SiteSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.URL == "" {
		return "", &backend.Error{Kind: backend.KindValidation, Op: "create site"}
	}
	f.created = append(f.created, spec)
	f.nextTemp++
	id := "tmp-" + string(rune('a'+f.nextTemp))
	s := domain.MonitoredSite{ID: id, URL: spec.URL, Name: spec.Name, PingIntervalSeconds: 30}
	s.RefreshDisplay()
	f.sites[id] = s
	return id, nil
}

func (f *fakeSites) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	delete(f.sites, id)
	return nil
}

func (f *fakeSites) Get(id string) (domain.MonitoredSite, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sites[id]
	return s, ok
}

func TestAddWebsiteCreatesBackingSite(t *testing.T) {
	sites := newFakeSites()
	g := New(zap.NewNop(), sites)

	n, err := g.AddWebsite(backend.SiteSpec{URL: "https://a.example", Name: "A"})
	require.NoError(t, err)
	require.Equal(t, domain.NodeWebsite, n.Kind)
	require.NotEmpty(t, n.SiteID)
	require.Len(t, sites.created, 1)

	// the snapshot label tracks the site's derived display summary
	snap := g.Snapshot()
	require.Len(t, snap, 1)
	site, _ := sites.Get(n.SiteID)
	require.Equal(t, site.Display, snap[0].Label)
}

func TestLogicNodesCarryNoEntity(t *testing.T) {
	sites := newFakeSites()
	g := New(zap.NewNop(), sites)

	n, err := g.AddNode(domain.NodeLogic, "if status >= 500")
	require.NoError(t, err)
	require.Empty(t, n.SiteID)

	require.NoError(t, g.Remove(context.Background(), n.ID))
	require.Empty(t, sites.removed, "logic nodes never touch the backend")

	_, err = g.AddNode(domain.NodeWebsite, "wrong constructor")
	require.True(t, backend.IsValidation(err))
}

func TestRemoveWebsiteDeletesBackingSite(t *testing.T) {
	sites := newFakeSites()
	g := New(zap.NewNop(), sites)

	n, err := g.AddWebsite(backend.SiteSpec{URL: "https://a.example"})
	require.NoError(t, err)

	require.NoError(t, g.Remove(context.Background(), n.ID))
	require.Equal(t, []string{n.SiteID}, sites.removed)
	require.Empty(t, g.Snapshot())

	// removing twice is a no-op
	require.NoError(t, g.Remove(context.Background(), n.ID))
	require.Len(t, sites.removed, 1)
}

func TestRelinkSiteFollowsRekey(t *testing.T) {
	sites := newFakeSites()
	g := New(zap.NewNop(), sites)

	n, err := g.AddWebsite(backend.SiteSpec{URL: "https://a.example"})
	require.NoError(t, err)

	// simulate the syncstore adopting the server id
	sites.mu.Lock()
	site := sites.sites[n.SiteID]
	delete(sites.sites, n.SiteID)
	site.ID = "srv-1"
	sites.sites["srv-1"] = site
	sites.mu.Unlock()

	g.RelinkSite(n.SiteID, "srv-1")

	require.NoError(t, g.Remove(context.Background(), n.ID))
	require.Equal(t, []string{"srv-1"}, sites.removed, "delete must target the server id after rekey")
}
