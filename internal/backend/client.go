// Package backend is the REST client for the monitoring backend that
// collects the actual health checks. It owns the error taxonomy: callers
// see Kind-classified errors, never raw transport failures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/domain"
)

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func New(base string, log *zap.Logger) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

// flexID tolerates backends that serialize ids as numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type siteWire struct {
	ID           flexID         `json:"id"`
	URL          string         `json:"url"`
	Name         string         `json:"name"`
	PingInterval int            `json:"ping_interval"`
	Params       map[string]any `json:"params,omitempty"`
}

func (w siteWire) toDomain() domain.MonitoredSite {
	s := domain.MonitoredSite{
		ID:                  string(w.ID),
		URL:                 w.URL,
		Name:                w.Name,
		PingIntervalSeconds: domain.ClampPingInterval(w.PingInterval),
		Params:              w.Params,
		Sync:                domain.SyncSaved,
	}
	s.RefreshDisplay()
	return s
}

// SiteSpec is the writable subset of a monitored site.
type SiteSpec struct {
	URL                 string `json:"url"`
	Name                string `json:"name"`
	PingIntervalSeconds int    `json:"ping_interval"`
}

func (c *Client) ListSites(ctx context.Context) ([]domain.MonitoredSite, error) {
	var wire []siteWire
	if err := c.doJSON(ctx, http.MethodGet, "/sites", nil, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.MonitoredSite, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}

func (c *Client) CreateSite(ctx context.Context, spec SiteSpec) (domain.MonitoredSite, error) {
	spec.PingIntervalSeconds = domain.ClampPingInterval(spec.PingIntervalSeconds)
	var w siteWire
	if err := c.doJSON(ctx, http.MethodPost, "/sites", nil, spec, &w); err != nil {
		return domain.MonitoredSite{}, err
	}
	return w.toDomain(), nil
}

func (c *Client) UpdateSite(ctx context.Context, id string, spec SiteSpec) (domain.MonitoredSite, error) {
	spec.PingIntervalSeconds = domain.ClampPingInterval(spec.PingIntervalSeconds)
	var w siteWire
	if err := c.doJSON(ctx, http.MethodPut, "/sites/"+url.PathEscape(id), nil, spec, &w); err != nil {
		return domain.MonitoredSite{}, err
	}
	return w.toDomain(), nil
}

func (c *Client) DeleteSite(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sites/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) PatchSiteParams(ctx context.Context, id string, params map[string]any) (domain.MonitoredSite, error) {
	body := map[string]any{"params": params}
	var w siteWire
	if err := c.doJSON(ctx, http.MethodPatch, "/sites/"+url.PathEscape(id)+"/params", nil, body, &w); err != nil {
		return domain.MonitoredSite{}, err
	}
	return w.toDomain(), nil
}

// LogQuery selects raw check records. Since is sent as RFC3339.
type LogQuery struct {
	URL   string
	Limit int
	Since time.Time
}

func (c *Client) RawLogs(ctx context.Context, q LogQuery) ([]domain.CheckRecord, error) {
	vals := url.Values{}
	if q.URL != "" {
		vals.Set("url", q.URL)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.Since.IsZero() {
		vals.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	var records []domain.CheckRecord
	if err := c.doJSON(ctx, http.MethodGet, "/logs", vals, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AggQuery selects server-precomputed buckets at group_by granularity.
type AggQuery struct {
	Since   time.Time
	GroupBy string
	URL     string
}

type aggResponse struct {
	Summary domain.AggregatedSummary  `json:"summary"`
	Buckets []domain.AggregatedBucket `json:"buckets"`
}

func (c *Client) AggregatedLogs(ctx context.Context, q AggQuery) (domain.AggregatedSummary, []domain.AggregatedBucket, error) {
	vals := url.Values{}
	if !q.Since.IsZero() {
		vals.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.GroupBy != "" {
		vals.Set("group_by", q.GroupBy)
	}
	if q.URL != "" {
		vals.Set("url", q.URL)
	}
	var resp aggResponse
	if err := c.doJSON(ctx, http.MethodGet, "/logs/aggregated", vals, nil, &resp); err != nil {
		return domain.AggregatedSummary{}, nil, err
	}
	for i := range resp.Buckets {
		resp.Buckets[i].Sanitize()
	}
	return resp.Summary, resp.Buckets, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, body, out any) error {
	op := method + " " + path
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: err}
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindCancelled, Op: op, Err: ctx.Err()}
		}
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: resp.StatusCode}
	case resp.StatusCode/100 != 2:
		c.log.Warn("backend_non_2xx", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return nil
}
