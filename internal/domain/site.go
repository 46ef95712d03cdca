package domain

import "fmt"

const (
	MinPingInterval     = 1
	MaxPingInterval     = 3600
	DefaultPingInterval = 30
)

// ClampPingInterval forces an interval into [MinPingInterval, MaxPingInterval];
// zero or negative falls back to the default.
func ClampPingInterval(sec int) int {
	if sec <= 0 {
		return DefaultPingInterval
	}
	if sec < MinPingInterval {
		return MinPingInterval
	}
	if sec > MaxPingInterval {
		return MaxPingInterval
	}
	return sec
}

// SyncState tracks where a site sits in its persistence lifecycle.
type SyncState string

const (
	SyncUnsaved SyncState = "unsaved" // temp id, never acknowledged by the backend
	SyncPending SyncState = "pending" // local edits waiting on a debounced write
	SyncSaved   SyncState = "saved"
)

// MonitoredSite is a backend-owned entity cached locally. ID stays a
// client-generated temporary id until the first create succeeds.
type MonitoredSite struct {
	ID                  string         `json:"id"`
	URL                 string         `json:"url"`
	Name                string         `json:"name"`
	PingIntervalSeconds int            `json:"ping_interval"`
	Params              map[string]any `json:"params,omitempty"`

	Display   string    `json:"display"`
	Sync      SyncState `json:"sync"`
	LastError string    `json:"last_error,omitempty"`
}

// RefreshDisplay recomputes the human-readable summary shown in lists and
// node labels. Called after every successful local edit so presentation
// never reads stale derived fields.
func (s *MonitoredSite) RefreshDisplay() {
	name := s.Name
	if name == "" {
		name = s.URL
	}
	s.Display = fmt.Sprintf("%s (%s, every %ds)", name, s.URL, s.PingIntervalSeconds)
}

// NodeKind classifies automation-graph nodes. Only website nodes carry a
// backend entity.
type NodeKind string

const (
	NodeWebsite  NodeKind = "website"
	NodeLogic    NodeKind = "logic"
	NodeDelivery NodeKind = "delivery"
)

type AutomationNode struct {
	ID     string   `json:"id"`
	Kind   NodeKind `json:"kind"`
	Label  string   `json:"label"`
	SiteID string   `json:"site_id,omitempty"`
}
