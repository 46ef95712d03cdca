// Package flow keeps the automation-graph node list. Rendering and layout
// live in the browser; what matters here is the persistence coupling:
// website nodes wrap a monitored site owned by the syncstore, so creating or
// deleting such a node creates or deletes its backing entity.
package flow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
)

// Sites is the slice of the syncstore a node graph needs.
type Sites interface {
	Create(spec backend.SiteSpec) (string, error)
	Remove(ctx context.Context, id string) error
	Get(id string) (domain.MonitoredSite, bool)
}

type Store struct {
	log   *zap.Logger
	sites Sites

	mu      sync.Mutex
	nodes   map[string]*domain.AutomationNode
	order   []string
	subs    map[int]chan struct{}
	nextSub int
}

func New(log *zap.Logger, sites Sites) *Store {
	return &Store{
		log:   log,
		sites: sites,
		nodes: make(map[string]*domain.AutomationNode),
		subs:  make(map[int]chan struct{}),
	}
}

// AddWebsite creates a website node together with its backing site. The
// site id recorded on the node is the temporary one; resolve through the
// syncstore to see the server id after the create lands.
func (s *Store) AddWebsite(spec backend.SiteSpec) (domain.AutomationNode, error) {
	siteID, err := s.sites.Create(spec)
	if err != nil {
		return domain.AutomationNode{}, err
	}
	n := &domain.AutomationNode{
		ID:     uuid.NewString(),
		Kind:   domain.NodeWebsite,
		Label:  spec.URL,
		SiteID: siteID,
	}
	if spec.Name != "" {
		n.Label = spec.Name
	}
	s.insert(n)
	return *n, nil
}

// AddNode creates a logic or delivery node; these carry no backend entity.
func (s *Store) AddNode(kind domain.NodeKind, label string) (domain.AutomationNode, error) {
	if kind == domain.NodeWebsite {
		return domain.AutomationNode{}, &backend.Error{Kind: backend.KindValidation, Op: "add node"}
	}
	n := &domain.AutomationNode{ID: uuid.NewString(), Kind: kind, Label: label}
	s.insert(n)
	return *n, nil
}

// Remove drops the node and, for website nodes, deletes the backing site
// (idempotently; a vanished backend record is fine). The node always leaves
// the graph.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	siteID := n.SiteID
	delete(s.nodes, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	if siteID == "" {
		return nil
	}
	return s.sites.Remove(ctx, siteID)
}

func (s *Store) SetLabel(id, label string) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return &backend.Error{Kind: backend.KindNotFound, Op: "label node"}
	}
	n.Label = label
	s.mu.Unlock()
	s.notify()
	return nil
}

// Snapshot returns node copies in insertion order. Website nodes whose site
// has been re-keyed resolve their label from the site's display summary.
func (s *Store) Snapshot() []domain.AutomationNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AutomationNode, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		if n == nil {
			continue
		}
		cp := *n
		if cp.SiteID != "" {
			if site, ok := s.sites.Get(cp.SiteID); ok && site.Display != "" {
				cp.Label = site.Display
			}
		}
		out = append(out, cp)
	}
	return out
}

// RelinkSite updates a website node after its site moved from a temporary
// to a server-assigned id.
func (s *Store) RelinkSite(old, next string) {
	s.mu.Lock()
	for _, n := range s.nodes {
		if n.SiteID == old {
			n.SiteID = next
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) insert(n *domain.AutomationNode) {
	s.mu.Lock()
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.mu.Lock()
	chans := make([]chan struct{}, 0, len(s.subs))
	for _, ch := range s.subs {
		chans = append(chans, ch)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
