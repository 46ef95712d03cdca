// Package syncstore is the authoritative client-side cache of backend-owned
// monitored sites. Edits apply locally with zero latency and persist through
// a per-entity debounce window, so rapid edits coalesce into one write. The
// local list is the source of truth for the UI: failed writes surface an
// error on the entity but never roll local state back.
package syncstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
)

// DefaultDebounce is the delay after the last edit before a persistence
// attempt is made.
const DefaultDebounce = 500 * time.Millisecond

const tempPrefix = "tmp-"

// NewTempID returns a client-generated placeholder id for an entity the
// backend has not acknowledged yet.
func NewTempID() string { return tempPrefix + uuid.NewString() }

func IsTempID(id string) bool { return strings.HasPrefix(id, tempPrefix) }

// Backend is the slice of the REST client the store needs.
type Backend interface {
	ListSites(ctx context.Context) ([]domain.MonitoredSite, error)
	CreateSite(ctx context.Context, spec backend.SiteSpec) (domain.MonitoredSite, error)
	UpdateSite(ctx context.Context, id string, spec backend.SiteSpec) (domain.MonitoredSite, error)
	DeleteSite(ctx context.Context, id string) error
	PatchSiteParams(ctx context.Context, id string, params map[string]any) (domain.MonitoredSite, error)
}

// Patch is a partial edit; nil fields are left untouched.
type Patch struct {
	URL          *string
	Name         *string
	PingInterval *int
}

type Store struct {
	log      *zap.Logger
	api      Backend
	debounce time.Duration

	mu       sync.Mutex
	sites    map[string]*domain.MonitoredSite
	order    []string
	timers   map[string]*time.Timer
	inflight map[string]bool
	rekey    func(old, next string)
	subs     map[int]chan struct{}
	nextSub  int
}

func New(log *zap.Logger, api Backend, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Store{
		log:      log,
		api:      api,
		debounce: debounce,
		sites:    make(map[string]*domain.MonitoredSite),
		timers:   make(map[string]*time.Timer),
		inflight: make(map[string]bool),
		subs:     make(map[int]chan struct{}),
	}
}

// SetRekeyHook registers fn to run whenever a temporary id is replaced by a
// server-assigned one, so dependents (the node graph) can follow the link.
func (s *Store) SetRekeyHook(fn func(old, next string)) {
	s.mu.Lock()
	s.rekey = fn
	s.mu.Unlock()
}

// Load replaces the whole local set from the backend's current listing and
// marks the store clean: pending debounce timers are dropped.
func (s *Store) Load(ctx context.Context) error {
	sites, err := s.api.ListSites(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.sites = make(map[string]*domain.MonitoredSite, len(sites))
	s.order = s.order[:0]
	for i := range sites {
		site := sites[i]
		s.sites[site.ID] = &site
		s.order = append(s.order, site.ID)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Create inserts an optimistic local record under a temporary id and
// schedules its first persistence attempt. The returned id is replaced by
// the server id once the create succeeds.
func (s *Store) Create(spec backend.SiteSpec) (string, error) {
	if strings.TrimSpace(spec.URL) == "" {
		return "", &backend.Error{Kind: backend.KindValidation, Op: "create site", Err: errors.New("url is required")}
	}
	site := &domain.MonitoredSite{
		ID:                  NewTempID(),
		URL:                 spec.URL,
		Name:                spec.Name,
		PingIntervalSeconds: domain.ClampPingInterval(spec.PingIntervalSeconds),
		Sync:                domain.SyncUnsaved,
	}
	site.RefreshDisplay()

	s.mu.Lock()
	s.sites[site.ID] = site
	s.order = append(s.order, site.ID)
	s.scheduleLocked(site.ID)
	s.mu.Unlock()
	s.notify()
	return site.ID, nil
}

// ApplyEdit mutates the entity immediately and re-arms its debounce timer.
// Only the state at the moment the timer fires is ever sent.
func (s *Store) ApplyEdit(id string, p Patch) error {
	s.mu.Lock()
	site, ok := s.sites[id]
	if !ok {
		s.mu.Unlock()
		return &backend.Error{Kind: backend.KindNotFound, Op: "edit site"}
	}
	if p.URL != nil {
		site.URL = *p.URL
	}
	if p.Name != nil {
		site.Name = *p.Name
	}
	if p.PingInterval != nil {
		site.PingIntervalSeconds = domain.ClampPingInterval(*p.PingInterval)
	}
	site.RefreshDisplay()
	if site.Sync == domain.SyncSaved {
		site.Sync = domain.SyncPending
	}
	s.scheduleLocked(id)
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetParams replaces the opaque params map. For saved entities the patch
// goes out immediately (params are saved explicitly, not per keystroke);
// unsaved entities keep it local until the create lands.
func (s *Store) SetParams(ctx context.Context, id string, params map[string]any) error {
	s.mu.Lock()
	site, ok := s.sites[id]
	if !ok {
		s.mu.Unlock()
		return &backend.Error{Kind: backend.KindNotFound, Op: "patch params"}
	}
	site.Params = params
	temp := IsTempID(id)
	s.mu.Unlock()
	s.notify()
	if temp {
		return nil
	}
	if _, err := s.api.PatchSiteParams(ctx, id, params); err != nil && !backend.IsCancelled(err) {
		s.log.Warn("site_params_patch_failed", zap.String("site_id", id), zap.Error(err))
		return err
	}
	return nil
}

// Remove deletes the entity. Temporary entities vanish locally; persisted
// ones get a backend DELETE where "not found" counts as success (idempotent
// delete). Local removal happens regardless of the network outcome; a
// genuine transport error is returned but the entity is gone from the list.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sites[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if t := s.timers[id]; t != nil {
		t.Stop()
		delete(s.timers, id)
	}
	s.removeLocked(id)
	temp := IsTempID(id)
	s.mu.Unlock()
	s.notify()

	if temp {
		return nil
	}
	err := s.api.DeleteSite(ctx, id)
	if err == nil || backend.IsNotFound(err) || backend.IsCancelled(err) {
		return nil
	}
	s.log.Warn("site_delete_failed", zap.String("site_id", id), zap.Error(err))
	return err
}

// Get returns a copy of one entity.
func (s *Store) Get(id string) (domain.MonitoredSite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return domain.MonitoredSite{}, false
	}
	return *site, true
}

// Snapshot returns copies of all entities in insertion order.
func (s *Store) Snapshot() []domain.MonitoredSite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MonitoredSite, 0, len(s.order))
	for _, id := range s.order {
		if site := s.sites[id]; site != nil {
			out = append(out, *site)
		}
	}
	return out
}

// Flush fires a pending debounce for id right now. Used on shutdown so the
// last edit is not lost to the window.
func (s *Store) Flush(id string) {
	s.mu.Lock()
	t := s.timers[id]
	if t == nil {
		s.mu.Unlock()
		return
	}
	t.Stop()
	delete(s.timers, id)
	s.mu.Unlock()
	s.fire(id)
}

// FlushAll fires every pending debounce.
func (s *Store) FlushAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Flush(id)
	}
}

// Subscribe returns a change-notification channel and an unsubscribe func.
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

// scheduleLocked re-arms the debounce timer for id. Caller holds s.mu.
func (s *Store) scheduleLocked(id string) {
	if t := s.timers[id]; t != nil {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(s.debounce, func() { s.fire(id) })
}

func (s *Store) removeLocked(id string) {
	delete(s.sites, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// fire runs one debounced persistence attempt. At most one write per entity
// is in flight from this path; a timer firing mid-write re-arms for a full
// window so the follow-up carries the final accumulated state.
func (s *Store) fire(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	if s.inflight[id] {
		s.scheduleLocked(id)
		s.mu.Unlock()
		return
	}
	site, ok := s.sites[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	snap := *site
	s.inflight[id] = true
	s.mu.Unlock()

	s.persist(snap)
}

// persist decides create vs. update by the temporary-id marker and applies
// the outcome. Transient failures are surfaced on the entity and retried
// only by the next edit's debounce.
func (s *Store) persist(snap domain.MonitoredSite) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	spec := backend.SiteSpec{
		URL:                 snap.URL,
		Name:                snap.Name,
		PingIntervalSeconds: snap.PingIntervalSeconds,
	}
	var (
		saved domain.MonitoredSite
		err   error
	)
	if IsTempID(snap.ID) {
		saved, err = s.api.CreateSite(ctx, spec)
	} else {
		saved, err = s.api.UpdateSite(ctx, snap.ID, spec)
	}

	s.mu.Lock()
	delete(s.inflight, snap.ID)
	site, ok := s.sites[snap.ID]
	if !ok {
		// removed while the write was on the wire
		s.mu.Unlock()
		return
	}
	if err != nil {
		if backend.IsCancelled(err) {
			s.mu.Unlock()
			return
		}
		site.LastError = err.Error()
		s.log.Warn("site_persist_failed",
			zap.String("site_id", snap.ID),
			zap.String("url", snap.URL),
			zap.Error(err),
		)
		s.mu.Unlock()
		s.notify()
		return
	}

	site.LastError = ""
	rekeyed := false
	if IsTempID(snap.ID) {
		s.rekeyLocked(snap.ID, saved.ID)
		site.ID = saved.ID
		rekeyed = true
	}
	// local field values win visually; only the id and sync state come back
	if s.timers[site.ID] == nil && !s.inflight[site.ID] {
		site.Sync = domain.SyncSaved
	} else {
		site.Sync = domain.SyncPending
	}
	site.RefreshDisplay()
	hook := s.rekey
	s.mu.Unlock()
	if rekeyed && hook != nil {
		hook(snap.ID, saved.ID)
	}
	s.notify()
}

// rekeyLocked moves an entity from its temporary id to the server-assigned
// one, migrating order and any re-armed timer. Caller holds s.mu.
func (s *Store) rekeyLocked(old, next string) {
	site := s.sites[old]
	delete(s.sites, old)
	s.sites[next] = site
	for i, v := range s.order {
		if v == old {
			s.order[i] = next
			break
		}
	}
	if t := s.timers[old]; t != nil {
		t.Stop()
		delete(s.timers, old)
		s.scheduleLocked(next)
	}
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
