// Package cache owns the polling loop against the backend and the last
// fetched cluster snapshot. Every other component reads this snapshot and
// keeps only derived bookkeeping of its own.
package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mihasm/news-globe/pkg/api"
	"github.com/mihasm/news-globe/pkg/utils"
)

const fetchTimeout = 30 * time.Second

// ClusterSource is the part of the backend client the store needs; the tests
// substitute it.
type ClusterSource interface {
	Clusters(ctx context.Context, since string, limit int) ([]api.Cluster, error)
}

// Store holds the authoritative cluster snapshot. The snapshot is replaced
// wholesale after each successful fetch; a failed fetch keeps the previous
// one (stale but available). At most one fetch is in flight at any time; a
// request made while one is outstanding is dropped, not queued.
type Store struct {
	client ClusterSource
	window string
	limit  int
	db     *SnapshotDB // optional

	mu            sync.Mutex
	snapshot      []api.Cluster
	fetchInFlight bool
	lastFetched   time.Time
	stale         bool // snapshot came from disk, no fetch completed yet

	onFetchStarted   []func()
	onFetchCompleted []func(count int)
	onFetchError     []func(err error)
	onDataUpdated    []func()
	onSnapshot       []func()

	fetchTask    *utils.Task
	repaintTask  *utils.Task
	snapshotTask *utils.Task
}

// NewStore builds a store polling client for clusters inside the trailing
// window (e.g. "24h"). db may be nil to disable persistence.
func NewStore(client ClusterSource, window string, db *SnapshotDB) *Store {
	s := &Store{
		client: client,
		window: window,
		limit:  2000,
		db:     db,
	}
	if db != nil {
		if clusters, err := db.LoadSnapshot(); err != nil {
			log.Printf("Could not load persisted snapshot: %v", err)
		} else if len(clusters) > 0 {
			s.snapshot = clusters
			s.stale = true
			log.Printf("Seeded %d clusters from persisted snapshot", len(clusters))
		}
	}
	return s
}

// Start launches the independent timers: the slow backend fetch and the
// denser repaint/snapshot ticks that let UI components settle quickly after
// a fetch without hammering the network. The first fetch fires immediately.
func (s *Store) Start(fetchEvery, repaintEvery, snapshotEvery time.Duration) {
	s.fetchTask = utils.Repeat(fetchEvery, s.fetch)
	s.repaintTask = utils.Repeat(repaintEvery, func() { s.emit(s.snapDataUpdated()) })
	s.snapshotTask = utils.Repeat(snapshotEvery, func() { s.emit(s.snapSnapshot()) })
	s.fetchTask.Kick()
}

// Stop cancels all timers.
func (s *Store) Stop() {
	for _, t := range []*utils.Task{s.fetchTask, s.repaintTask, s.snapshotTask} {
		if t != nil {
			t.Stop()
		}
	}
}

// FetchNow triggers an immediate fetch. No-op while one is in flight.
func (s *Store) FetchNow() {
	if s.fetchTask != nil {
		s.fetchTask.Kick()
		return
	}
	go s.fetch()
}

func (s *Store) fetch() {
	s.mu.Lock()
	if s.fetchInFlight {
		s.mu.Unlock()
		return
	}
	s.fetchInFlight = true
	started := s.copyFns0(s.onFetchStarted)
	s.mu.Unlock()
	for _, fn := range started {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	clusters, err := s.client.Clusters(ctx, s.window, s.limit)

	s.mu.Lock()
	s.fetchInFlight = false
	if err != nil {
		errFns := make([]func(error), len(s.onFetchError))
		copy(errFns, s.onFetchError)
		s.mu.Unlock()
		log.Printf("Cluster fetch failed, keeping previous snapshot: %v", err)
		for _, fn := range errFns {
			fn(err)
		}
		return
	}
	s.snapshot = clusters
	s.stale = false
	s.lastFetched = time.Now()
	doneFns := make([]func(int), len(s.onFetchCompleted))
	copy(doneFns, s.onFetchCompleted)
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SaveSnapshot(clusters); err != nil {
			log.Printf("Persisting snapshot failed: %v", err)
		}
	}
	for _, fn := range doneFns {
		fn(len(clusters))
	}
}

// OnFetchStarted registers fn for the start of every fetch attempt.
func (s *Store) OnFetchStarted(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFetchStarted = append(s.onFetchStarted, fn)
}

// OnFetchCompleted registers fn for every successful fetch, with the new
// cluster count.
func (s *Store) OnFetchCompleted(fn func(count int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFetchCompleted = append(s.onFetchCompleted, fn)
}

// OnFetchError registers fn for failed fetches. The snapshot is untouched
// when these fire.
func (s *Store) OnFetchError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFetchError = append(s.onFetchError, fn)
}

// OnDataUpdated registers fn on the repaint tick. This is deliberately
// decoupled from the fetch timer: repaint cadence is denser than fetch
// cadence.
func (s *Store) OnDataUpdated(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDataUpdated = append(s.onDataUpdated, fn)
}

// OnSnapshotRefresh registers fn on the slower snapshot tick used by
// lookahead consumers (status totals, aggregate panels).
func (s *Store) OnSnapshotRefresh(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSnapshot = append(s.onSnapshot, fn)
}

func (s *Store) snapDataUpdated() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFns0(s.onDataUpdated)
}

func (s *Store) snapSnapshot() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFns0(s.onSnapshot)
}

func (s *Store) copyFns0(fns []func()) []func() {
	out := make([]func(), len(fns))
	copy(out, fns)
	return out
}

func (s *Store) emit(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// Stale reports whether the snapshot predates the current session.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// LastFetched returns the completion time of the most recent successful
// fetch, zero if none.
func (s *Store) LastFetched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFetched
}

// Clusters returns the current snapshot. With a non-nil predicate, member
// items are filtered and clusters left with no passing items are dropped.
// The returned clusters are copies; callers may not reach the snapshot.
func (s *Store) Clusters(pred func(*api.Item) bool) []api.Cluster {
	s.mu.Lock()
	snap := s.snapshot
	s.mu.Unlock()

	out := make([]api.Cluster, 0, len(snap))
	for i := range snap {
		if c, ok := filterCluster(&snap[i], pred); ok {
			out = append(out, c)
		}
	}
	return out
}

// ClustersForLocation returns the filtered clusters grouped under the given
// location key.
func (s *Store) ClustersForLocation(key string, pred func(*api.Item) bool) []api.Cluster {
	s.mu.Lock()
	snap := s.snapshot
	s.mu.Unlock()

	var out []api.Cluster
	for i := range snap {
		if snap[i].Key() != key {
			continue
		}
		if c, ok := filterCluster(&snap[i], pred); ok {
			out = append(out, c)
		}
	}
	return out
}

// ClusterIDs returns the set of ids in the current snapshot. Consumers use
// it to purge bookkeeping for ids the server no longer reports.
func (s *Store) ClusterIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.snapshot))
	for i := range s.snapshot {
		ids[s.snapshot[i].ClusterID] = struct{}{}
	}
	return ids
}

func filterCluster(c *api.Cluster, pred func(*api.Item) bool) (api.Cluster, bool) {
	out := *c
	if pred == nil {
		out.Items = append([]api.Item(nil), c.Items...)
		return out, true
	}
	items := make([]api.Item, 0, len(c.Items))
	for i := range c.Items {
		if pred(&c.Items[i]) {
			items = append(items, c.Items[i])
		}
	}
	if len(items) == 0 {
		return api.Cluster{}, false
	}
	out.Items = items
	out.ItemCount = len(items)
	return out, true
}
