package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mihasm/news-globe/pkg/api"
	"github.com/mihasm/news-globe/pkg/cache"
	"github.com/mihasm/news-globe/pkg/filter"
)

type sidebarSource struct {
	mu       sync.Mutex
	clusters []api.Cluster
}

func (f *sidebarSource) Clusters(ctx context.Context, since string, limit int) ([]api.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clusters, nil
}

func (f *sidebarSource) set(clusters []api.Cluster) {
	f.mu.Lock()
	f.clusters = clusters
	f.mu.Unlock()
}

func sidebarClusters() []api.Cluster {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) api.Timestamp { return api.Timestamp{Time: base.Add(d)} }
	return []api.Cluster{
		{
			ClusterID:    "c1",
			LocationKey:  "ljubljana, slovenia",
			LocationName: "Ljubljana, Slovenia",
			Title:        "Protest in the city center",
			Summary:      "Crowds gathering",
			LastSeenAt:   at(0),
			Items: []api.Item{
				{ID: 1, Source: "rss", Title: "report one", PublishedAt: at(-time.Hour)},
				{ID: 2, Source: "telegram", Title: "report two", PublishedAt: at(0)},
			},
		},
		{
			ClusterID:    "c2",
			LocationKey:  "ljubljana, slovenia",
			LocationName: "Ljubljana, Slovenia",
			Title:        "Road closure",
			LastSeenAt:   at(-2 * time.Hour),
			Items:        []api.Item{{ID: 3, Source: "rss", PublishedAt: at(-2 * time.Hour)}},
		},
		{
			ClusterID:    "c3",
			LocationKey:  "paris, france",
			LocationName: "Paris, France",
			Title:        "Strike continues",
			LastSeenAt:   at(-time.Hour),
			Items:        []api.Item{{ID: 4, Source: "rss", PublishedAt: at(-time.Hour)}},
		},
	}
}

func newSidebarFixture(t *testing.T) (*Sidebar, *cache.Store, *sidebarSource) {
	t.Helper()
	src := &sidebarSource{clusters: sidebarClusters()}
	store := cache.NewStore(src, "24h", nil)
	store.FetchNow()
	deadline := time.Now().Add(2 * time.Second)
	for len(store.Clusters(nil)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(store.Clusters(nil)) == 0 {
		t.Fatal("Store never received the fixture clusters")
	}
	model := filter.NewModel(24*time.Hour, "#2040c0", "#ff4020")
	sb := NewSidebar(store, model, LoadFonts(), 1280, 720, 50*time.Millisecond)
	return sb, store, src
}

func refetch(t *testing.T, store *cache.Store, want int) {
	t.Helper()
	store.FetchNow()
	deadline := time.Now().Add(2 * time.Second)
	for len(store.Clusters(nil)) != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(store.Clusters(nil)) != want {
		t.Fatalf("Store never settled at %d clusters", want)
	}
}

func TestSidebarSelectBuildsRows(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SelectLocation("ljubljana, slovenia")

	if !sb.Visible() {
		t.Error("Selecting a location must open the panel")
	}
	rows := sb.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows for ljubljana, got %d", len(rows))
	}
	if _, ok := rows["c3"]; ok {
		t.Error("Rows must be scoped to the selected location")
	}
	if sb.HeaderCount() != 3 {
		t.Errorf("Expected header count 3, got %d", sb.HeaderCount())
	}
}

func TestSidebarRefreshPreservesExpansion(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SelectLocation("ljubljana, slovenia")

	rows := sb.Rows()
	rows["c1"].expanded = true
	kept := rows["c1"]

	sb.RefreshRows()
	rows = sb.Rows()
	if rows["c1"] != kept {
		t.Error("Expected row instance reused across refresh")
	}
	if !rows["c1"].expanded {
		t.Error("Expand flag must survive a refresh")
	}
}

func TestSidebarRefreshPurgesAbsentClusters(t *testing.T) {
	sb, store, src := newSidebarFixture(t)
	sb.SelectLocation("ljubljana, slovenia")

	// Server drops c2; its row must go.
	all := sidebarClusters()
	src.set([]api.Cluster{all[0], all[2]})
	refetch(t, store, 2)
	sb.RefreshRows()

	rows := sb.Rows()
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row after purge, got %d", len(rows))
	}
	if _, ok := rows["c2"]; ok {
		t.Error("Expected c2 purged")
	}
	if sb.HeaderCount() != 2 {
		t.Errorf("Expected header count 2, got %d", sb.HeaderCount())
	}
}

func TestSidebarLocationSwitchClearsBookkeeping(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SelectLocation("ljubljana, slovenia")
	sb.Rows()["c1"].expanded = true

	sb.SelectLocation("paris, france")
	rows := sb.Rows()
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row for paris, got %d", len(rows))
	}
	if _, ok := rows["c1"]; ok {
		t.Error("Expected previous location's rows discarded")
	}

	// Going back rebuilds from scratch: the expand flag is gone.
	sb.SelectLocation("ljubljana, slovenia")
	if sb.Rows()["c1"].expanded {
		t.Error("Expand state must not leak across location switches")
	}
}

// switchingLister switches the sidebar to a second location while the first
// row query is still in flight, the interleaving a debounced refresh racing
// a selection change produces.
type switchingLister struct {
	sb      *Sidebar
	flipped bool
	byKey   map[string][]api.Cluster
}

func (l *switchingLister) ClustersForLocation(key string, pred func(*api.Item) bool) []api.Cluster {
	if !l.flipped {
		l.flipped = true
		l.sb.SelectLocation("paris, france")
	}
	return l.byKey[key]
}

func TestSidebarRefreshDiscardsStaleLocationRows(t *testing.T) {
	all := sidebarClusters()
	lister := &switchingLister{byKey: map[string][]api.Cluster{
		"ljubljana, slovenia": {all[0], all[1]},
		"paris, france":       {all[2]},
	}}
	model := filter.NewModel(24*time.Hour, "#2040c0", "#ff4020")
	sb := NewSidebar(lister, model, LoadFonts(), 1280, 720, 50*time.Millisecond)
	lister.sb = sb

	sb.SelectLocation("ljubljana, slovenia")

	if key, _ := sb.SelectedLocation(); key != "paris, france" {
		t.Fatalf("Expected the second selection to win, got %q", key)
	}
	rows := sb.Rows()
	if _, ok := rows["c1"]; ok {
		t.Error("Stale query results must not land in the new location's rows")
	}
	if len(rows) != 1 || rows["c3"] == nil {
		t.Fatalf("Expected paris rows only, got %d", len(rows))
	}
}

func TestSidebarReselectSameLocationKeepsRows(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SelectLocation("ljubljana, slovenia")
	sb.Rows()["c1"].expanded = true

	sb.Hide()
	sb.SelectLocation("ljubljana, slovenia")
	if !sb.Rows()["c1"].expanded {
		t.Error("Reselecting the same location must keep row state")
	}
}

func TestSidebarEmptyLocation(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SelectLocation("nowhere")
	if len(sb.Rows()) != 0 {
		t.Error("Expected no rows for an unknown location")
	}
	if sb.HeaderCount() != 0 {
		t.Errorf("Expected header count 0, got %d", sb.HeaderCount())
	}
}

func TestSidebarHighlightKeywords(t *testing.T) {
	sb, _, _ := newSidebarFixture(t)
	sb.SetHighlightKeywords([]string{"PROTEST"})
	sb.SelectLocation("ljubljana, slovenia")

	rows := sb.Rows()
	if !rows["c1"].highlight {
		t.Error("Expected c1 highlighted (title contains 'protest')")
	}
	if rows["c2"].highlight {
		t.Error("Expected c2 not highlighted")
	}
}

func TestSidebarFilteredRows(t *testing.T) {
	src := &sidebarSource{clusters: sidebarClusters()}
	store := cache.NewStore(src, "24h", nil)
	store.FetchNow()
	deadline := time.Now().Add(2 * time.Second)
	for len(store.Clusters(nil)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	model := filter.NewModel(24*time.Hour, "#2040c0", "#ff4020")
	sb := NewSidebar(store, model, LoadFonts(), 1280, 720, 50*time.Millisecond)

	// A window that excludes everything empties the panel without closing it.
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := model.SetTimeRange(from, from.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	model.SetEnabled(true)
	sb.SelectLocation("ljubljana, slovenia")
	if len(sb.Rows()) != 0 || sb.HeaderCount() != 0 {
		t.Error("Expected empty rows under an excluding filter")
	}
	if !sb.Visible() {
		t.Error("Panel stays open with the empty state")
	}
}

func TestPrettyLocation(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paris, france", "Paris, FR"},
		{"ljubljana, slovenia", "Ljubljana, SI"},
		{"gaza strip", "Gaza Strip"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := prettyLocation(tt.in); got != tt.want {
			t.Errorf("prettyLocation(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
