package cache

import (
	"sort"

	"github.com/mihasm/news-globe/pkg/api"
)

// LocationAggregate is the location-keyed view of the snapshot: one entry
// per location key with its owning clusters and summed item count. It is a
// pure projection, recomputed from the store on every call and never
// mutated in place.
type LocationAggregate struct {
	Key          string
	Lat, Lon     float64
	LocationName string
	ItemCount    int
	Clusters     []api.Cluster
}

// Items flattens the member items of every owning cluster, newest first.
func (a *LocationAggregate) Items() []api.Item {
	var items []api.Item
	for i := range a.Clusters {
		items = append(items, a.Clusters[i].Items...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		ti, iok := items[i].Timestamp()
		tj, jok := items[j].Timestamp()
		if iok != jok {
			return iok
		}
		return ti.After(tj)
	})
	return items
}

// MostRecentItem returns the newest item across the aggregate's clusters.
func (a *LocationAggregate) MostRecentItem() (api.Item, bool) {
	items := a.Items()
	if len(items) == 0 {
		return api.Item{}, false
	}
	return items[0], true
}

// Aggregate groups the current (optionally filtered) snapshot by location
// key. The coordinates of a location come from the first cluster seen for
// it; ordering is by item count descending so the densest locations render
// first. Runs in O(clusters); called synchronously inside UI refresh ticks
// only.
func (s *Store) Aggregate(pred func(*api.Item) bool) []LocationAggregate {
	clusters := s.Clusters(pred)
	byKey := make(map[string]*LocationAggregate)
	var order []string
	for i := range clusters {
		key := clusters[i].Key()
		if key == "" {
			continue
		}
		agg, ok := byKey[key]
		if !ok {
			agg = &LocationAggregate{
				Key:          key,
				Lat:          clusters[i].Lat,
				Lon:          clusters[i].Lon,
				LocationName: clusters[i].LocationName,
			}
			byKey[key] = agg
			order = append(order, key)
		}
		agg.ItemCount += len(clusters[i].Items)
		agg.Clusters = append(agg.Clusters, clusters[i])
	}

	out := make([]LocationAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ItemCount > out[j].ItemCount })
	return out
}

// AggregateForLocation returns the single aggregate under key, ok=false when
// no filtered cluster maps there.
func (s *Store) AggregateForLocation(key string, pred func(*api.Item) bool) (LocationAggregate, bool) {
	for _, agg := range s.Aggregate(pred) {
		if agg.Key == key {
			return agg, true
		}
	}
	return LocationAggregate{}, false
}
