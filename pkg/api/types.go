// Package api contains the data model and HTTP client for the news-globe
// backend. The backend owns ingestion, clustering and geocoding; this side
// only reads.
package api

import (
	"fmt"
	"strings"
	"time"
)

// Item is a single ingested event/message belonging to exactly one cluster.
type Item struct {
	ID           int64          `json:"id"`
	Source       string         `json:"source"`
	SourceID     string         `json:"source_id"`
	CollectedAt  Timestamp      `json:"collected_at"`
	PublishedAt  Timestamp      `json:"published_at"`
	Title        string         `json:"title"`
	Text         string         `json:"text"`
	URL          string         `json:"url"`
	MediaURLs    []string       `json:"media_urls"`
	Entities     map[string]any `json:"entities"`
	LocationName string         `json:"location_name"`
	Lat          *float64       `json:"lat"`
	Lon          *float64       `json:"lon"`
	ClusterID    string         `json:"cluster_id"`
	Author       string         `json:"author"`
}

const degradedKeyTextLen = 40

// Key returns the stable identity used for diff bookkeeping: the numeric id,
// falling back to the URL, falling back to a composite of timestamp and text
// prefix. The composite is degraded: two distinct items can collide. The
// second return reports whether the degraded form was used.
func (it *Item) Key() (string, bool) {
	if it.ID != 0 {
		return fmt.Sprintf("id:%d", it.ID), false
	}
	if it.URL != "" {
		return it.URL, false
	}
	prefix := []rune(it.Text)
	if len(prefix) > degradedKeyTextLen {
		prefix = prefix[:degradedKeyTextLen]
	}
	ts, _ := it.Timestamp()
	return fmt.Sprintf("%d|%s", ts.UnixMilli(), string(prefix)), true
}

// Timestamp returns the item's effective time: published_at when present,
// collected_at otherwise. ok is false when the item carries no usable time,
// in which case time-filtered views must exclude it.
func (it *Item) Timestamp() (time.Time, bool) {
	if !it.PublishedAt.IsZero() {
		return it.PublishedAt.Time, true
	}
	if !it.CollectedAt.IsZero() {
		return it.CollectedAt.Time, true
	}
	return time.Time{}, false
}

// Cluster is a server-computed group of related events sharing an approximate
// location and time window. Identity is ClusterID; the server replaces
// clusters wholesale on every fetch, there is no partial patching.
type Cluster struct {
	ClusterID    string    `json:"cluster_id"`
	LocationKey  string    `json:"location_key"`
	Lat          float64   `json:"representative_lat"`
	Lon          float64   `json:"representative_lon"`
	LocationName string    `json:"representative_location_name"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Tags         []string  `json:"tags"`
	ItemCount    int       `json:"item_count"`
	FirstSeenAt  Timestamp `json:"first_seen_at"`
	LastSeenAt   Timestamp `json:"last_seen_at"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	Items        []Item    `json:"items"`
}

// Key returns the location grouping key, deriving it from the representative
// location name when the server did not send one.
func (c *Cluster) Key() string {
	if c.LocationKey != "" {
		return c.LocationKey
	}
	return strings.ToLower(c.LocationName)
}

// VehicleKind discriminates the two live-position feeds.
type VehicleKind string

const (
	VehicleVessel   VehicleKind = "vessel"
	VehicleAircraft VehicleKind = "aircraft"
)

// Vehicle is a live position report from the AIS or ADS-B feed. Identity is
// ID (MMSI for vessels, ICAO hex for aircraft).
type Vehicle struct {
	ID       string      `json:"id"`
	Kind     VehicleKind `json:"-"`
	Name     string      `json:"name"`
	Callsign string      `json:"callsign"`
	Lat      float64     `json:"lat"`
	Lon      float64     `json:"lon"`
	Heading  float64     `json:"heading"`
	Speed    float64     `json:"speed"`
	SeenAt   Timestamp   `json:"seen_at"`
}

// Label returns the display name for the overlay: ship name when known, then
// callsign, then the raw identifier.
func (v *Vehicle) Label() string {
	if s := strings.TrimSpace(v.Name); s != "" {
		return s
	}
	if s := strings.TrimSpace(v.Callsign); s != "" {
		return s
	}
	return v.ID
}

// RemoteConfig holds runtime credentials served by /api/config. Every field
// is optional; an absent credential degrades the matching layer to its
// credential-free default instead of failing the view.
type RemoteConfig struct {
	MapboxToken          string `json:"mapboxToken"`
	CesiumIonToken       string `json:"cesiumIonToken"`
	OpenWeatherMapAPIKey string `json:"openweathermapApiKey"`
}

// BBox is a geographic bounding box, used to scope the live-position feeds to
// the visible viewport.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b BBox) Validate() error {
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("degenerate bbox: %+v", b)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("bbox out of range: %+v", b)
	}
	return nil
}

// Contains reports whether the point lies inside the box, bounds inclusive.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Timestamp decodes the backend's ISO-8601 strings. The Python side emits
// both offset-qualified and naive forms; naive values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
