package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const clustersFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [14.5, 46.05]},
      "properties": {
        "cluster_id": "c1",
        "representative_location_name": "Ljubljana, Slovenia",
        "title": "Protest downtown",
        "item_count": 2,
        "last_seen_at": "2025-03-01T12:00:00Z",
        "items": [
          {"id": 1, "source": "rss", "title": "a", "published_at": "2025-03-01T11:00:00Z"},
          {"id": 2, "source": "telegram", "title": "b", "published_at": "2025-03-01T12:00:00"}
        ]
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [2.35, 48.85]},
      "properties": {
        "cluster_id": "c2",
        "representative_lat": 48.85,
        "representative_lon": 2.35,
        "representative_location_name": "Paris, France",
        "item_count": 1,
        "items": [{"id": 3, "source": "rss"}]
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [0, 0]},
      "properties": {"title": "no id, must be dropped"}
    }
  ]
}`

func TestClustersDecodesFeatureCollection(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clusters" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{
			"since": r.URL.Query().Get("since"),
			"limit": r.URL.Query().Get("limit"),
		}
		w.Write([]byte(clustersFixture))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	clusters, err := c.Clusters(context.Background(), "24h", 100)
	if err != nil {
		t.Fatalf("Clusters failed: %v", err)
	}
	if gotQuery["since"] != "24h" || gotQuery["limit"] != "100" {
		t.Errorf("Expected since=24h limit=100, got %v", gotQuery)
	}
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters (feature without id dropped), got %d", len(clusters))
	}

	// c1 has no representative coords in properties; geometry supplies them.
	if clusters[0].Lat != 46.05 || clusters[0].Lon != 14.5 {
		t.Errorf("Expected geometry fallback coords, got %f,%f", clusters[0].Lat, clusters[0].Lon)
	}
	if len(clusters[0].Items) != 2 {
		t.Errorf("Expected 2 member items, got %d", len(clusters[0].Items))
	}
	// c2 carries its own coords; geometry must not overwrite.
	if clusters[1].Lat != 48.85 || clusters[1].Lon != 2.35 {
		t.Errorf("Expected property coords, got %f,%f", clusters[1].Lat, clusters[1].Lon)
	}
}

func TestClustersLimitClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5000" {
			t.Errorf("Expected limit clamped to 5000, got %s", got)
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Clusters(context.Background(), "", 999999); err != nil {
		t.Fatalf("Clusters failed: %v", err)
	}
}

func TestAISDecodesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("min_lat") == "" || q.Get("max_lon") == "" {
			t.Error("Expected bbox query parameters")
		}
		w.Write([]byte(`{"count":3,"items":[
			{"mmsi":123456789,"name":"EVER GIVEN","callsign":"H3RC","last_position":{"lat":30.0,"lon":32.5},"heading":270,"sog":8.5,"first_seen":1756700000,"last_seen":1756700100},
			{"mmsi":987654321,"name":"NO FIX YET"},
			{"mmsi":0,"name":"ghost","last_position":{"lat":1,"lon":1}}
		]}`))
	}))
	defer srv.Close()

	vehicles, err := NewClient(srv.URL).AIS(context.Background(), BBox{MinLat: 29, MaxLat: 31, MinLon: 32, MaxLon: 33})
	if err != nil {
		t.Fatalf("AIS failed: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("Expected 1 vehicle (zero mmsi and positionless records dropped), got %d", len(vehicles))
	}
	v := vehicles[0]
	if v.ID != "123456789" || v.Kind != VehicleVessel {
		t.Errorf("Unexpected vehicle %+v", v)
	}
	if v.Lat != 30.0 || v.Lon != 32.5 {
		t.Errorf("Expected nested last_position decoded, got %f,%f", v.Lat, v.Lon)
	}
	if v.Label() != "EVER GIVEN" || v.Callsign != "H3RC" {
		t.Errorf("Expected name/callsign mapped, got %+v", v)
	}
	if v.Heading != 270 || v.Speed != 8.5 {
		t.Errorf("Expected heading/speed mapped, got %+v", v)
	}
}

func TestADSBDecodesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":2,"items":[
			{"id":"4ca1d2","icao":"4ca1d2","callsign":"RYR22","lat":51.0,"lon":-0.2,"alt_m":10600,"speed_knots":430,"heading_deg":180,"seen":1756700100},
			{"id":"ab12cd","icao":"ab12cd","callsign":null,"lat":50.5,"lon":0.3,"speed_knots":120,"heading_deg":90}
		]}`))
	}))
	defer srv.Close()

	vehicles, err := NewClient(srv.URL).ADSB(context.Background(), BBox{MinLat: 50, MaxLat: 52, MinLon: -1, MaxLon: 1})
	if err != nil {
		t.Fatalf("ADSB failed: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("Expected 2 aircraft, got %d", len(vehicles))
	}
	a := vehicles[0]
	if a.Kind != VehicleAircraft || a.ID != "4ca1d2" || a.Callsign != "RYR22" {
		t.Errorf("Unexpected aircraft %+v", a)
	}
	if a.Lat != 51.0 || a.Lon != -0.2 || a.Heading != 180 || a.Speed != 430 {
		t.Errorf("Expected position and heading_deg/speed_knots mapped, got %+v", a)
	}
	// Null callsign falls back to the icao for display.
	if vehicles[1].Label() != "ab12cd" {
		t.Errorf("Expected icao label for null callsign, got %q", vehicles[1].Label())
	}
}

func TestBBoxRejectedBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AIS(context.Background(), BBox{MinLat: 10, MaxLat: -10})
	if err == nil {
		t.Fatal("Expected error for degenerate bbox")
	}
	if called {
		t.Error("Degenerate bbox must not reach the server")
	}
}

func TestBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Clusters(context.Background(), "24h", 0); err == nil {
		t.Error("Expected error on 500 response")
	}
	if _, err := NewClient(srv.URL).Config(context.Background()); err == nil {
		t.Error("Expected error on 500 response")
	}
}

func TestRemoteConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mapboxToken":"pk.x","cesiumIonToken":"","openweathermapApiKey":"owm"}`))
	}))
	defer srv.Close()

	cfg, err := NewClient(srv.URL).Config(context.Background())
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if cfg.MapboxToken != "pk.x" || cfg.OpenWeatherMapAPIKey != "owm" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}
