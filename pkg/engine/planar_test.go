package engine

import (
	"image/color"
	"testing"
)

func marker(key string, lat, lon float64, count int) Marker {
	return Marker{
		Key:   key,
		Lat:   lat,
		Lon:   lon,
		Count: count,
		Color: color.RGBA{0, 191, 255, 255},
	}
}

func TestPlanarSetMarkersDiff(t *testing.T) {
	p := NewPlanar(800, 600, nil)

	p.SetMarkers([]Marker{
		marker("a", 46, 14, 1),
		marker("b", 48, 2, 2),
		marker("c", 51, 0, 3),
	})
	handles := p.Handles()
	if len(handles) != 3 {
		t.Fatalf("Expected 3 handles, got %d", len(handles))
	}
	keptB, keptC := handles["b"], handles["c"]

	// {a,b,c} -> {b,c,d}: b and c update in place, a is purged, d appears.
	p.SetMarkers([]Marker{
		marker("b", 48, 2, 5),
		marker("c", 51, 0, 3),
		marker("d", 40, -3, 1),
	})
	handles = p.Handles()
	if len(handles) != 3 {
		t.Fatalf("Expected 3 handles after diff, got %d", len(handles))
	}
	if _, ok := handles["a"]; ok {
		t.Error("Expected a purged")
	}
	if handles["b"] != keptB {
		t.Error("Expected b's handle instance reused")
	}
	if handles["c"] != keptC {
		t.Error("Expected c's handle instance reused")
	}
	if handles["b"].Count != 5 {
		t.Errorf("Expected b updated in place to count 5, got %d", handles["b"].Count)
	}
	if _, ok := handles["d"]; !ok {
		t.Error("Expected d created")
	}
}

func TestPlanarSelectionDroppedWithMarker(t *testing.T) {
	p := NewPlanar(800, 600, nil)
	p.SetMarkers([]Marker{marker("a", 46, 14, 1), marker("b", 48, 2, 2)})
	p.SelectLocation("a")

	p.SetMarkers([]Marker{marker("b", 48, 2, 2)})
	p.mu.Lock()
	selected := p.hasSelected
	p.mu.Unlock()
	if selected {
		t.Error("Selection must be dropped when its marker disappears")
	}

	// Selection of a surviving marker stays.
	p.SelectLocation("b")
	p.SetMarkers([]Marker{marker("b", 48, 2, 9)})
	p.mu.Lock()
	selected, key := p.hasSelected, p.selectedKey
	p.mu.Unlock()
	if !selected || key != "b" {
		t.Error("Selection of a surviving marker must stay")
	}
}

func TestPlanarClearMarkers(t *testing.T) {
	p := NewPlanar(800, 600, nil)
	p.SetMarkers([]Marker{marker("a", 46, 14, 1)})
	p.SelectLocation("a")
	p.ClearMarkers()
	if len(p.Handles()) != 0 {
		t.Error("Expected all handles cleared")
	}
	p.mu.Lock()
	selected := p.hasSelected
	p.mu.Unlock()
	if selected {
		t.Error("Expected selection cleared")
	}
}

func TestPlanarPick(t *testing.T) {
	p := NewPlanar(800, 600, nil)
	p.SetCameraState(46, 14, 5)
	p.SetMarkers([]Marker{marker("a", 46, 14, 1)})

	// The camera center projects to the screen center.
	key, ok := p.Pick(400, 300)
	if !ok || key != "a" {
		t.Errorf("Expected pick at center to hit a, got %q (ok=%v)", key, ok)
	}
	if _, ok := p.Pick(100, 100); ok {
		t.Error("Expected no pick far from the marker")
	}
}

func TestPlanarCameraClamps(t *testing.T) {
	p := NewPlanar(800, 600, nil)
	p.SetCameraState(89, 200, 99)
	lat, lon, zoom := p.CameraState()
	if lat != 85 || lon != -160 || zoom != maxZoom {
		t.Errorf("Expected clamped camera, got %f,%f zoom %f", lat, lon, zoom)
	}
}

func TestPlanarViewportContainsCenter(t *testing.T) {
	p := NewPlanar(800, 600, nil)
	p.SetCameraState(46, 14, 5)
	minLat, maxLat, minLon, maxLon := p.Viewport()
	if !(minLat < 46 && 46 < maxLat && minLon < 14 && 14 < maxLon) {
		t.Errorf("Viewport %f..%f / %f..%f does not contain the center", minLat, maxLat, minLon, maxLon)
	}
}
