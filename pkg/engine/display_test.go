package engine

import (
	"math"
	"testing"
)

func testSource(markers ...Marker) func() []Marker {
	return func() []Marker { return markers }
}

func TestDisplayModeSwitchPreservesCamera(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, testSource(marker("a", 46, 14, 3)))
	d.RefreshMarkers()

	// Move the planar camera somewhere specific.
	d.mu.Lock()
	d.planar.SetCameraState(46, 14, 5)
	d.mu.Unlock()

	d.SetMode(ModeGlobe)
	if d.Mode() != ModeGlobe {
		t.Fatalf("Expected globe mode, got %s", d.Mode())
	}
	d.mu.Lock()
	lat, lon, zoom := d.globe.CameraState()
	d.mu.Unlock()
	if lat != 46 || lon != 14 || math.Abs(zoom-5) > 1e-9 {
		t.Errorf("Expected camera carried over, got %f,%f zoom %f", lat, lon, zoom)
	}

	// And back again without drift.
	d.SetMode(ModePlanar)
	d.mu.Lock()
	lat, lon, zoom = d.planar.CameraState()
	d.mu.Unlock()
	if lat != 46 || lon != 14 || math.Abs(zoom-5) > 1e-9 {
		t.Errorf("Expected camera preserved on the way back, got %f,%f zoom %f", lat, lon, zoom)
	}
}

func TestDisplayModeSwitchReappliesMarkersAndSelection(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, testSource(marker("a", 46, 14, 3), marker("b", 48, 2, 1)))
	d.RefreshMarkers()
	d.SelectLocation("a", false)

	d.SetMode(ModeGlobe)
	d.mu.Lock()
	records := d.globe.Records()
	selected, hasSelected := d.globe.selectedKey, d.globe.hasSelected
	d.mu.Unlock()
	if len(records) != 2 {
		t.Errorf("Expected markers reapplied on the globe, got %d", len(records))
	}
	if !hasSelected || selected != "a" {
		t.Errorf("Expected selection restored, got %q (has=%v)", selected, hasSelected)
	}
}

func TestDisplayModeSwitchCentersOnSelection(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, testSource(marker("a", -33.9, 18.4, 2), marker("b", 48, 2, 1)))
	d.RefreshMarkers()
	d.SelectLocation("a", false)

	d.SetMode(ModeGlobe)
	lat, lon := d.GetCenter()
	if math.Abs(lat+33.9) > 1e-9 || math.Abs(lon-18.4) > 1e-9 {
		t.Errorf("Expected the globe centered on the selected location, got %f,%f", lat, lon)
	}

	// Without a selection the old camera simply carries over.
	d.DeselectLocation()
	d.mu.Lock()
	d.globe.SetCameraState(10, 20, 4)
	d.mu.Unlock()
	d.SetMode(ModePlanar)
	lat, lon = d.GetCenter()
	if lat != 10 || lon != 20 {
		t.Errorf("Expected camera carried over without selection, got %f,%f", lat, lon)
	}
}

func TestDisplayModeSwitchVisibility(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, nil)
	d.SetMode(ModeGlobe)
	d.mu.Lock()
	planarVisible := d.planar.visible
	globeVisible := d.globe.visible
	d.mu.Unlock()
	if planarVisible {
		t.Error("Expected the planar renderer detached after switching away")
	}
	if !globeVisible {
		t.Error("Expected the globe renderer attached")
	}
}

func TestDisplaySetModeNoOp(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, nil)
	fired := 0
	d.OnModeChange(func(Mode) { fired++ })
	d.SetMode(ModePlanar)
	if fired != 0 {
		t.Error("Switching to the current mode must not fire callbacks")
	}
	d.SetMode(ModeGlobe)
	if fired != 1 {
		t.Errorf("Expected 1 mode change, got %d", fired)
	}
}

func TestDisplayVisualizationRemembered(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, nil)
	d.SetVisualization(VisCircles)
	d.SetMode(ModeGlobe)
	d.SetMode(ModePlanar)
	if d.Visualization() != VisCircles {
		t.Error("Visualization sub-mode must survive renderer switches")
	}
	d.mu.Lock()
	vis := d.planar.vis
	d.mu.Unlock()
	if vis != VisCircles {
		t.Error("Planar renderer must get the remembered visualization back")
	}
}

func TestDisplayLocationSelectCallback(t *testing.T) {
	d := NewDisplay(800, 600, nil, ModePlanar, testSource(marker("a", 46, 14, 3)))
	d.RefreshMarkers()

	var gotKey string
	var gotOpened bool
	d.OnLocationSelect(func(key string, opened bool) { gotKey, gotOpened = key, opened })

	d.SelectLocation("a", true)
	if gotKey != "a" || !gotOpened {
		t.Errorf("Expected callback with a/true, got %q/%v", gotKey, gotOpened)
	}
	if key, ok := d.SelectedLocation(); !ok || key != "a" {
		t.Error("Expected selection recorded")
	}
	d.DeselectLocation()
	if _, ok := d.SelectedLocation(); ok {
		t.Error("Expected selection cleared")
	}
}
