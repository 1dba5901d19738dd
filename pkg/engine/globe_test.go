package engine

import (
	"math"
	"testing"
)

func TestGlobeSetMarkersDiff(t *testing.T) {
	g := NewGlobe(800, 600, nil)
	g.SetMarkers([]Marker{
		marker("a", 46, 14, 1),
		marker("b", 48, 2, 2),
	})
	records := g.Records()
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	keptB := records["b"]

	g.SetMarkers([]Marker{marker("b", 48, 2, 7), marker("c", 51, 0, 1)})
	records = g.Records()
	if _, ok := records["a"]; ok {
		t.Error("Expected a purged")
	}
	if records["b"] != keptB {
		t.Error("Expected b's record instance reused")
	}
	if records["b"].Count != 7 {
		t.Errorf("Expected b updated in place, got count %d", records["b"].Count)
	}
}

func TestGlobeRefreshBuildsPrimitives(t *testing.T) {
	g := NewGlobe(800, 600, nil)
	g.SetMarkers([]Marker{
		marker("a", 46, 14, 3),
		marker("zero", 10, 10, 0), // filtered to nothing, must render nothing
	})
	g.Refresh()

	g.mu.Lock()
	prims := append([]primitive(nil), g.primitives...)
	g.mu.Unlock()

	// Disk, column, line for the one marker with a nonzero count.
	if len(prims) != 3 {
		t.Fatalf("Expected 3 primitives, got %d", len(prims))
	}
	kinds := map[primitiveKind]int{}
	for _, p := range prims {
		kinds[p.kind]++
		if p.key != "a" {
			t.Errorf("Unexpected primitive for key %q", p.key)
		}
	}
	if kinds[primDisk] != 1 || kinds[primColumn] != 1 || kinds[primLine] != 1 {
		t.Errorf("Expected one of each primitive kind, got %v", kinds)
	}

	// Refresh is idempotent: running it again replaces, not appends.
	g.Refresh()
	g.mu.Lock()
	n := len(g.primitives)
	g.mu.Unlock()
	if n != 3 {
		t.Errorf("Expected 3 primitives after second refresh, got %d", n)
	}
}

func TestGlobeCameraStateInZoomUnits(t *testing.T) {
	g := NewGlobe(800, 600, nil)
	g.SetCameraState(46, 14, 5)
	lat, lon, zoom := g.CameraState()
	if lat != 46 || lon != 14 {
		t.Errorf("Expected center preserved, got %f,%f", lat, lon)
	}
	if math.Abs(zoom-5) > 1e-9 {
		t.Errorf("Expected zoom round-tripped through altitude, got %f", zoom)
	}
	if math.Abs(g.Altitude()-AltitudeFromZoom(5)) > 1e-6 {
		t.Errorf("Expected altitude %f, got %f", AltitudeFromZoom(5), g.Altitude())
	}
}

func TestGlobeWheelClampsAltitude(t *testing.T) {
	g := NewGlobe(800, 600, nil)
	for i := 0; i < 200; i++ {
		g.HandleWheel(1) // zoom in hard
	}
	if g.Altitude() < AltitudeFromZoom(maxZoom)-1 {
		t.Errorf("Altitude fell below the max-zoom floor: %f", g.Altitude())
	}
	for i := 0; i < 200; i++ {
		g.HandleWheel(-1)
	}
	if g.Altitude() > AltitudeFromZoom(minZoom)+1 {
		t.Errorf("Altitude rose above the min-zoom ceiling: %f", g.Altitude())
	}
}

func TestGlobePickFarSideHidden(t *testing.T) {
	g := NewGlobe(800, 600, nil)
	g.SetCameraState(0, 0, 3)
	g.SetMarkers([]Marker{marker("far", 0, 180, 50)})
	g.Refresh()
	if _, ok := g.Pick(400, 300); ok {
		t.Error("Markers on the far hemisphere must not be pickable")
	}
}

func TestGlobeBackgroundTransform(t *testing.T) {
	g := NewGlobe(800, 600, nil)

	g.mu.Lock()
	scale, dx, dy := g.bgTransform()
	g.mu.Unlock()
	if scale != 1 || dx != 0 || dy != 0 {
		t.Errorf("Expected identity transform right after a settle, got scale=%f shift=%f,%f", scale, dx, dy)
	}

	// Zooming in scales the stale raster up until the next settle.
	g.HandleWheel(2)
	g.mu.Lock()
	scale, _, _ = g.bgTransform()
	g.mu.Unlock()
	if scale <= 1 {
		t.Errorf("Expected scale > 1 after zooming in, got %f", scale)
	}

	// Panning shifts the raster's old center away from the screen center.
	g.SettleViewport()
	g.HandleDrag(40, 0)
	g.mu.Lock()
	_, dx, _ = g.bgTransform()
	g.mu.Unlock()
	if dx == 0 {
		t.Error("Expected a horizontal shift after panning")
	}
}
