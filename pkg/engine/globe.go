package engine

import (
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	defaultGlobeLat = 30.0
	defaultGlobeLon = 15.0

	// Globe apparent size calibration: at this altitude the globe fills
	// about 84% of the shorter screen dimension.
	globeFitAltitude = 5.0e6
	globeFitFraction = 0.42

	globePickRadius = 12.0
)

type primitiveKind int

const (
	primDisk primitiveKind = iota
	primColumn
	primLine
)

// primitive is one rendered geometry piece, rebuilt wholesale on every
// refresh. Batch rebuild is fine here: building these is cheap compared to
// diffing per-frame geometry.
type primitive struct {
	kind     primitiveKind
	lat, lon float64
	radiusM  float64 // ground radius for disks/columns
	heightM  float64 // extrusion for columns/lines
	color    color.RGBA
	key      string
}

// globeRecord is the incremental per-key bookkeeping; only the primitive
// list is rebuilt from it on refresh.
type globeRecord struct {
	Marker
	LastUpdate time.Time
}

// Globe is the 3D virtual-globe renderer: an orthographic sphere with flat
// disks, extruded columns and vertical lines sized by item count and camera
// altitude.
type Globe struct {
	mu sync.Mutex

	width, height int
	basemap       *Basemap

	centerLat, centerLon float64
	altitude             float64

	records    map[string]*globeRecord
	primitives []primitive

	selectedKey string
	hasSelected bool
	visible     bool
	showLines   bool

	bg       *ebiten.Image
	bgLat    float64
	bgLon    float64
	bgAlt    float64
	bgDirty  bool
}

func NewGlobe(width, height int, basemap *Basemap) *Globe {
	g := &Globe{
		width:     width,
		height:    height,
		basemap:   basemap,
		centerLat: defaultGlobeLat,
		centerLon: defaultGlobeLon,
		altitude:  AltitudeFromZoom(defaultZoom),
		records:   make(map[string]*globeRecord),
		showLines: true,
	}
	g.bgDirty = true
	g.SettleViewport()
	return g
}

// SetMarkers diffs the desired set into the record map, keeping records for
// surviving keys and purging the rest.
func (g *Globe) SetMarkers(want []Marker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]struct{}, len(want))
	now := time.Now()
	for _, m := range want {
		seen[m.Key] = struct{}{}
		if rec, ok := g.records[m.Key]; ok {
			rec.Marker = m
			rec.LastUpdate = now
			continue
		}
		g.records[m.Key] = &globeRecord{Marker: m, LastUpdate: now}
	}
	for key := range g.records {
		if _, ok := seen[key]; !ok {
			delete(g.records, key)
		}
	}
	if g.hasSelected {
		if _, ok := g.records[g.selectedKey]; !ok {
			g.hasSelected = false
			g.selectedKey = ""
		}
	}
}

func (g *Globe) AddMarker(m Marker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[m.Key] = &globeRecord{Marker: m, LastUpdate: time.Now()}
}

func (g *Globe) ClearMarkers() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]*globeRecord)
	g.primitives = nil
	g.hasSelected = false
	g.selectedKey = ""
}

// Records exposes the bookkeeping map for tests.
func (g *Globe) Records() map[string]*globeRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]*globeRecord, len(g.records))
	for k, v := range g.records {
		out[k] = v
	}
	return out
}

// Refresh clears all primitives and rebuilds them from the record map: a
// disk, an extruded column and optionally a vertical line per location with
// a nonzero filtered count.
func (g *Globe) Refresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primitives = g.primitives[:0]
	for key, rec := range g.records {
		if rec.Count <= 0 {
			continue
		}
		g.primitives = append(g.primitives, primitive{
			kind: primDisk, lat: rec.Lat, lon: rec.Lon,
			radiusM: DiskRadius(rec.Count, g.altitude),
			color:   rec.Color, key: key,
		})
		h := ColumnHeight(rec.Count, g.altitude)
		g.primitives = append(g.primitives, primitive{
			kind: primColumn, lat: rec.Lat, lon: rec.Lon,
			radiusM: ColumnRadius(rec.Count, g.altitude),
			heightM: h, color: rec.Color, key: key,
		})
		if g.showLines {
			g.primitives = append(g.primitives, primitive{
				kind: primLine, lat: rec.Lat, lon: rec.Lon,
				heightM: h, color: rec.Color, key: key,
			})
		}
	}
}

func (g *Globe) FlyTo(lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.centerLat = clampLat(lat)
	g.centerLon = wrapLon(lon)
	g.bgDirty = true
}

func (g *Globe) GetCenter() (float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.centerLat, g.centerLon
}

func (g *Globe) CameraState() (float64, float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.centerLat, g.centerLon, ZoomFromAltitude(g.altitude)
}

func (g *Globe) SetCameraState(lat, lon, zoom float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.centerLat = clampLat(lat)
	g.centerLon = wrapLon(lon)
	g.altitude = AltitudeFromZoom(clampZoom(zoom))
	g.bgDirty = true
}

// Altitude returns the camera height in meters.
func (g *Globe) Altitude() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.altitude
}

// SetVisualization is accepted for interface symmetry; the globe has a
// single presentation.
func (g *Globe) SetVisualization(Visualization) {}

func (g *Globe) SelectLocation(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selectedKey = key
	g.hasSelected = true
}

func (g *Globe) DeselectLocation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasSelected = false
	g.selectedKey = ""
}

func (g *Globe) SetVisible(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.visible = v
}

func (g *Globe) HandleDrag(dx, dy float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	degPerPx := 90.0 / g.radiusPx()
	g.centerLon = wrapLon(g.centerLon - dx*degPerPx)
	g.centerLat = clampLat(g.centerLat + dy*degPerPx)
	g.bgDirty = true
}

func (g *Globe) HandleWheel(dy float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.altitude *= math.Pow(0.85, dy)
	if min := AltitudeFromZoom(maxZoom); g.altitude < min {
		g.altitude = min
	}
	if max := AltitudeFromZoom(minZoom); g.altitude > max {
		g.altitude = max
	}
	g.bgDirty = true
}

// radiusPx returns the globe's apparent screen radius. Callers hold g.mu.
func (g *Globe) radiusPx() float64 {
	return g.radiusPxAt(g.altitude)
}

func (g *Globe) radiusPxAt(alt float64) float64 {
	minDim := g.width
	if g.height < minDim {
		minDim = g.height
	}
	r := float64(minDim) * globeFitFraction * (globeFitAltitude / alt)
	if r < 60 {
		r = 60
	}
	return r
}

// surfaceScreen projects a surface point. Callers hold g.mu.
func (g *Globe) surfaceScreen(lat, lon float64) (sx, sy float64, visible bool) {
	x, y, z := orthographic(lat, lon, g.centerLat, g.centerLon)
	if z < 0 {
		return 0, 0, false
	}
	r := g.radiusPx()
	return float64(g.width)/2 + x*r, float64(g.height)/2 - y*r, true
}

// Project converts a geographic point to screen coordinates; visible is
// false on the far hemisphere.
func (g *Globe) Project(lat, lon float64) (float64, float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.surfaceScreen(lat, lon)
}

// Pick resolves a click to the location key of the nearest visible marker.
func (g *Globe) Pick(px, py int) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bestKey, bestDist := "", math.Inf(1)
	metersPerPx := EarthRadius / g.radiusPx()
	for key, rec := range g.records {
		sx, sy, ok := g.surfaceScreen(rec.Lat, rec.Lon)
		if !ok {
			continue
		}
		pick := DiskRadius(rec.Count, g.altitude) / metersPerPx
		if pick < globePickRadius {
			pick = globePickRadius
		}
		d := math.Hypot(sx-float64(px), sy-float64(py))
		if d <= pick && d < bestDist {
			bestKey, bestDist = key, d
		}
	}
	return bestKey, bestKey != ""
}

// SettleViewport re-rasterizes the globe background for the current camera;
// wired to the viewport settle debounce like the planar renderer.
func (g *Globe) SettleViewport() {
	g.mu.Lock()
	if !g.bgDirty && g.bg != nil {
		g.mu.Unlock()
		return
	}
	lat, lon, alt := g.centerLat, g.centerLon, g.altitude
	w, h := g.width, g.height
	r := g.radiusPx()
	g.mu.Unlock()

	img := g.basemap.Render(w, h, func(plat, plon float64) (float64, float64, bool) {
		x, y, z := orthographic(plat, plon, lat, lon)
		if z < 0 {
			return 0, 0, false
		}
		return float64(w)/2 + x*r, float64(h)/2 - y*r, true
	})
	bg := ebiten.NewImageFromImage(img)

	g.mu.Lock()
	g.bg = bg
	g.bgLat, g.bgLon, g.bgAlt = lat, lon, alt
	g.bgDirty = false
	g.mu.Unlock()
}

// bgTransform maps the stale background raster onto the current camera: the
// scale for the altitude change and the screen shift of the raster's old
// center. Identity right after a settle. Callers hold g.mu.
func (g *Globe) bgTransform() (scale, dx, dy float64) {
	scale = g.radiusPx() / g.radiusPxAt(g.bgAlt)
	if sx, sy, ok := g.surfaceScreen(g.bgLat, g.bgLon); ok {
		dx = sx - float64(g.width)/2
		dy = sy - float64(g.height)/2
	}
	return scale, dx, dy
}

func (g *Globe) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.visible {
		return
	}
	cx, cy := float64(g.width)/2, float64(g.height)/2
	r := g.radiusPx()
	if g.bg != nil {
		// While the settle debounce is pending, approximate the camera move
		// by scaling the stale raster for the altitude change and shifting
		// it so its old center lands where that point projects now.
		scale, dx, dy := g.bgTransform()
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(-cx, -cy)
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(cx, cy)
		op.GeoM.Translate(dx, dy)
		screen.DrawImage(g.bg, op)
	}
	vector.StrokeCircle(screen, float32(cx), float32(cy), float32(r), 1, outlineColor, true)

	metersPerPx := EarthRadius / r
	for _, pr := range g.primitives {
		sx, sy, ok := g.surfaceScreen(pr.lat, pr.lon)
		if !ok {
			continue
		}
		switch pr.kind {
		case primDisk:
			px := pr.radiusM / metersPerPx
			if px < 2 {
				px = 2
			}
			fill := pr.color
			fill.A = 120
			vector.DrawFilledCircle(screen, float32(sx), float32(sy), float32(px), fill, true)
		case primColumn:
			tx, ty := g.extrude(sx, sy, cx, cy, pr.heightM)
			width := pr.radiusM / metersPerPx * 2
			if width < 1.5 {
				width = 1.5
			}
			vector.StrokeLine(screen, float32(sx), float32(sy), float32(tx), float32(ty), float32(width), pr.color, true)
		case primLine:
			tx, ty := g.extrude(sx, sy, cx, cy, pr.heightM)
			line := pr.color
			line.A = 160
			vector.StrokeLine(screen, float32(sx), float32(sy), float32(tx), float32(ty), 1, line, true)
		}
		if g.hasSelected && pr.key == g.selectedKey && pr.kind == primDisk {
			px := pr.radiusM/metersPerPx + selectionRing
			vector.StrokeCircle(screen, float32(sx), float32(sy), float32(px), 2, color.RGBA{255, 255, 255, 220}, true)
		}
	}
}

// extrude offsets a surface screen point radially outward from the globe
// center by the extrusion height; a column under the camera points at the
// viewer and collapses to its footprint, which is geometrically right.
func (g *Globe) extrude(sx, sy, cx, cy, heightM float64) (float64, float64) {
	dx, dy := sx-cx, sy-cy
	if math.Hypot(dx, dy) < 1e-6 {
		return sx, sy
	}
	// The radial screen offset of a height-h extrusion is h/Re times the
	// point's own offset from the globe center.
	f := heightM / EarthRadius
	return sx + dx*f, sy + dy*f
}
