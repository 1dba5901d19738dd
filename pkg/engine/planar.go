package engine

import (
	"image/color"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	tileSize = 256.0

	pinPickRadius    = 14.0
	densityCellPx    = 48.0
	selectionRing    = 6.0
	defaultPlanarLat = 25.0
	defaultPlanarLon = 10.0
	defaultZoom      = 2.3
)

// MarkerHandle is the per-key bookkeeping record of the planar renderer. A
// handle is reused across refreshes; only the fields that actually changed
// are touched, which keeps hover state and avoids flicker on every poll.
type MarkerHandle struct {
	Marker
	LastColor  color.RGBA
	LastCount  int
	LastUpdate time.Time
}

// Planar is the 2D web-mercator renderer with the id-keyed marker-diff
// engine. It never clears and rebuilds its handles wholesale: each refresh
// creates, updates in place, or removes exactly the deltas.
type Planar struct {
	mu sync.Mutex

	width, height int
	basemap       *Basemap

	centerLat, centerLon float64
	zoom                 float64

	handles map[string]*MarkerHandle
	vis     Visualization

	selectedKey string
	hasSelected bool
	visible     bool

	bg        *ebiten.Image
	bgLat     float64
	bgLon     float64
	bgZoom    float64
	bgPending bool
}

func NewPlanar(width, height int, basemap *Basemap) *Planar {
	p := &Planar{
		width:     width,
		height:    height,
		basemap:   basemap,
		centerLat: defaultPlanarLat,
		centerLon: defaultPlanarLon,
		zoom:      defaultZoom,
		handles:   make(map[string]*MarkerHandle),
		vis:       VisPins,
	}
	p.rebuildBackground()
	return p
}

// SetMarkers diffs the desired set against the handle map. Handles for keys
// present in both are mutated in place and keep their identity; keys absent
// from want are removed after the pass.
func (p *Planar) SetMarkers(want []Marker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]struct{}, len(want))
	now := time.Now()
	for _, m := range want {
		seen[m.Key] = struct{}{}
		if h, ok := p.handles[m.Key]; ok {
			changed := h.Lat != m.Lat || h.Lon != m.Lon ||
				h.Count != m.Count || h.Color != m.Color || h.Label != m.Label
			h.Marker = m
			if changed {
				h.LastColor = m.Color
				h.LastCount = m.Count
				h.LastUpdate = now
			}
			continue
		}
		p.handles[m.Key] = &MarkerHandle{
			Marker:     m,
			LastColor:  m.Color,
			LastCount:  m.Count,
			LastUpdate: now,
		}
	}
	for key := range p.handles {
		if _, ok := seen[key]; !ok {
			delete(p.handles, key)
		}
	}
	if p.hasSelected {
		if _, ok := p.handles[p.selectedKey]; !ok {
			p.hasSelected = false
			p.selectedKey = ""
		}
	}
}

func (p *Planar) AddMarker(m Marker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[m.Key]; ok {
		h.Marker = m
		h.LastColor = m.Color
		h.LastCount = m.Count
		h.LastUpdate = time.Now()
		return
	}
	p.handles[m.Key] = &MarkerHandle{Marker: m, LastColor: m.Color, LastCount: m.Count, LastUpdate: time.Now()}
}

func (p *Planar) ClearMarkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles = make(map[string]*MarkerHandle)
	p.hasSelected = false
	p.selectedKey = ""
}

// Handles exposes the bookkeeping map for tests and the display.
func (p *Planar) Handles() map[string]*MarkerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*MarkerHandle, len(p.handles))
	for k, v := range p.handles {
		out[k] = v
	}
	return out
}

// Refresh is a no-op beyond the diff already applied by SetMarkers: planar
// visuals derive from handles at draw time.
func (p *Planar) Refresh() {}

func (p *Planar) FlyTo(lat, lon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.centerLat = clampLat(lat)
	p.centerLon = wrapLon(lon)
	p.scheduleBackground()
}

func (p *Planar) GetCenter() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.centerLat, p.centerLon
}

func (p *Planar) CameraState() (float64, float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.centerLat, p.centerLon, p.zoom
}

func (p *Planar) SetCameraState(lat, lon, zoom float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.centerLat = clampLat(lat)
	p.centerLon = wrapLon(lon)
	p.zoom = clampZoom(zoom)
	p.scheduleBackground()
}

func (p *Planar) SetVisualization(v Visualization) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vis = v
}

func (p *Planar) SelectLocation(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectedKey = key
	p.hasSelected = true
}

func (p *Planar) DeselectLocation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasSelected = false
	p.selectedKey = ""
}

func (p *Planar) SetVisible(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = v
}

// Zoom returns the current zoom level.
func (p *Planar) Zoom() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

func (p *Planar) HandleDrag(dx, dy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	worldPx := tileSize * math.Pow(2, p.zoom)
	mx, my := mercator(p.centerLat, p.centerLon)
	mx -= dx / worldPx
	my -= dy / worldPx
	if my < 0 {
		my = 0
	}
	if my > 1 {
		my = 1
	}
	p.centerLat, p.centerLon = mercatorInverse(mx, my)
	p.centerLon = wrapLon(p.centerLon)
	p.scheduleBackground()
}

func (p *Planar) HandleWheel(dy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zoom = clampZoom(p.zoom + dy*0.25)
	p.scheduleBackground()
}

// Viewport returns the visible geographic box.
func (p *Planar) Viewport() (minLat, maxLat, minLon, maxLon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	worldPx := tileSize * math.Pow(2, p.zoom)
	mx, my := mercator(p.centerLat, p.centerLon)
	halfW := float64(p.width) / 2 / worldPx
	halfH := float64(p.height) / 2 / worldPx
	maxLat, minLon = mercatorInverse(mx-halfW, my-halfH)
	minLat, maxLon = mercatorInverse(mx+halfW, my+halfH)
	return clampLat(minLat), clampLat(maxLat), wrapLon(minLon), wrapLon(maxLon)
}

// screenFromLatLon converts under the current camera. Callers hold p.mu.
func (p *Planar) screenFromLatLon(lat, lon float64) (float64, float64) {
	worldPx := tileSize * math.Pow(2, p.zoom)
	mx, my := mercator(lat, lon)
	cx, cy := mercator(p.centerLat, p.centerLon)
	dx := mx - cx
	// Take the short way around the antimeridian.
	if dx > 0.5 {
		dx -= 1
	}
	if dx < -0.5 {
		dx += 1
	}
	return float64(p.width)/2 + dx*worldPx, float64(p.height)/2 + (my-cy)*worldPx
}

// Project converts a geographic point to screen coordinates under the
// current camera. The visible flag is always true for the planar map; the
// overlay culls against the screen rect itself.
func (p *Planar) Project(lat, lon float64) (float64, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.screenFromLatLon(lat, lon)
	return x, y, true
}

// Pick returns the key of the closest marker within pick distance of the
// screen point.
func (p *Planar) Pick(x, y int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bestKey, bestDist := "", math.Inf(1)
	for key, h := range p.handles {
		sx, sy := p.screenFromLatLon(h.Lat, h.Lon)
		pick := pinPickRadius
		if p.vis == VisCircles {
			if r := p.circleRadiusPx(h); r > pick {
				pick = r
			}
		}
		d := math.Hypot(sx-float64(x), sy-float64(y))
		if d <= pick && d < bestDist {
			bestKey, bestDist = key, d
		}
	}
	return bestKey, bestKey != ""
}

// circleRadiusPx sizes an aggregated circle with the shared disk formula at
// a fixed reference altitude, so circles keep one size across zoom levels.
func (p *Planar) circleRadiusPx(h *MarkerHandle) float64 {
	meters := DiskRadius(h.Count, ReferenceAltitude)
	worldPx := tileSize * math.Pow(2, p.zoom)
	metersPerPx := metersPerWorldUnit(h.Lat) / worldPx
	r := meters / metersPerPx
	if r < 4 {
		r = 4
	}
	if r > 120 {
		r = 120
	}
	return r
}

func (p *Planar) scheduleBackground() {
	p.bgPending = true
}

// SettleViewport re-rasterizes the basemap for the current camera. Wired to
// the 1s viewport debounce; cheap enough there, too slow per frame.
func (p *Planar) SettleViewport() {
	p.mu.Lock()
	if !p.bgPending && p.bg != nil {
		p.mu.Unlock()
		return
	}
	lat, lon, zoom := p.centerLat, p.centerLon, p.zoom
	w, h := p.width, p.height
	p.mu.Unlock()

	img := p.basemap.Render(w, h, func(plat, plon float64) (float64, float64, bool) {
		worldPx := tileSize * math.Pow(2, zoom)
		mx, my := mercator(plat, plon)
		cx, cy := mercator(lat, lon)
		dx := mx - cx
		if dx > 0.5 {
			dx -= 1
		}
		if dx < -0.5 {
			dx += 1
		}
		return float64(w)/2 + dx*worldPx, float64(h)/2 + (my-cy)*worldPx, true
	})
	bg := ebiten.NewImageFromImage(img)

	p.mu.Lock()
	p.bg = bg
	p.bgLat, p.bgLon, p.bgZoom = lat, lon, zoom
	p.bgPending = false
	p.mu.Unlock()
}

func (p *Planar) rebuildBackground() {
	p.bgPending = true
	p.SettleViewport()
}

func (p *Planar) Draw(screen *ebiten.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible {
		return
	}
	p.drawBackground(screen)
	switch p.vis {
	case VisCircles:
		p.drawCircles(screen)
	default:
		p.drawPins(screen)
	}
}

// drawBackground shifts and scales the last settled rasterization to the
// current camera; the debounce catches up once movement stops.
func (p *Planar) drawBackground(screen *ebiten.Image) {
	if p.bg == nil {
		return
	}
	op := &ebiten.DrawImageOptions{}
	scale := math.Pow(2, p.zoom-p.bgZoom)
	worldPx := tileSize * math.Pow(2, p.zoom)
	cx, cy := mercator(p.centerLat, p.centerLon)
	bx, by := mercator(p.bgLat, p.bgLon)
	dx := bx - cx
	if dx > 0.5 {
		dx -= 1
	}
	if dx < -0.5 {
		dx += 1
	}
	op.GeoM.Translate(-float64(p.width)/2, -float64(p.height)/2)
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(float64(p.width)/2+dx*worldPx, float64(p.height)/2+(by-cy)*worldPx)
	screen.DrawImage(p.bg, op)
}

// drawPins groups handles into density cells and renders one pin per cell
// with the member count; single-member cells render a plain pin.
func (p *Planar) drawPins(screen *ebiten.Image) {
	type cell struct {
		sx, sy float64
		count  int
		color  color.RGBA
		last   time.Time
		keys   []string
	}
	cells := make(map[[2]int]*cell)
	for key, h := range p.handles {
		sx, sy := p.screenFromLatLon(h.Lat, h.Lon)
		if sx < -densityCellPx || sx > float64(p.width)+densityCellPx ||
			sy < -densityCellPx || sy > float64(p.height)+densityCellPx {
			continue
		}
		idx := [2]int{int(sx / densityCellPx), int(sy / densityCellPx)}
		cl, ok := cells[idx]
		if !ok {
			cl = &cell{}
			cells[idx] = cl
		}
		// Weighted centroid keeps the pin near the heavier markers.
		total := float64(cl.count + h.Count)
		cl.sx = (cl.sx*float64(cl.count) + sx*float64(h.Count)) / total
		cl.sy = (cl.sy*float64(cl.count) + sy*float64(h.Count)) / total
		cl.count += h.Count
		if h.LastUpdate.After(cl.last) {
			cl.last = h.LastUpdate
			cl.color = h.Color
		}
		cl.keys = append(cl.keys, key)
	}

	for _, cl := range cells {
		r := 6.0 + math.Log(float64(cl.count)+1.5)*2.5
		selected := false
		if p.hasSelected {
			for _, k := range cl.keys {
				if k == p.selectedKey {
					selected = true
					break
				}
			}
		}
		if selected {
			vector.StrokeCircle(screen, float32(cl.sx), float32(cl.sy), float32(r+selectionRing), 2, color.RGBA{255, 255, 255, 220}, true)
		}
		vector.DrawFilledCircle(screen, float32(cl.sx), float32(cl.sy), float32(r), cl.color, true)
		vector.StrokeCircle(screen, float32(cl.sx), float32(cl.sy), float32(r), 1, color.RGBA{255, 255, 255, 90}, true)
	}
}

func (p *Planar) drawCircles(screen *ebiten.Image) {
	// Large circles first so small ones stay clickable on top.
	ordered := make([]*MarkerHandle, 0, len(p.handles))
	for _, h := range p.handles {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Count > ordered[j].Count })

	for _, h := range ordered {
		sx, sy := p.screenFromLatLon(h.Lat, h.Lon)
		r := p.circleRadiusPx(h)
		if sx < -r || sx > float64(p.width)+r || sy < -r || sy > float64(p.height)+r {
			continue
		}
		fill := h.Color
		fill.A = 110
		vector.DrawFilledCircle(screen, float32(sx), float32(sy), float32(r), fill, true)
		vector.StrokeCircle(screen, float32(sx), float32(sy), float32(r), 1.5, h.Color, true)
		if p.hasSelected && h.Key == p.selectedKey {
			vector.StrokeCircle(screen, float32(sx), float32(sy), float32(r+selectionRing), 2, color.RGBA{255, 255, 255, 220}, true)
		}
	}
}
