package engine

import (
	"image/color"
	"log"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// Mode names the renderer attached to the visible surface.
type Mode string

const (
	ModePlanar Mode = "planar"
	ModeGlobe  Mode = "globe"
)

// Visualization selects the planar presentation: individual pins grouped
// into density clusters, or aggregated circles sized like the globe disks.
type Visualization string

const (
	VisPins    Visualization = "pins"
	VisCircles Visualization = "circles"
)

// Marker is the mode-independent description of one rendered location.
type Marker struct {
	Key       string // location key
	Lat, Lon  float64
	Count     int
	Color     color.RGBA
	Label     string
	UpdatedAt int64 // unix ms of the newest surviving item, for bookkeeping
}

// Renderer is the capability contract both concrete renderers satisfy. The
// display abstraction owns exactly one active implementation at a time.
type Renderer interface {
	// SetMarkers replaces the desired marker set; implementations diff
	// against their own bookkeeping rather than rebuilding blindly.
	SetMarkers([]Marker)
	AddMarker(Marker)
	ClearMarkers()

	FlyTo(lat, lon float64)
	GetCenter() (lat, lon float64)
	// CameraState exposes the camera in zoom-level units regardless of the
	// renderer's native parameterization; globe altitude converts through
	// ZoomFromAltitude/AltitudeFromZoom.
	CameraState() (lat, lon, zoom float64)
	SetCameraState(lat, lon, zoom float64)

	SetVisualization(Visualization)
	SelectLocation(key string)
	DeselectLocation()

	// Refresh re-derives visuals from the marker registry.
	Refresh()
	Pick(x, y int) (key string, ok bool)
	HandleDrag(dx, dy float64)
	HandleWheel(dy float64)
	Draw(screen *ebiten.Image)
	// SetVisible attaches or detaches the renderer from the surface.
	SetVisible(bool)
}

// Display is the renderer abstraction: one mode-independent API over the
// two concrete renderers, holding exactly one active at a time and
// converting camera state when switching. Construction of each renderer is
// lazy, on first use of its mode.
type Display struct {
	mu sync.Mutex

	mode   Mode
	planar *Planar
	globe  *Globe

	width, height int
	basemap       *Basemap
	vis           Visualization

	// source produces the current desired marker set from the cache and
	// filter; the display owns no data of its own.
	source func() []Marker

	selectedKey string
	hasSelected bool

	onModeChange     []func(Mode)
	onLocationSelect []func(key string, opened bool)
}

// NewDisplay starts in the given mode. source is consulted on every marker
// refresh.
func NewDisplay(width, height int, basemap *Basemap, initial Mode, source func() []Marker) *Display {
	d := &Display{
		mode:    initial,
		width:   width,
		height:  height,
		basemap: basemap,
		vis:     VisPins,
		source:  source,
	}
	d.active() // construct the initial renderer eagerly so the first frame draws
	return d
}

// active returns the renderer for the current mode, constructing it on
// first use. Callers must hold d.mu or be on the construction path.
func (d *Display) active() Renderer {
	switch d.mode {
	case ModeGlobe:
		if d.globe == nil {
			d.globe = NewGlobe(d.width, d.height, d.basemap)
			d.globe.SetVisible(true)
		}
		return d.globe
	default:
		if d.planar == nil {
			d.planar = NewPlanar(d.width, d.height, d.basemap)
			d.planar.SetVisualization(d.vis)
			d.planar.SetVisible(true)
		}
		return d.planar
	}
}

// Mode returns the currently attached renderer's mode.
func (d *Display) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode switches the attached renderer. No-op when already in mode.
// Camera center and the selected location carry over; zoom and altitude
// convert through the fixed invertible formula. Exactly one renderer is
// visible at all times.
func (d *Display) SetMode(mode Mode) {
	d.mu.Lock()
	if mode == d.mode {
		d.mu.Unlock()
		return
	}
	old := d.active()
	lat, lon, zoom := old.CameraState()

	d.mode = mode
	next := d.active()
	next.SetCameraState(lat, lon, zoom)
	next.SetVisualization(d.vis)

	old.SetVisible(false)
	next.SetVisible(true)

	var markers []Marker
	if d.source != nil {
		markers = d.source()
		next.SetMarkers(markers)
	}
	next.Refresh()
	if d.hasSelected {
		next.SelectLocation(d.selectedKey)
		// Center the new renderer on the selection so it stays on screen.
		for _, m := range markers {
			if m.Key == d.selectedKey {
				next.FlyTo(m.Lat, m.Lon)
				break
			}
		}
	}
	fns := append([]func(Mode){}, d.onModeChange...)
	d.mu.Unlock()

	log.Printf("Renderer mode switched to %s (camera %0.3f,%0.3f zoom %0.2f)", mode, lat, lon, zoom)
	for _, fn := range fns {
		fn(mode)
	}
}

// RefreshMarkers pulls the desired marker set from the source and hands it
// to the active renderer, which diffs it against its bookkeeping. This is
// the entry point the filter coordinator and the repaint tick use.
func (d *Display) RefreshMarkers() {
	d.mu.Lock()
	r := d.active()
	src := d.source
	d.mu.Unlock()
	if src != nil {
		r.SetMarkers(src())
	}
	r.Refresh()
}

func (d *Display) AddMarker(m Marker) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.AddMarker(m)
}

func (d *Display) ClearMarkers() {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.ClearMarkers()
}

func (d *Display) FlyTo(lat, lon float64) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.FlyTo(lat, lon)
}

func (d *Display) GetCenter() (float64, float64) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	return r.GetCenter()
}

// SetVisualization switches the planar presentation sub-mode; remembered
// across renderer switches.
func (d *Display) SetVisualization(v Visualization) {
	d.mu.Lock()
	d.vis = v
	r := d.active()
	d.mu.Unlock()
	r.SetVisualization(v)
	r.Refresh()
}

func (d *Display) Visualization() Visualization {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vis
}

// SelectLocation marks the location on the active renderer and records the
// key so a later mode switch restores it. openSidebar is forwarded to the
// subscribers, which include the sidebar panel.
func (d *Display) SelectLocation(key string, openSidebar bool) {
	d.mu.Lock()
	d.selectedKey = key
	d.hasSelected = true
	r := d.active()
	fns := append([]func(string, bool){}, d.onLocationSelect...)
	d.mu.Unlock()
	r.SelectLocation(key)
	for _, fn := range fns {
		fn(key, openSidebar)
	}
}

func (d *Display) DeselectLocation() {
	d.mu.Lock()
	d.hasSelected = false
	d.selectedKey = ""
	r := d.active()
	d.mu.Unlock()
	r.DeselectLocation()
}

// SelectedLocation returns the restored-across-switches selection.
func (d *Display) SelectedLocation() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectedKey, d.hasSelected
}

func (d *Display) OnModeChange(fn func(Mode)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onModeChange = append(d.onModeChange, fn)
}

// OnLocationSelect fires on every selection with whether the sidebar should
// open.
func (d *Display) OnLocationSelect(fn func(key string, opened bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLocationSelect = append(d.onLocationSelect, fn)
}

// Viewport returns the geographic bounding box currently visible, used to
// scope the live-position overlay.
func (d *Display) Viewport() (minLat, maxLat, minLon, maxLon float64) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	switch rr := r.(type) {
	case *Planar:
		return rr.Viewport()
	default:
		lat, lon := r.GetCenter()
		// The globe shows roughly a hemisphere; a generous fixed box keeps
		// the overlay feeds bounded.
		return clampLat(lat - 40), clampLat(lat + 40), wrapLon(lon - 60), wrapLon(lon + 60)
	}
}

// SettleViewport re-rasterizes the active renderer's background; wired to
// the viewport settle debounce.
func (d *Display) SettleViewport() {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	switch rr := r.(type) {
	case *Planar:
		rr.SettleViewport()
	case *Globe:
		rr.SettleViewport()
	}
}

// Project converts a geographic point to screen coordinates on the active
// renderer; visible is false when the point cannot appear (far hemisphere).
func (d *Display) Project(lat, lon float64) (float64, float64, bool) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	switch rr := r.(type) {
	case *Planar:
		return rr.Project(lat, lon)
	case *Globe:
		return rr.Project(lat, lon)
	}
	return 0, 0, false
}

// Pick forwards hit testing to the active renderer.
func (d *Display) Pick(x, y int) (string, bool) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	return r.Pick(x, y)
}

func (d *Display) HandleDrag(dx, dy float64) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.HandleDrag(dx, dy)
}

func (d *Display) HandleWheel(dy float64) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.HandleWheel(dy)
}

func (d *Display) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	r := d.active()
	d.mu.Unlock()
	r.Draw(screen)
}
