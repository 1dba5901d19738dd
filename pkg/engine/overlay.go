package engine

import (
	"context"
	"image/color"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/mihasm/news-globe/pkg/api"
	"github.com/mihasm/news-globe/pkg/utils"
)

const overlayFetchTimeout = 10 * time.Second

var (
	vesselColor   = color.RGBA{64, 200, 255, 255}
	aircraftColor = color.RGBA{255, 220, 80, 255}
)

// VehicleSource is the slice of the API client the overlay consumes; tests
// substitute it.
type VehicleSource interface {
	AIS(ctx context.Context, box api.BBox) ([]api.Vehicle, error)
	ADSB(ctx context.Context, box api.BBox) ([]api.Vehicle, error)
}

// vehicleRecord is the per-id bookkeeping entry. Records survive refreshes
// for ids still present in the feed; only position and heading move.
type vehicleRecord struct {
	api.Vehicle
	FirstSeen time.Time
	LastSeen  time.Time
}

// Overlay renders live AIS vessel and ADS-B aircraft positions scoped to
// the visible viewport. Each feed failure is logged and leaves the previous
// positions on screen; the feeds are independent, one failing does not
// blank the other.
type Overlay struct {
	mu sync.Mutex

	source  VehicleSource
	display *Display

	enabled  bool
	vessels  map[string]*vehicleRecord
	aircraft map[string]*vehicleRecord

	task       *utils.Task
	inFlight   bool
	lastVessel time.Time
	lastPlane  time.Time
}

func NewOverlay(source VehicleSource, display *Display) *Overlay {
	return &Overlay{
		source:   source,
		display:  display,
		vessels:  make(map[string]*vehicleRecord),
		aircraft: make(map[string]*vehicleRecord),
	}
}

// Start launches the repeating fetch. The overlay starts disabled; it only
// polls while enabled.
func (o *Overlay) Start(every time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.task != nil {
		return
	}
	o.task = utils.Repeat(every, o.fetch)
}

func (o *Overlay) Stop() {
	o.mu.Lock()
	t := o.task
	o.task = nil
	o.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// Toggle flips the overlay and kicks an immediate fetch on enable. Disabling
// clears both vehicle sets.
func (o *Overlay) Toggle() bool {
	o.mu.Lock()
	o.enabled = !o.enabled
	on := o.enabled
	t := o.task
	if !on {
		o.vessels = make(map[string]*vehicleRecord)
		o.aircraft = make(map[string]*vehicleRecord)
	}
	o.mu.Unlock()
	if on && t != nil {
		t.Kick()
	}
	log.Printf("Vehicle overlay enabled=%v", on)
	return on
}

func (o *Overlay) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Counts returns the current vessel and aircraft totals for the status bar.
func (o *Overlay) Counts() (vessels, aircraft int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.vessels), len(o.aircraft)
}

// fetch polls both feeds for the current viewport. At most one fetch runs
// at a time; an overlapping tick is dropped.
func (o *Overlay) fetch() {
	o.mu.Lock()
	if !o.enabled || o.inFlight {
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	minLat, maxLat, minLon, maxLon := o.display.Viewport()
	box := api.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	if err := box.Validate(); err != nil {
		// Viewports crossing the antimeridian come back with min>max lon;
		// skip the poll rather than send a box the backend rejects.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), overlayFetchTimeout)
	defer cancel()

	if vessels, err := o.source.AIS(ctx, box); err != nil {
		log.Printf("AIS fetch failed: %v", err)
	} else {
		o.applyFeed(vessels, api.VehicleVessel)
	}
	if planes, err := o.source.ADSB(ctx, box); err != nil {
		log.Printf("ADS-B fetch failed: %v", err)
	} else {
		o.applyFeed(planes, api.VehicleAircraft)
	}
}

// applyFeed diffs one feed's results into its record map keyed by vehicle
// id: surviving ids update in place, new ids appear, absent ids are purged.
func (o *Overlay) applyFeed(vehicles []api.Vehicle, kind api.VehicleKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	records := o.vessels
	if kind == api.VehicleAircraft {
		records = o.aircraft
	}
	now := time.Now()
	seen := make(map[string]struct{}, len(vehicles))
	for _, v := range vehicles {
		seen[v.ID] = struct{}{}
		if rec, ok := records[v.ID]; ok {
			rec.Vehicle = v
			rec.LastSeen = now
			continue
		}
		records[v.ID] = &vehicleRecord{Vehicle: v, FirstSeen: now, LastSeen: now}
	}
	for id := range records {
		if _, ok := seen[id]; !ok {
			delete(records, id)
		}
	}
	if kind == api.VehicleVessel {
		o.lastVessel = now
	} else {
		o.lastPlane = now
	}
}

// Vessels exposes the vessel bookkeeping map for tests.
func (o *Overlay) Vessels() map[string]*vehicleRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*vehicleRecord, len(o.vessels))
	for k, v := range o.vessels {
		out[k] = v
	}
	return out
}

// Aircraft exposes the aircraft bookkeeping map for tests.
func (o *Overlay) Aircraft() map[string]*vehicleRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*vehicleRecord, len(o.aircraft))
	for k, v := range o.aircraft {
		out[k] = v
	}
	return out
}

func (o *Overlay) Draw(screen *ebiten.Image) {
	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return
	}
	vessels := make([]api.Vehicle, 0, len(o.vessels))
	for _, r := range o.vessels {
		vessels = append(vessels, r.Vehicle)
	}
	aircraft := make([]api.Vehicle, 0, len(o.aircraft))
	for _, r := range o.aircraft {
		aircraft = append(aircraft, r.Vehicle)
	}
	o.mu.Unlock()

	w, h := screen.Bounds().Dx(), screen.Bounds().Dy()
	for _, v := range vessels {
		sx, sy, ok := o.display.Project(v.Lat, v.Lon)
		if !ok || sx < 0 || sx > float64(w) || sy < 0 || sy > float64(h) {
			continue
		}
		drawSquare(screen, sx, sy, 4, v.Heading, vesselColor)
	}
	for _, v := range aircraft {
		sx, sy, ok := o.display.Project(v.Lat, v.Lon)
		if !ok || sx < 0 || sx > float64(w) || sy < 0 || sy > float64(h) {
			continue
		}
		drawTriangle(screen, sx, sy, 6, v.Heading, aircraftColor)
	}
}

// drawSquare renders a heading-rotated square marker for vessels.
func drawSquare(screen *ebiten.Image, cx, cy, half, headingDeg float64, c color.RGBA) {
	rad := headingDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	corners := [4][2]float64{{-half, -half}, {half, -half}, {half, half}, {-half, half}}
	var path vector.Path
	for i, p := range corners {
		x := cx + p[0]*cos - p[1]*sin
		y := cy + p[0]*sin + p[1]*cos
		if i == 0 {
			path.MoveTo(float32(x), float32(y))
		} else {
			path.LineTo(float32(x), float32(y))
		}
	}
	path.Close()
	fillPath(screen, &path, c)
}

// drawTriangle renders a heading-pointed triangle marker for aircraft.
// Heading 0 points north (up).
func drawTriangle(screen *ebiten.Image, cx, cy, size, headingDeg float64, c color.RGBA) {
	rad := headingDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	pts := [3][2]float64{{0, -size}, {size * 0.6, size}, {-size * 0.6, size}}
	var path vector.Path
	for i, p := range pts {
		x := cx + p[0]*cos - p[1]*sin
		y := cy + p[0]*sin + p[1]*cos
		if i == 0 {
			path.MoveTo(float32(x), float32(y))
		} else {
			path.LineTo(float32(x), float32(y))
		}
	}
	path.Close()
	fillPath(screen, &path, c)
}

var whitePixel = func() *ebiten.Image {
	img := ebiten.NewImage(1, 1)
	img.Fill(color.White)
	return img
}()

func fillPath(screen *ebiten.Image, path *vector.Path, c color.RGBA) {
	vs, is := path.AppendVerticesAndIndicesForFilling(nil, nil)
	for i := range vs {
		vs[i].ColorR = float32(c.R) / 255
		vs[i].ColorG = float32(c.G) / 255
		vs[i].ColorB = float32(c.B) / 255
		vs[i].ColorA = float32(c.A) / 255
	}
	op := &ebiten.DrawTrianglesOptions{AntiAlias: true}
	screen.DrawTriangles(vs, is, whitePixel, op)
}
