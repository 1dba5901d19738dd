package engine

import (
	"log"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/mihasm/news-globe/pkg/cache"
	"github.com/mihasm/news-globe/pkg/filter"
	"github.com/mihasm/news-globe/pkg/utils"
)

const clickSlopPx = 4.0

// MarkerSource derives the desired marker set from the store's filtered
// location aggregates; the color of a location tracks its newest item.
func MarkerSource(store *cache.Store, model *filter.Model) func() []Marker {
	return func() []Marker {
		aggs := store.Aggregate(model.Predicate())
		markers := make([]Marker, 0, len(aggs))
		for i := range aggs {
			a := &aggs[i]
			m := Marker{
				Key:   a.Key,
				Lat:   a.Lat,
				Lon:   a.Lon,
				Count: a.ItemCount,
				Label: a.LocationName,
				Color: filter.DefaultMarkerColor,
			}
			if it, ok := a.MostRecentItem(); ok {
				m.Color = model.ColorForItem(&it)
				if ts, ok := it.Timestamp(); ok {
					m.UpdatedAt = ts.UnixMilli()
				}
			}
			markers = append(markers, m)
		}
		return markers
	}
}

// App is the ebiten.Game gluing input, the display, the panels and the data
// timers together. All mutation happens on the update loop; the data layers
// are themselves synchronized, so callbacks from their timers are safe.
type App struct {
	store   *cache.Store
	model   *filter.Model
	coord   *filter.Coordinator
	display *Display
	sidebar *Sidebar
	overlay *Overlay
	status  *Status

	width, height int

	settle *utils.Debouncer

	dragging     bool
	dragMoved    float64
	lastX, lastY int
}

// NewApp wires the constructed components. Construction order upstream is
// config -> client -> store -> model -> coordinator -> display -> panels.
func NewApp(store *cache.Store, model *filter.Model, coord *filter.Coordinator,
	display *Display, sidebar *Sidebar, overlay *Overlay, status *Status,
	width, height int, viewportSettle time.Duration) *App {

	a := &App{
		store:   store,
		model:   model,
		coord:   coord,
		display: display,
		sidebar: sidebar,
		overlay: overlay,
		status:  status,
		width:   width,
		height:  height,
	}
	a.settle = utils.NewDebouncer(viewportSettle, display.SettleViewport)

	store.OnDataUpdated(func() {
		display.RefreshMarkers()
		sidebar.AutoRefresh()
	})
	display.OnLocationSelect(func(key string, opened bool) {
		if opened {
			sidebar.SelectLocation(key)
		}
	})
	display.OnModeChange(func(m Mode) {
		status.SetMode(m)
		a.settle.Trigger()
	})
	coord.Attach(display, sidebar, nil)
	return a
}

func (a *App) Update() error {
	a.handleKeys()
	a.handleMouse()
	return nil
}

func (a *App) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyM):
		if a.display.Mode() == ModePlanar {
			a.display.SetMode(ModeGlobe)
		} else {
			a.display.SetMode(ModePlanar)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		if a.display.Visualization() == VisPins {
			a.display.SetVisualization(VisCircles)
		} else {
			a.display.SetVisualization(VisPins)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyF):
		a.model.SetEnabled(!a.model.Enabled())
	case inpututil.IsKeyJustPressed(ebiten.KeyG):
		a.model.SetColorCoding(!a.model.ColorCoding())
	case inpututil.IsKeyJustPressed(ebiten.KeyV):
		a.overlay.Toggle()
	case inpututil.IsKeyJustPressed(ebiten.KeyTab):
		if a.sidebar.Visible() {
			a.sidebar.Hide()
		} else if _, ok := a.sidebar.SelectedLocation(); ok {
			a.sidebar.Show()
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		log.Println("Manual refresh requested")
		a.store.FetchNow()
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		a.display.DeselectLocation()
		a.sidebar.Hide()
	}
}

func (a *App) handleMouse() {
	x, y := ebiten.CursorPosition()

	if _, dy := ebiten.Wheel(); dy != 0 {
		if !a.sidebar.Scroll(x, dy) {
			a.display.HandleWheel(dy)
			a.settle.Trigger()
		}
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		a.dragging = true
		a.dragMoved = 0
		a.lastX, a.lastY = x, y
		return
	}

	if a.dragging && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		dx, dy := float64(x-a.lastX), float64(y-a.lastY)
		if dx != 0 || dy != 0 {
			a.dragMoved += math.Hypot(dx, dy)
			// Only pan the map once it is clear this is a drag, and never
			// when the press started over the sidebar.
			if a.dragMoved > clickSlopPx && !a.overSidebar(a.lastX) {
				a.display.HandleDrag(dx, dy)
				a.settle.Trigger()
			}
			a.lastX, a.lastY = x, y
		}
		return
	}

	if a.dragging && inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		a.dragging = false
		if a.dragMoved > clickSlopPx {
			return
		}
		if a.sidebar.ToggleRow(x, y) {
			return
		}
		if key, ok := a.display.Pick(x, y); ok {
			a.display.SelectLocation(key, true)
			return
		}
		a.display.DeselectLocation()
	}
}

func (a *App) overSidebar(x int) bool {
	return a.sidebar.Visible() && float64(x) >= float64(a.width)-sidebarWidth
}

func (a *App) Draw(screen *ebiten.Image) {
	a.display.Draw(screen)
	a.overlay.Draw(screen)
	a.status.Draw(screen)
	a.sidebar.Draw(screen)
}

func (a *App) Layout(int, int) (int, int) {
	return a.width, a.height
}

// Shutdown stops the debounce timers owned by the app.
func (a *App) Shutdown() {
	a.settle.Stop()
}
