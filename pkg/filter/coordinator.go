package filter

import (
	"net/url"
	"time"
)

// MarkerConsumer is anything that renders markers derived from the filtered
// cluster data. The display abstraction satisfies it for whichever renderer
// is active.
type MarkerConsumer interface {
	RefreshMarkers()
}

// SidebarConsumer is the detail panel. It only re-renders when it is visible
// and a location is selected.
type SidebarConsumer interface {
	Visible() bool
	SelectedLocation() (string, bool)
	RefreshRows()
}

// Coordinator is the single place that reacts to filter-model changes and
// fans them out to every consumer. Rapid input is expected to be debounced
// before it reaches the model; the coordinator itself adds none.
type Coordinator struct {
	model   *Model
	display MarkerConsumer
	sidebar SidebarConsumer
	onSync  func() // re-syncs whatever UI reflects the filter state
}

func NewCoordinator(model *Model) *Coordinator {
	c := &Coordinator{model: model}
	model.OnFilterChange(c.apply)
	model.OnColorChange(c.apply)
	return c
}

// Attach wires the fan-out targets. Nil targets are skipped, which lets
// construction order stay cache -> filter -> renderers -> sidebar.
func (c *Coordinator) Attach(display MarkerConsumer, sidebar SidebarConsumer, onSync func()) {
	c.display = display
	c.sidebar = sidebar
	c.onSync = onSync
}

func (c *Coordinator) apply() {
	if c.display != nil {
		c.display.RefreshMarkers()
	}
	if c.sidebar != nil && c.sidebar.Visible() {
		if _, ok := c.sidebar.SelectedLocation(); ok {
			c.sidebar.RefreshRows()
		}
	}
	if c.onSync != nil {
		c.onSync()
	}
}

// TimeFilterParams returns the active window as ISO-8601 query parameters
// for components that still filter server-side.
func (c *Coordinator) TimeFilterParams() url.Values {
	v := url.Values{}
	if !c.model.Enabled() {
		return v
	}
	w := c.model.Window()
	v.Set("time_from", w.From.UTC().Format(time.RFC3339))
	v.Set("time_to", w.To.UTC().Format(time.RFC3339))
	return v
}
