// Package filter holds the time-window and color-gradient model that every
// rendering consumer queries, and the coordinator that fans its changes out.
package filter

import (
	"fmt"
	"image/color"
	"log"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mihasm/news-globe/pkg/api"
)

// TimeRange is a half-configured window; From must precede To.
type TimeRange struct {
	From, To time.Time
}

// Gradient is a two-stop color ramp over a time range. Position 0 maps to
// From (oldest), 1 to To (newest).
type Gradient struct {
	From, To colorful.Color
}

// DefaultMarkerColor is used whenever color coding is off or an item carries
// no usable timestamp.
var DefaultMarkerColor = color.RGBA{R: 0, G: 191, B: 255, A: 255}

// Model answers "is this item in range" and "what color for this time".
// It is independent of rendering; consumers subscribe for change fan-out
// through the Coordinator.
type Model struct {
	mu          sync.Mutex
	window      TimeRange
	gradient    Gradient
	enabled     bool
	colorCoding bool

	onFilterChange []func()
	onColorChange  []func()
}

// NewModel builds a model with the given trailing window ending now.
func NewModel(window time.Duration, from, to string) *Model {
	now := time.Now().UTC()
	m := &Model{
		window:      TimeRange{From: now.Add(-window), To: now},
		colorCoding: true,
	}
	m.gradient.From, m.gradient.To = mustColor(from, "#2040c0"), mustColor(to, "#ff4020")
	return m
}

func mustColor(hex, fallback string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		log.Printf("Invalid gradient color %q, using %s", hex, fallback)
		c, _ = colorful.Hex(fallback)
	}
	return c
}

// OnFilterChange registers a callback fired after every accepted mutation of
// the window or the enabled flag.
func (m *Model) OnFilterChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFilterChange = append(m.onFilterChange, fn)
}

// OnColorChange registers a callback fired after every gradient or
// color-coding mutation.
func (m *Model) OnColorChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onColorChange = append(m.onColorChange, fn)
}

// SetTimeRange replaces the window. A range with from >= to is rejected: the
// previous window stays, the error is logged and returned.
func (m *Model) SetTimeRange(from, to time.Time) error {
	if !from.Before(to) {
		err := fmt.Errorf("invalid time range: from %s >= to %s", from, to)
		log.Printf("Rejected filter mutation: %v", err)
		return err
	}
	m.mu.Lock()
	m.window = TimeRange{From: from, To: to}
	fns := append([]func(){}, m.onFilterChange...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

// SetEnabled toggles time filtering. When off, every item is in range.
func (m *Model) SetEnabled(on bool) {
	m.mu.Lock()
	if m.enabled == on {
		m.mu.Unlock()
		return
	}
	m.enabled = on
	fns := append([]func(){}, m.onFilterChange...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetColorCoding toggles gradient coloring. When off, ColorForTime returns
// the fixed default.
func (m *Model) SetColorCoding(on bool) {
	m.mu.Lock()
	if m.colorCoding == on {
		m.mu.Unlock()
		return
	}
	m.colorCoding = on
	fns := append([]func(){}, m.onColorChange...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetGradient replaces both gradient stops.
func (m *Model) SetGradient(from, to colorful.Color) {
	m.mu.Lock()
	m.gradient = Gradient{From: from, To: to}
	fns := append([]func(){}, m.onColorChange...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Model) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Model) ColorCoding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colorCoding
}

func (m *Model) Window() TimeRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

// ItemInRange reports whether the item passes the active time filter.
// Filtering off admits everything; an item with no timestamp is excluded
// while filtering is on; otherwise the test is inclusive on both bounds.
func (m *Model) ItemInRange(it *api.Item) bool {
	m.mu.Lock()
	enabled, w := m.enabled, m.window
	m.mu.Unlock()
	if !enabled {
		return true
	}
	ts, ok := it.Timestamp()
	if !ok {
		return false
	}
	return !ts.Before(w.From) && !ts.After(w.To)
}

// Predicate returns ItemInRange as a free function for cache queries.
func (m *Model) Predicate() func(*api.Item) bool {
	return m.ItemInRange
}

// ColorForTime maps a timestamp onto the gradient. The position is clamped
// to [0,1]; a degenerate window (to <= from) yields the from-color. The
// blend runs in Lab space so the perceived ramp stays even.
func (m *Model) ColorForTime(ts time.Time) color.RGBA {
	m.mu.Lock()
	coding, w, g := m.colorCoding, m.window, m.gradient
	m.mu.Unlock()
	if !coding {
		return DefaultMarkerColor
	}
	span := w.To.Sub(w.From)
	if span <= 0 {
		return toRGBA(g.From)
	}
	pos := float64(ts.Sub(w.From)) / float64(span)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return toRGBA(g.From.BlendLab(g.To, pos).Clamped())
}

// ColorForItem colors an item by its effective timestamp, falling back to
// the default for items without one.
func (m *Model) ColorForItem(it *api.Item) color.RGBA {
	ts, ok := it.Timestamp()
	if !ok {
		return DefaultMarkerColor
	}
	return m.ColorForTime(ts)
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
