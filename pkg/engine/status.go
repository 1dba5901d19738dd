package engine

import (
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/mihasm/news-globe/pkg/cache"
	"github.com/mihasm/news-globe/pkg/filter"
)

// fetchState is the lifecycle the status panel mirrors.
type fetchState int

const (
	fetchIdle fetchState = iota
	fetchRunning
	fetchOK
	fetchFailed
)

var (
	statusBg    = color.RGBA{0, 0, 0, 100}
	statusOK    = color.RGBA{0, 191, 255, 255}
	statusWarn  = color.RGBA{255, 196, 0, 255}
	statusError = color.RGBA{255, 80, 60, 255}
)

// Status renders the top-left panel: fetch lifecycle, snapshot totals,
// active renderer mode, filter window, overlay counts and the ambient track.
// It subscribes to the store once at construction and only ever mirrors
// state; it owns no data.
type Status struct {
	mu sync.Mutex

	store   *cache.Store
	model   *filter.Model
	overlay *Overlay
	fonts   *Fonts

	state       fetchState
	lastError   string
	lastSuccess time.Time
	lastCount   int

	locations  int
	items      int
	mode       Mode
	nowPlaying string
	nowArtist  string
}

func NewStatus(store *cache.Store, model *filter.Model, overlay *Overlay, fonts *Fonts) *Status {
	s := &Status{
		store:   store,
		model:   model,
		overlay: overlay,
		fonts:   fonts,
		mode:    ModePlanar,
	}
	store.OnFetchStarted(func() {
		s.mu.Lock()
		s.state = fetchRunning
		s.mu.Unlock()
	})
	store.OnFetchCompleted(func(count int) {
		s.mu.Lock()
		s.state = fetchOK
		s.lastSuccess = time.Now()
		s.lastCount = count
		s.lastError = ""
		s.mu.Unlock()
	})
	store.OnFetchError(func(err error) {
		s.mu.Lock()
		s.state = fetchFailed
		s.lastError = err.Error()
		s.mu.Unlock()
	})
	store.OnSnapshotRefresh(s.refreshTotals)
	return s
}

// refreshTotals recomputes location and item totals under the active filter;
// wired to the slow snapshot tick, not the repaint tick.
func (s *Status) refreshTotals() {
	aggs := s.store.Aggregate(s.model.Predicate())
	items := 0
	for _, a := range aggs {
		items += a.ItemCount
	}
	s.mu.Lock()
	s.locations = len(aggs)
	s.items = items
	s.mu.Unlock()
}

// SetMode records the active renderer mode for display.
func (s *Status) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// SetNowPlaying records the ambient audio track shown in the panel.
func (s *Status) SetNowPlaying(title, artist string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowPlaying = title
	s.nowArtist = artist
}

// State returns the fetch lifecycle for tests.
func (s *Status) State() (running bool, failed bool, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == fetchRunning, s.state == fetchFailed, s.lastError
}

func (s *Status) Draw(screen *ebiten.Image) {
	s.mu.Lock()
	state := s.state
	lastSuccess, lastCount, lastError := s.lastSuccess, s.lastCount, s.lastError
	locations, items := s.locations, s.items
	mode := s.mode
	song, artist := s.nowPlaying, s.nowArtist
	s.mu.Unlock()

	const margin, fontSize = 16.0, 13.0
	boxW, lineH := 300.0, fontSize+8.0

	lines := make([]struct {
		text  string
		color color.RGBA
	}, 0, 8)
	add := func(text string, c color.RGBA) {
		lines = append(lines, struct {
			text  string
			color color.RGBA
		}{text, c})
	}

	switch state {
	case fetchRunning:
		add("FETCHING...", statusWarn)
	case fetchFailed:
		add("FETCH FAILED", statusError)
		add(truncate(lastError, 40), statusError)
	case fetchOK:
		add(fmt.Sprintf("OK · %d clusters · %s", lastCount, relTime(lastSuccess)), statusOK)
	default:
		add("WAITING", statusWarn)
	}
	if s.store.Stale() {
		add("STALE SNAPSHOT (from last run)", statusWarn)
	}
	add(fmt.Sprintf("%d locations · %d items", locations, items), textPrimary)
	modeLine := fmt.Sprintf("mode: %s", mode)
	if s.model.Enabled() {
		w := s.model.Window()
		modeLine += fmt.Sprintf(" · window %s", w.To.Sub(w.From).Round(time.Hour))
	}
	add(modeLine, textSecondary)
	if s.overlay != nil && s.overlay.Enabled() {
		vessels, aircraft := s.overlay.Counts()
		add(fmt.Sprintf("overlay: %d vessels · %d aircraft", vessels, aircraft), textSecondary)
	}
	if song != "" {
		np := song
		if artist != "" {
			np += " - " + artist
		}
		add("NOW PLAYING: "+truncate(np, 36), textSecondary)
	}
	add(time.Now().UTC().Format("15:04:05 UTC"), textSecondary)

	boxH := float64(len(lines))*lineH + 16
	vector.DrawFilledRect(screen, margin, margin, float32(boxW), float32(boxH), statusBg, false)
	vector.StrokeRect(screen, margin, margin, float32(boxW), float32(boxH), 1, sidebarLine, false)
	vector.DrawFilledRect(screen, margin, margin, 4, float32(boxH), statusOK, false)

	face := s.fonts.mono(fontSize)
	y := margin + 10.0
	for _, ln := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(margin+14, y)
		op.ColorScale.ScaleWithColor(ln.color)
		text.Draw(screen, ln.text, face, op)
		y += lineH
	}
}
