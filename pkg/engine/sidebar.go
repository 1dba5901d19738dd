package engine

import (
	"fmt"
	"image/color"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/biter777/countries"
	"github.com/cloudflare/ahocorasick"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/mihasm/news-globe/pkg/api"
	"github.com/mihasm/news-globe/pkg/filter"
	"github.com/mihasm/news-globe/pkg/utils"
)

const (
	sidebarWidth   = 380.0
	rowPadding     = 10.0
	clusterRowH    = 64.0
	itemRowH       = 34.0
	headerH        = 56.0
	maxTitleRunes  = 46
	maxItemRunes   = 50
	sidebarFontPx  = 14.0
	sidebarSmallPx = 11.0
)

var (
	sidebarBg      = color.RGBA{12, 14, 20, 235}
	sidebarLine    = color.RGBA{36, 42, 53, 255}
	rowExpandedBg  = color.RGBA{20, 24, 32, 255}
	textPrimary    = color.RGBA{230, 232, 238, 255}
	textSecondary  = color.RGBA{150, 156, 168, 255}
	highlightColor = color.RGBA{255, 196, 0, 255}
)

// ClusterLister is the slice of the cache store the sidebar reads from.
type ClusterLister interface {
	ClustersForLocation(key string, pred func(*api.Item) bool) []api.Cluster
}

// sidebarRow is the per-cluster bookkeeping record: the last rendered
// snapshot, the member item keys, and the user's expand flag, which
// deliberately survives refresh cycles.
type sidebarRow struct {
	id        string
	snapshot  api.Cluster
	itemKeys  []string
	expanded  bool
	highlight bool
}

// Sidebar renders the per-location cluster list with id-keyed row diffing.
// Rows are kept in a bookkeeping map; re-rendering a cluster that already
// has a row updates it in place so expand/collapse state is preserved.
// Switching locations clears all bookkeeping: expansion state is scoped to
// a location, not global.
type Sidebar struct {
	mu sync.Mutex

	store ClusterLister
	model *filter.Model
	fonts *Fonts

	screenW, screenH int

	visible     bool
	locationKey string
	hasLocation bool
	locationTag string // pretty display name, derived once per selection

	rows  map[string]*sidebarRow
	order []string
	count int // header item total

	scroll float64

	matcher  *ahocorasick.Matcher
	debounce *utils.Debouncer
}

func NewSidebar(store ClusterLister, model *filter.Model, fonts *Fonts, screenW, screenH int, settle time.Duration) *Sidebar {
	s := &Sidebar{
		store:   store,
		model:   model,
		fonts:   fonts,
		screenW: screenW,
		screenH: screenH,
		rows:    make(map[string]*sidebarRow),
	}
	s.debounce = utils.NewDebouncer(settle, s.RefreshRows)
	return s
}

// SetHighlightKeywords rebuilds the watchlist matcher. Matching is
// case-insensitive over cluster title and summary.
func (s *Sidebar) SetHighlightKeywords(keywords []string) {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lowered) == 0 {
		s.matcher = nil
		return
	}
	s.matcher = ahocorasick.NewStringMatcher(lowered)
}

// SelectLocation shows the panel on the given location and builds its rows.
// Selecting a different location discards all previous bookkeeping.
func (s *Sidebar) SelectLocation(key string) {
	s.mu.Lock()
	if s.hasLocation && s.locationKey != key {
		s.rows = make(map[string]*sidebarRow)
		s.order = nil
		s.scroll = 0
	}
	s.locationKey = key
	s.hasLocation = true
	s.visible = true
	s.locationTag = ""
	s.mu.Unlock()
	s.RefreshRows()
}

// Hide closes the panel but keeps the selection for restoration.
func (s *Sidebar) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *Sidebar) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
}

func (s *Sidebar) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Sidebar) SelectedLocation() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationKey, s.hasLocation
}

// AutoRefresh coalesces dataUpdated bursts into one re-render.
func (s *Sidebar) AutoRefresh() {
	s.mu.Lock()
	relevant := s.visible && s.hasLocation
	s.mu.Unlock()
	if relevant {
		s.debounce.Trigger()
	}
}

// RefreshRows re-derives the row set from the store under the active time
// filter. Rows are diffed by cluster id: existing rows update in place and
// keep their expand flag, new ids get fresh rows, ids absent from the
// snapshot are purged.
func (s *Sidebar) RefreshRows() {
	s.mu.Lock()
	if !s.hasLocation {
		s.mu.Unlock()
		return
	}
	key := s.locationKey
	s.mu.Unlock()

	clusters := s.store.ClustersForLocation(key, s.model.Predicate())

	s.mu.Lock()
	defer s.mu.Unlock()
	// The store query runs unlocked; a location switch may have landed in
	// the meantime and these rows belong to the old key.
	if !s.hasLocation || s.locationKey != key {
		return
	}
	seen := make(map[string]struct{}, len(clusters))
	total := 0
	for i := range clusters {
		c := &clusters[i]
		seen[c.ClusterID] = struct{}{}
		total += len(c.Items)
		keys := itemKeys(c.Items)
		if row, ok := s.rows[c.ClusterID]; ok {
			row.snapshot = *c
			row.itemKeys = keys
			row.highlight = s.matches(c)
			continue
		}
		s.rows[c.ClusterID] = &sidebarRow{
			id:        c.ClusterID,
			snapshot:  *c,
			itemKeys:  keys,
			highlight: s.matches(c),
		}
	}
	for id := range s.rows {
		if _, ok := seen[id]; !ok {
			delete(s.rows, id)
		}
	}

	s.order = s.order[:0]
	for id := range s.rows {
		s.order = append(s.order, id)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.rows[s.order[i]].snapshot, s.rows[s.order[j]].snapshot
		return a.LastSeenAt.After(b.LastSeenAt.Time)
	})
	s.count = total
	if s.locationTag == "" && len(clusters) > 0 {
		s.locationTag = prettyLocation(clusters[0].LocationName)
	}
}

// matches must be called with s.mu held or on a fresh cluster copy.
func (s *Sidebar) matches(c *api.Cluster) bool {
	if s.matcher == nil {
		return false
	}
	hay := strings.ToLower(c.Title + " " + c.Summary)
	return len(s.matcher.Match([]byte(hay))) > 0
}

// ToggleRow flips the expand flag of the row at the given screen point.
// Returns true when a row consumed the click.
func (s *Sidebar) ToggleRow(x, y int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visible || float64(x) < float64(s.screenW)-sidebarWidth {
		return false
	}
	rowY := headerH - s.scroll
	for _, id := range s.order {
		row := s.rows[id]
		h := s.rowHeight(row)
		if float64(y) >= rowY && float64(y) < rowY+clusterRowH {
			row.expanded = !row.expanded
			return true
		}
		rowY += h
	}
	// Clicks on the panel background are still consumed so they do not
	// fall through to the map.
	return true
}

// Scroll adjusts the list offset when the cursor is over the panel.
func (s *Sidebar) Scroll(x int, dy float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visible || float64(x) < float64(s.screenW)-sidebarWidth {
		return false
	}
	s.scroll -= dy * 40
	if s.scroll < 0 {
		s.scroll = 0
	}
	if max := s.contentHeight() - float64(s.screenH); s.scroll > max {
		if max < 0 {
			max = 0
		}
		s.scroll = max
	}
	return true
}

func (s *Sidebar) rowHeight(row *sidebarRow) float64 {
	h := clusterRowH
	if row.expanded {
		h += float64(len(row.snapshot.Items)) * itemRowH
	}
	return h
}

func (s *Sidebar) contentHeight() float64 {
	total := headerH
	for _, id := range s.order {
		total += s.rowHeight(s.rows[id])
	}
	return total
}

// Rows exposes the bookkeeping map for tests.
func (s *Sidebar) Rows() map[string]*sidebarRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*sidebarRow, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out
}

// HeaderCount returns the item total shown in the header.
func (s *Sidebar) HeaderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Sidebar) Draw(screen *ebiten.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visible {
		return
	}
	px := float32(float64(s.screenW) - sidebarWidth)
	vector.DrawFilledRect(screen, px, 0, float32(sidebarWidth), float32(s.screenH), sidebarBg, false)
	vector.StrokeRect(screen, px, 0, float32(sidebarWidth), float32(s.screenH), 1, sidebarLine, false)

	// Header: location name and item total under the active window.
	title := s.locationTag
	if title == "" {
		title = s.locationKey
	}
	s.drawText(screen, truncate(title, maxTitleRunes), s.fonts.face(sidebarFontPx+2), float64(px)+rowPadding, 12, textPrimary)
	s.drawText(screen, fmt.Sprintf("%d items", s.count), s.fonts.mono(sidebarSmallPx), float64(px)+rowPadding, 34, textSecondary)
	vector.StrokeLine(screen, px, float32(headerH), px+float32(sidebarWidth), float32(headerH), 1, sidebarLine, false)

	if len(s.order) == 0 {
		s.drawText(screen, "No events in the selected window", s.fonts.face(sidebarFontPx), float64(px)+rowPadding, headerH+24, textSecondary)
		return
	}

	rowY := headerH - s.scroll
	for _, id := range s.order {
		row := s.rows[id]
		h := s.rowHeight(row)
		if rowY+h < headerH || rowY > float64(s.screenH) {
			rowY += h
			continue
		}
		s.drawClusterRow(screen, row, float64(px), rowY)
		rowY += h
	}
}

func (s *Sidebar) drawClusterRow(screen *ebiten.Image, row *sidebarRow, px, y float64) {
	c := &row.snapshot
	if row.expanded {
		vector.DrawFilledRect(screen, float32(px), float32(y), float32(sidebarWidth), float32(s.rowHeight(row)), rowExpandedBg, false)
	}
	if row.highlight {
		vector.DrawFilledRect(screen, float32(px), float32(y), 4, float32(clusterRowH), highlightColor, false)
	}

	arrow := "+"
	if row.expanded {
		arrow = "-"
	}
	s.drawText(screen, arrow, s.fonts.mono(sidebarFontPx), px+rowPadding, y+10, textSecondary)
	s.drawText(screen, truncate(c.Title, maxTitleRunes), s.fonts.face(sidebarFontPx), px+rowPadding+16, y+8, textPrimary)

	meta := fmt.Sprintf("%d items · %s", len(c.Items), relTime(c.LastSeenAt.Time))
	if len(c.Tags) > 0 {
		meta += " · " + truncate(strings.Join(c.Tags, ","), 24)
	}
	s.drawText(screen, meta, s.fonts.mono(sidebarSmallPx), px+rowPadding+16, y+30, textSecondary)
	s.drawText(screen, truncate(c.Summary, maxTitleRunes+8), s.fonts.face(sidebarSmallPx), px+rowPadding+16, y+45, textSecondary)
	vector.StrokeLine(screen, float32(px), float32(y+clusterRowH), float32(px+sidebarWidth), float32(y+clusterRowH), 1, sidebarLine, false)

	if !row.expanded {
		return
	}
	itemY := y + clusterRowH
	for i := range c.Items {
		it := &c.Items[i]
		label := it.Title
		if label == "" {
			label = it.Text
		}
		col := s.model.ColorForItem(it)
		vector.DrawFilledCircle(screen, float32(px+rowPadding+20), float32(itemY+itemRowH/2), 3, col, true)
		s.drawText(screen, truncate(label, maxItemRunes), s.fonts.face(sidebarSmallPx), px+rowPadding+30, itemY+4, textPrimary)
		src := it.Source
		if ts, ok := it.Timestamp(); ok {
			src += " · " + relTime(ts)
		}
		s.drawText(screen, src, s.fonts.mono(sidebarSmallPx-1), px+rowPadding+30, itemY+18, textSecondary)
		itemY += itemRowH
	}
}

func (s *Sidebar) drawText(screen *ebiten.Image, str string, face *text.GoTextFace, x, y float64, c color.RGBA) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, str, face, op)
}

func itemKeys(items []api.Item) []string {
	keys := make([]string, 0, len(items))
	for i := range items {
		k, _ := items[i].Key()
		keys = append(keys, k)
	}
	return keys
}

func truncate(str string, n int) string {
	r := []rune(strings.TrimSpace(str))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func relTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// prettyLocation title-cases the location key and abbreviates a trailing
// country to its ISO code: "paris, france" -> "Paris, FR".
func prettyLocation(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	parts := strings.Split(name, ",")
	for i, p := range parts {
		parts[i] = titleCase(strings.TrimSpace(p))
	}
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if c := countries.ByName(last); c != countries.Unknown {
			parts[len(parts)-1] = c.Alpha2()
		}
	}
	return strings.Join(parts, ", ")
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
