package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sort"

	geojson "github.com/paulmach/go.geojson"

	"github.com/mihasm/news-globe/pkg/utils"
)

// WorldGeoJSONURL is the landmass outline both renderers rasterize. It is
// downloaded once and served from the data directory afterwards.
const WorldGeoJSONURL = "https://raw.githubusercontent.com/johan/world.geo.json/master/countries.geo.json"

var (
	oceanColor   = color.RGBA{8, 10, 15, 255}
	landColor    = color.RGBA{26, 29, 35, 255}
	outlineColor = color.RGBA{36, 42, 53, 255}
)

// ProjectFunc maps lat/lon to pixel coordinates; visible=false drops the
// point (far side of the globe, outside the viewport).
type ProjectFunc func(lat, lon float64) (x, y float64, visible bool)

// Basemap holds the parsed world polygons and rasterizes them for either
// renderer's projection. Rasterization is CPU-side scanline fill, the same
// approach as a static background: cheap enough to re-run on the viewport
// settle debounce, far too slow for per-frame use.
type Basemap struct {
	fc *geojson.FeatureCollection
}

// LoadBasemap fetches (or reuses) the world outline in cacheDir.
func LoadBasemap(cacheDir string) (*Basemap, error) {
	r, err := utils.GetCachedReader(WorldGeoJSONURL, cacheDir, "[BASEMAP]")
	if err != nil {
		return nil, fmt.Errorf("fetching basemap: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading basemap: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing basemap: %w", err)
	}
	return &Basemap{fc: fc}, nil
}

// NewBasemapFromCollection wraps an already-parsed collection; tests use it.
func NewBasemapFromCollection(fc *geojson.FeatureCollection) *Basemap {
	return &Basemap{fc: fc}
}

// Render rasterizes the landmass into a width x height image under project.
func (b *Basemap) Render(width, height int, project ProjectFunc) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{oceanColor}, image.Point{}, draw.Src)
	if b == nil || b.fc == nil {
		return img
	}
	for _, f := range b.fc.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.IsPolygon() {
			fillPolygon(img, width, height, f.Geometry.Polygon, project, landColor)
			for _, ring := range f.Geometry.Polygon {
				drawRing(img, width, height, ring, project, outlineColor)
			}
		} else if f.Geometry.IsMultiPolygon() {
			for _, poly := range f.Geometry.MultiPolygon {
				fillPolygon(img, width, height, poly, project, landColor)
				for _, ring := range poly {
					drawRing(img, width, height, ring, project, outlineColor)
				}
			}
		}
	}
	return img
}

func fillPolygon(img *image.RGBA, w, h int, rings [][][]float64, project ProjectFunc, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	type point struct{ x, y float64 }
	projected := make([][]point, 0, len(rings))
	minY, maxY := float64(h), 0.0
	for _, ring := range rings {
		pts := make([]point, 0, len(ring))
		for _, p := range ring {
			x, y, ok := project(p[1], p[0])
			if !ok {
				continue
			}
			pts = append(pts, point{x, y})
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
		if len(pts) >= 3 {
			projected = append(projected, pts)
		}
	}
	if len(projected) == 0 {
		return
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= h {
			continue
		}
		var nodes []int
		fy := float64(y)
		for _, ring := range projected {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= w {
				xe = w - 1
			}
			for x := xs; x < xe; x++ {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
			}
		}
	}
}

func drawRing(img *image.RGBA, w, h int, coords [][]float64, project ProjectFunc, c color.RGBA) {
	for i := 0; i < len(coords)-1; i++ {
		x1, y1, ok1 := project(coords[i][1], coords[i][0])
		x2, y2, ok2 := project(coords[i+1][1], coords[i+1][0])
		if !ok1 || !ok2 {
			continue
		}
		drawLine(img, w, h, int(x1), int(y1), int(x2), int(y2), c)
	}
}

// drawLine is plain Bresenham straight into the pixel buffer.
func drawLine(img *image.RGBA, w, h, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if x1 >= 0 && x1 < w && y1 >= 0 && y1 < h {
			off := y1*img.Stride + x1*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
