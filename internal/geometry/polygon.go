// Package geometry implements the polygon operations the pipeline needs:
// bounds and centroids of watershed features, local UTM zone selection,
// vertex-wise reprojection, WKB encoding for the result store, and masking
// of grids to a polygon.
package geometry

import (
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// Bounds returns the axis-aligned bounding box of a polygon.
func Bounds(p *geom.Polygon) (minX, minY, maxX, maxY float64) {
	b := p.Bounds()
	return b.Min(0), b.Min(1), b.Max(0), b.Max(1)
}

// Centroid returns the area-weighted centroid of the polygon's exterior
// ring by the shoelace formula. Degenerate (zero-area) rings fall back to
// the vertex mean.
func Centroid(p *geom.Polygon) (x, y float64) {
	ring := p.Coords()[0]
	var a, cx, cy float64
	n := len(ring)
	for i := 0; i < n-1; i++ {
		cross := ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
		a += cross
		cx += (ring[i][0] + ring[i+1][0]) * cross
		cy += (ring[i][1] + ring[i+1][1]) * cross
	}
	if a == 0 {
		for _, c := range ring {
			cx += c[0]
			cy += c[1]
		}
		return cx / float64(n), cy / float64(n)
	}
	return cx / (3 * a), cy / (3 * a)
}

// Area returns the planar area of the polygon in squared coordinate units.
func Area(p *geom.Polygon) float64 {
	return p.Area()
}

// MarshalWKB encodes the polygon as little-endian well-known binary for the
// geometry table.
func MarshalWKB(p *geom.Polygon) ([]byte, error) {
	return wkb.Marshal(p, wkb.NDR)
}

// Contains reports whether point (x, y) falls inside the polygon, holes
// excluded, by even-odd ray casting over all rings.
func Contains(p *geom.Polygon, x, y float64) bool {
	inside := false
	for _, ring := range p.Coords() {
		for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
			xi, yi := ring[i][0], ring[i][1]
			xj, yj := ring[j][0], ring[j][1]
			if (yi > y) != (yj > y) &&
				x < (xj-xi)*(y-yi)/(yj-yi)+xi {
				inside = !inside
			}
		}
	}
	return inside
}

// MaskGrid returns a copy of g with cells whose centers fall outside the
// polygon forced to nodata. Cells inside keep their source sample.
func MaskGrid(g *raster.Grid, p *geom.Polygon) *raster.Grid {
	out := raster.Like(g, g.Nodata)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if v == g.Nodata {
				continue
			}
			if x, y := g.CellCenter(r, c); Contains(p, x, y) {
				out.Set(r, c, v)
			}
		}
	}
	return out
}
