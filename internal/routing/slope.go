package routing

import (
	"math"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// Slope computes per-cell terrain slope as rise over run by central
// difference, with edge rows and columns replicated. A neighbor that is
// nodata is substituted by the center cell, degrading gracefully to a
// one-sided difference. Output is nodata wherever the DEM is.
func Slope(dem *raster.Grid, outNodata float32) *raster.Grid {
	out := raster.Like(dem, outNodata)
	zAt := func(r, c int, center float32) float64 {
		if r < 0 {
			r = 0
		}
		if r >= dem.Rows {
			r = dem.Rows - 1
		}
		if c < 0 {
			c = 0
		}
		if c >= dem.Cols {
			c = dem.Cols - 1
		}
		v := dem.At(r, c)
		if v == dem.Nodata {
			return float64(center)
		}
		return float64(v)
	}
	for r := 0; r < dem.Rows; r++ {
		for c := 0; c < dem.Cols; c++ {
			z := dem.At(r, c)
			if z == dem.Nodata {
				continue
			}
			dzdx := (zAt(r, c+1, z) - zAt(r, c-1, z)) / (2 * dem.CellSize)
			dzdy := (zAt(r+1, c, z) - zAt(r-1, c, z)) / (2 * dem.CellSize)
			out.Set(r, c, float32(math.Sqrt(dzdx*dzdx+dzdy*dzdy)))
		}
	}
	return out
}
