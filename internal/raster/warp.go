package raster

import (
	"fmt"
	"math"

	"github.com/im7mortal/UTM"
)

// EPSGForUTM returns the EPSG code string for a WGS84 UTM zone.
func EPSGForUTM(zone int, northern bool) string {
	if northern {
		return fmt.Sprintf("EPSG:326%02d", zone)
	}
	return fmt.Sprintf("EPSG:327%02d", zone)
}

// WarpToUTM resamples a geographic (EPSG:4326) grid onto a UTM-projected
// grid covering the given projected bounding box, by nearest neighbor.
// Nearest neighbor is used for categorical and continuous layers alike so
// land-use codes survive the resample. Each target cell center is inverse
// projected to lat/lon and the containing source cell sampled; targets
// falling outside the source stay nodata.
func WarpToUTM(src *Grid, zone int, northern bool, minX, minY, maxX, maxY, cellSize float64, outNodata float32) (*Grid, error) {
	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxY - minY) / cellSize))
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("degenerate target bounds [%g %g %g %g]", minX, minY, maxX, maxY)
	}
	out := New(rows, cols, minX, minY, cellSize, EPSGForUTM(zone, northern), outNodata)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := out.CellCenter(r, c)
			lat, lon, err := UTM.ToLatLon(x, y, zone, "", northern)
			if err != nil {
				// Out-of-domain cell; leave nodata.
				continue
			}
			sr, sc, ok := src.CellAt(lon, lat)
			if !ok {
				continue
			}
			if v := src.At(sr, sc); v != src.Nodata {
				out.Set(r, c, v)
			}
		}
	}
	return out, nil
}
