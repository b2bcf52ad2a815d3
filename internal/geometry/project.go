package geometry

import (
	"fmt"
	"math"

	"github.com/im7mortal/UTM"
	geom "github.com/twpayne/go-geom"
)

// UTMZone selects the UTM zone and hemisphere for a WGS84 point, the
// locally appropriate equal-distance projection for a watershed centroid.
func UTMZone(lon, lat float64) (zone int, northern bool) {
	zone = int(math.Floor((lon+180)/6))%60 + 1
	return zone, lat > 0
}

// ReprojectToUTM transforms a WGS84 polygon into the given UTM zone by
// projecting every vertex. A vertex the transform rejects (latitude out of
// the UTM domain) or that projects into a different zone than requested
// makes the whole geometry unprojectable; the error is fatal for the
// owning watershed only.
func ReprojectToUTM(p *geom.Polygon, zone int, northern bool) (*geom.Polygon, error) {
	src := p.Coords()
	dst := make([][]geom.Coord, len(src))
	for ri, ring := range src {
		dst[ri] = make([]geom.Coord, len(ring))
		for vi, coord := range ring {
			lon, lat := coord[0], coord[1]
			easting, northing, vZone, _, err := UTM.FromLatLon(lat, lon, northern)
			if err != nil {
				return nil, fmt.Errorf("projecting vertex (%g, %g): %w", lon, lat, err)
			}
			if vZone != zone {
				return nil, fmt.Errorf("vertex (%g, %g) projects into zone %d, not %d", lon, lat, vZone, zone)
			}
			dst[ri][vi] = geom.Coord{easting, northing}
		}
	}
	out := geom.NewPolygon(geom.XY)
	if _, err := out.SetCoords(dst); err != nil {
		return nil, fmt.Errorf("assembling projected polygon: %w", err)
	}
	return out, nil
}
