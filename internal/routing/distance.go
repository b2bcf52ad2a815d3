package routing

import "github.com/mesh-intelligence/ndrbatch/internal/raster"

// DistanceToChannel computes, for every valid cell, the accumulated value
// along its D8 flow path down to the nearest channel cell. Channel cells
// are 0. With a nil weight grid the accumulated value is path length in
// cell units (diagonal steps count sqrt 2); a weight grid replaces each
// cell's step contribution with its own weight. Cells whose flow path
// leaves the grid without reaching a channel have no defined distance and
// stay nodata. Each cell is resolved once from its already-resolved
// downslope neighbor, so shared sub-paths are never retraced.
func DistanceToChannel(fd, channel *raster.Grid, weight *raster.Grid, outNodata float32) *raster.Grid {
	out := raster.Like(fd, outNodata)
	down := Downstream(fd)
	order := DownstreamOrder(fd, down)

	const unresolved = -1.0
	dist := make([]float64, len(down))
	for i := range dist {
		dist[i] = unresolved
	}

	for _, i := range order {
		if channel.Data[i] == 1 {
			dist[i] = 0
			continue
		}
		j := down[i]
		if j < 0 || dist[j] == unresolved {
			continue
		}
		var step float64
		if weight == nil {
			step = dlen[int(fd.Data[i])]
		} else if w := weight.Data[i]; w != weight.Nodata {
			step = float64(w)
		} else {
			continue
		}
		dist[i] = step + dist[j]
	}

	for _, i := range order {
		if dist[i] != unresolved {
			out.Data[i] = float32(dist[i])
		}
	}
	return out
}
