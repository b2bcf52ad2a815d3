package transport

import (
	"math"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
	"github.com/mesh-intelligence/ndrbatch/internal/routing"
)

// DownstreamRetEff traces, for every cell, the retention accumulated along
// its D8 flow path down to the nearest channel cell, combining each
// traversed cell's retention efficiency with an exponential distance decay
// governed by the retention length:
//
//	s_i    = exp(-5 * d_i / retLen)
//	eff'_i = eff'_down * s_i + eff_i * (1 - s_i)
//
// with eff' = 0 on channel cells, where d_i is the downstream step length
// of cell i. Cells are processed in downstream-first topological order over
// the flow DAG so each cell reuses its downslope neighbor's already
// computed value: one memo lookup per cell, never a per-cell retrace.
// Cells whose flow path leaves the grid without reaching a channel stay
// nodata, as do cells with no efficiency value.
func DownstreamRetEff(fd, channel, eff *raster.Grid, retLen float64, outNodata float32) *raster.Grid {
	out := raster.Like(fd, outNodata)
	down := routing.Downstream(fd)
	order := routing.DownstreamOrder(fd, down)

	const unresolved = -1.0
	memo := make([]float64, len(down))
	for i := range memo {
		memo[i] = unresolved
	}

	for _, i := range order {
		if channel.Data[i] == 1 {
			memo[i] = 0
			continue
		}
		j := down[i]
		if j < 0 || memo[j] == unresolved {
			continue
		}
		e := eff.Data[i]
		if e == eff.Nodata {
			continue
		}
		s := math.Exp(-5 * routing.StepLength(fd, i) / retLen)
		memo[i] = memo[j]*s + float64(e)*(1-s)
	}

	for _, i := range order {
		if memo[i] != unresolved {
			out.Data[i] = float32(memo[i])
		}
	}
	return out
}
