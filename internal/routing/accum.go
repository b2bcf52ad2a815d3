package routing

import "github.com/mesh-intelligence/ndrbatch/internal/raster"

// FlowAccumulation sums contributing weight along the flow field. With a
// nil weight grid every valid cell contributes 1, so each cell's value is
// the count of cells draining through it, itself included — accumulation
// is therefore at least 1 on every valid cell by construction. A weight
// grid replaces the per-cell contribution (nodata weight contributes 0).
func FlowAccumulation(fd *raster.Grid, weight *raster.Grid, outNodata float32) *raster.Grid {
	out := raster.Like(fd, outNodata)
	down := Downstream(fd)
	order := DownstreamOrder(fd, down)

	acc := make([]float64, len(down))
	for _, i := range order {
		if weight == nil {
			acc[i] += 1
		} else if w := weight.Data[i]; w != weight.Nodata {
			acc[i] += float64(w)
		}
	}
	// Accumulate upstream-first: reverse downstream order.
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		if j := down[i]; j >= 0 {
			acc[j] += acc[i]
		}
	}
	for _, i := range order {
		out.Data[i] = float32(acc[i])
	}
	return out
}
