// Package routing implements the D8 raster routing primitives the
// transport model consumes: depression filling, flow direction, weighted
// flow accumulation, downstream distance to channel, and slope.
package routing

import "github.com/mesh-intelligence/ndrbatch/internal/raster"

// D8 neighbor offsets, clockwise from east. The flow-direction grid stores
// the index into this table; a cell's downslope neighbor is cell+offset.
var (
	drow = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	dcol = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	// dlen is the center-to-center distance of each direction in cell units.
	dlen = [8]float64{1, sqrt2, 1, sqrt2, 1, sqrt2, 1, sqrt2}
)

const sqrt2 = 1.4142135623730951

// FlowDirD8 derives the per-cell downslope direction from a depressionless
// elevation surface. Each valid cell points at the in-grid neighbor with
// the steepest positive drop; a boundary cell with no such neighbor points
// at its first off-grid or nodata neighbor, so flow leaves the grid there.
// After priority-flood filling every interior cell has a strictly lower
// neighbor, making the drainage graph acyclic.
func FlowDirD8(dem *raster.Grid, outNodata float32) *raster.Grid {
	fd := raster.Like(dem, outNodata)
	for r := 0; r < dem.Rows; r++ {
		for c := 0; c < dem.Cols; c++ {
			z := dem.At(r, c)
			if z == dem.Nodata {
				continue
			}
			best, bestDrop := -1, 0.0
			exit := -1
			for d := 0; d < 8; d++ {
				nr, nc := r+drow[d], c+dcol[d]
				if nr < 0 || nr >= dem.Rows || nc < 0 || nc >= dem.Cols || dem.At(nr, nc) == dem.Nodata {
					if exit < 0 {
						exit = d
					}
					continue
				}
				drop := float64(z-dem.At(nr, nc)) / dlen[d]
				if drop > bestDrop {
					best, bestDrop = d, drop
				}
			}
			if exit >= 0 {
				// Boundary cell: water leaves the grid unless an
				// in-grid neighbor offers a real drop.
				if best < 0 {
					best = exit
				}
			}
			if best < 0 {
				// Flat remnant with no outlet; drain east.
				best = 0
			}
			fd.Set(r, c, float32(best))
		}
	}
	return fd
}

// Downstream resolves the flow field to per-cell linear indices: out[i] is
// the index of cell i's downslope neighbor, or -1 where flow leaves the
// grid, enters nodata, or i itself is nodata.
func Downstream(fd *raster.Grid) []int {
	out := make([]int, fd.Rows*fd.Cols)
	for r := 0; r < fd.Rows; r++ {
		for c := 0; c < fd.Cols; c++ {
			i := r*fd.Cols + c
			v := fd.At(r, c)
			if v == fd.Nodata {
				out[i] = -1
				continue
			}
			d := int(v)
			nr, nc := r+drow[d], c+dcol[d]
			if nr < 0 || nr >= fd.Rows || nc < 0 || nc >= fd.Cols || fd.At(nr, nc) == fd.Nodata {
				out[i] = -1
				continue
			}
			out[i] = nr*fd.Cols + nc
		}
	}
	return out
}

// StepLength returns the downstream step distance of cell i in projected
// units (cell size, times sqrt 2 on diagonals).
func StepLength(fd *raster.Grid, i int) float64 {
	d := int(fd.Data[i])
	return dlen[d] * fd.CellSize
}

// DownstreamOrder returns the valid cell indices ordered so every cell
// appears after its downslope neighbor. Traversals that propagate values
// from the channel upward run the order forward; accumulations toward the
// channel run it backward. Computed iteratively so path length never
// bounds recursion depth.
func DownstreamOrder(fd *raster.Grid, down []int) []int {
	n := fd.Rows * fd.Cols
	order := make([]int, 0, n)
	resolved := make([]bool, n)
	stack := make([]int, 0, 64)
	for i := 0; i < n; i++ {
		if resolved[i] || fd.Data[i] == fd.Nodata {
			continue
		}
		j := i
		for j >= 0 && !resolved[j] && fd.Data[j] != fd.Nodata {
			stack = append(stack, j)
			resolved[j] = true
			j = down[j]
		}
		for k := len(stack) - 1; k >= 0; k-- {
			order = append(order, stack[k])
		}
		stack = stack[:0]
	}
	return order
}
