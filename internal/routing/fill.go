package routing

import (
	"container/heap"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// epsilonFill is the minimum drop enforced between a filled cell and the
// neighbor it drains through, so flow direction is defined everywhere on
// the filled surface.
const epsilonFill = 1e-4

type floodCell struct {
	idx  int
	elev float32
}

type floodHeap []floodCell

func (h floodHeap) Len() int            { return len(h) }
func (h floodHeap) Less(i, j int) bool  { return h[i].elev < h[j].elev }
func (h floodHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *floodHeap) Push(x interface{}) { *h = append(*h, x.(floodCell)) }
func (h *floodHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// FillPits removes closed depressions from an elevation grid by priority
// flood: seed the frontier with every cell that can drain off the grid
// (raster edge or nodata-adjacent), then grow inward from the lowest
// frontier cell, raising each cell to at least its spill elevation plus a
// small epsilon. The result is a surface on which every valid cell has a
// monotone descending path to an outlet.
func FillPits(dem *raster.Grid) *raster.Grid {
	out := raster.Like(dem, dem.Nodata)
	copy(out.Data, dem.Data)

	n := dem.Rows * dem.Cols
	visited := make([]bool, n)
	h := &floodHeap{}

	seed := func(r, c int) {
		i := r*dem.Cols + c
		if visited[i] || out.Data[i] == dem.Nodata {
			return
		}
		visited[i] = true
		heap.Push(h, floodCell{i, out.Data[i]})
	}

	for r := 0; r < dem.Rows; r++ {
		for c := 0; c < dem.Cols; c++ {
			if out.At(r, c) == dem.Nodata {
				continue
			}
			if r == 0 || r == dem.Rows-1 || c == 0 || c == dem.Cols-1 {
				seed(r, c)
				continue
			}
			for d := 0; d < 8; d++ {
				if out.At(r+drow[d], c+dcol[d]) == dem.Nodata {
					seed(r, c)
					break
				}
			}
		}
	}

	for h.Len() > 0 {
		cell := heap.Pop(h).(floodCell)
		r, c := cell.idx/dem.Cols, cell.idx%dem.Cols
		for d := 0; d < 8; d++ {
			nr, nc := r+drow[d], c+dcol[d]
			if nr < 0 || nr >= dem.Rows || nc < 0 || nc >= dem.Cols {
				continue
			}
			ni := nr*dem.Cols + nc
			if visited[ni] || out.Data[ni] == dem.Nodata {
				continue
			}
			visited[ni] = true
			if out.Data[ni] <= cell.elev {
				out.Data[ni] = cell.elev + epsilonFill
			}
			heap.Push(h, floodCell{ni, out.Data[ni]})
		}
	}
	return out
}
