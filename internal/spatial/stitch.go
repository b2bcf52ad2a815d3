package spatial

import (
	"fmt"
	"math"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// Stitch mosaics every indexed tile intersecting the given box into one
// grid covering the box. Overlapping tiles are painted in ascending tile-ID
// order, last writer wins. Cells no tile covers stay nodata. When no tile
// intersects the box, Stitch returns types.ErrNoTiles: the caller records
// the watershed as unresolvable and the batch continues.
func (idx *Index) Stitch(minX, minY, maxX, maxY float64) (*raster.Grid, error) {
	ids := idx.Query(minX, minY, maxX, maxY)
	if len(ids) == 0 {
		return nil, types.ErrNoTiles
	}

	first, err := raster.Load(idx.tiles[ids[0]].Path)
	if err != nil {
		return nil, fmt.Errorf("loading tile %d: %w", ids[0], err)
	}
	cs := first.CellSize

	// Snap the output grid to the first tile's cell lattice so tile
	// samples land on whole cells.
	outMinX := first.MinX + math.Floor((minX-first.MinX)/cs)*cs
	outMaxY := first.MaxY() - math.Floor((first.MaxY()-maxY)/cs)*cs
	cols := int(math.Ceil((maxX - outMinX) / cs))
	rows := int(math.Ceil((outMaxY - minY) / cs))
	out := raster.New(rows, cols, outMinX, outMaxY-float64(rows)*cs, cs, first.CRS, first.Nodata)

	for _, id := range ids {
		tile, err := raster.Load(idx.tiles[id].Path)
		if err != nil {
			return nil, fmt.Errorf("loading tile %d: %w", id, err)
		}
		paint(out, tile)
	}
	return out, nil
}

// paint copies valid tile samples into the cells of out they cover.
func paint(out, tile *raster.Grid) {
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			x, y := out.CellCenter(r, c)
			tr, tc, ok := tile.CellAt(x, y)
			if !ok {
				continue
			}
			if v := tile.At(tr, tc); v != tile.Nodata {
				out.Set(r, c, v)
			}
		}
	}
}
