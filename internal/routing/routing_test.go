package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// rowGrid builds a 1-row grid with unit cells from the given samples.
func rowGrid(t *testing.T, nodata float32, vals ...float32) *raster.Grid {
	t.Helper()
	g := raster.New(1, len(vals), 0, 0, 1, "EPSG:32633", nodata)
	copy(g.Data, vals)
	return g
}

func TestFlowDirD8_EastSlopingRow(t *testing.T) {
	dem := rowGrid(t, -1, 4, 3, 2, 1, 0)
	fd := FlowDirD8(dem, -1)

	// Every cell drains east, the last one off the grid.
	for c := 0; c < 5; c++ {
		assert.Equal(t, float32(0), fd.At(0, c), "cell %d", c)
	}

	down := Downstream(fd)
	assert.Equal(t, []int{1, 2, 3, 4, -1}, down)
}

func TestFlowDirD8_NodataNeighborIsOutlet(t *testing.T) {
	// Valid cell ringed by nodata drains out of the grid.
	dem := raster.New(3, 3, 0, 0, 1, "EPSG:32633", -1)
	dem.Set(1, 1, 5)
	fd := FlowDirD8(dem, -1)

	down := Downstream(fd)
	assert.Equal(t, -1, down[4])
	assert.Equal(t, float32(-1), fd.At(0, 0), "nodata stays nodata")
}

func TestFlowAccumulation_CountsContributingCells(t *testing.T) {
	dem := rowGrid(t, -1, 4, 3, 2, 1, 0)
	fd := FlowDirD8(dem, -1)
	acc := FlowAccumulation(fd, nil, -1)

	for c := 0; c < 5; c++ {
		assert.Equal(t, float32(c+1), acc.At(0, c))
	}
}

func TestFlowAccumulation_Weighted(t *testing.T) {
	dem := rowGrid(t, -1, 4, 3, 2, 1, 0)
	fd := FlowDirD8(dem, -1)
	w := rowGrid(t, -1, 0.5, 0.5, -1, 0.5, 0.5)
	acc := FlowAccumulation(fd, w, -1)

	// Nodata weight contributes zero but still passes flow through.
	assert.Equal(t, float32(0.5), acc.At(0, 0))
	assert.Equal(t, float32(1.0), acc.At(0, 1))
	assert.Equal(t, float32(1.0), acc.At(0, 2))
	assert.Equal(t, float32(1.5), acc.At(0, 3))
	assert.Equal(t, float32(2.0), acc.At(0, 4))
}

func TestFillPits_RemovesClosedDepression(t *testing.T) {
	dem := raster.New(5, 5, 0, 0, 1, "EPSG:32633", -1)
	for i := range dem.Data {
		dem.Data[i] = 5
	}
	dem.Set(2, 2, 1)

	filled := FillPits(dem)

	t.Run("never lowers the surface", func(t *testing.T) {
		for i := range dem.Data {
			assert.GreaterOrEqual(t, filled.Data[i], dem.Data[i])
		}
	})

	t.Run("pit is raised to its spill elevation", func(t *testing.T) {
		assert.Greater(t, filled.At(2, 2), float32(5))
	})

	t.Run("every cell drains off the grid", func(t *testing.T) {
		fd := FlowDirD8(filled, -1)
		down := Downstream(fd)
		n := len(down)
		for i := range down {
			j, steps := i, 0
			for j >= 0 {
				j = down[j]
				steps++
				require.LessOrEqual(t, steps, n, "cycle from cell %d", i)
			}
		}
	})
}

func TestDownstreamOrder(t *testing.T) {
	dem := rowGrid(t, -1, 4, 3, 2, 1, 0)
	fd := FlowDirD8(dem, -1)
	down := Downstream(fd)
	order := DownstreamOrder(fd, down)

	require.Len(t, order, 5)
	pos := make(map[int]int, len(order))
	for k, i := range order {
		pos[i] = k
	}
	for i, j := range down {
		if j >= 0 {
			assert.Less(t, pos[j], pos[i], "cell %d must follow its downslope neighbor %d", i, j)
		}
	}
}

func TestDistanceToChannel(t *testing.T) {
	dem := rowGrid(t, -1, 4, 3, 2, 1, 0)
	fd := FlowDirD8(dem, -1)
	channel := rowGrid(t, -1, 0, 0, 0, 0, 1)

	t.Run("unweighted path length in cell units", func(t *testing.T) {
		dist := DistanceToChannel(fd, channel, nil, -1)
		assert.Equal(t, float32(4), dist.At(0, 0))
		assert.Equal(t, float32(1), dist.At(0, 3))
		assert.Equal(t, float32(0), dist.At(0, 4), "channel cell")
	})

	t.Run("weighted accumulation", func(t *testing.T) {
		w := rowGrid(t, -1, 10, 10, 10, 10, 10)
		dist := DistanceToChannel(fd, channel, w, -1)
		assert.Equal(t, float32(0), dist.At(0, 4))
		assert.Equal(t, float32(10), dist.At(0, 3))
		assert.Equal(t, float32(40), dist.At(0, 0))
	})

	t.Run("path leaving the grid stays nodata", func(t *testing.T) {
		noChannel := rowGrid(t, -1, 0, 0, 0, 0, 0)
		dist := DistanceToChannel(fd, noChannel, nil, -1)
		for c := 0; c < 5; c++ {
			assert.Equal(t, float32(-1), dist.At(0, c))
		}
	})
}

func TestSlope_TiltedPlane(t *testing.T) {
	// z = column index, unit cells: gradient 1 in x, 0 in y.
	dem := raster.New(4, 4, 0, 0, 1, "EPSG:32633", -1)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			dem.Set(r, c, float32(c))
		}
	}

	slope := Slope(dem, -1)
	for r := 0; r < 4; r++ {
		// Interior columns see the full central difference; edge columns
		// replicate and halve.
		assert.InDelta(t, 0.5, float64(slope.At(r, 0)), 1e-6)
		assert.InDelta(t, 1.0, float64(slope.At(r, 1)), 1e-6)
		assert.InDelta(t, 1.0, float64(slope.At(r, 2)), 1e-6)
		assert.InDelta(t, 0.5, float64(slope.At(r, 3)), 1e-6)
	}
}
