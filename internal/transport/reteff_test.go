package transport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
	"github.com/mesh-intelligence/ndrbatch/internal/routing"
)

// eastFlowRow builds a 1-row DEM sloping east with the given cell size and
// returns its flow direction grid.
func eastFlowRow(t *testing.T, n int, cellSize float64) *raster.Grid {
	t.Helper()
	dem := raster.New(1, n, 0, 0, cellSize, "EPSG:32633", -1)
	for c := 0; c < n; c++ {
		dem.Set(0, c, float32(n-c))
	}
	return routing.FlowDirD8(dem, -1)
}

func TestDownstreamRetEff(t *testing.T) {
	const retLen = 150.0
	fd := eastFlowRow(t, 4, 90)
	channel := rowGrid(t, -1, 0, 0, 0, 1)
	eff := rowGrid(t, -1, 0.6, 0.6, 0.6, 0.6)
	// Match georeference to the flow grid so step lengths use 90 m cells.
	channel.CellSize, eff.CellSize = 90, 90

	out := DownstreamRetEff(fd, channel, eff, retLen, -1)

	s := math.Exp(-5 * 90 / retLen)
	assert.Equal(t, float32(0), out.At(0, 3), "channel cell retains nothing further")

	// One step above the channel: eff' = 0*s + 0.6*(1-s).
	want2 := 0.6 * (1 - s)
	assert.InDelta(t, want2, float64(out.At(0, 2)), 1e-6)

	// Two steps up: eff' = want2*s + 0.6*(1-s).
	want1 := want2*s + 0.6*(1-s)
	assert.InDelta(t, want1, float64(out.At(0, 1)), 1e-6)

	// Retention asymptotically approaches the per-cell efficiency.
	require.Less(t, float64(out.At(0, 1)), 0.6)
	assert.Greater(t, out.At(0, 1), out.At(0, 2))
}

func TestDownstreamRetEff_UnreachableChannelStaysNodata(t *testing.T) {
	fd := eastFlowRow(t, 4, 90)
	channel := rowGrid(t, -1, 0, 0, 0, 0)
	eff := rowGrid(t, -1, 0.6, 0.6, 0.6, 0.6)

	out := DownstreamRetEff(fd, channel, eff, 150, -1)
	for c := 0; c < 4; c++ {
		assert.Equal(t, float32(-1), out.At(0, c))
	}
}

func TestDownstreamRetEff_MissingEfficiencyBlocksUpstream(t *testing.T) {
	fd := eastFlowRow(t, 4, 90)
	channel := rowGrid(t, -1, 0, 0, 0, 1)
	eff := rowGrid(t, -1, 0.6, -1, 0.6, 0.6)

	out := DownstreamRetEff(fd, channel, eff, 150, -1)
	assert.NotEqual(t, float32(-1), out.At(0, 2))
	assert.Equal(t, float32(-1), out.At(0, 1), "cell without efficiency is undefined")
	assert.Equal(t, float32(-1), out.At(0, 0), "undefined value propagates upstream")
}
