package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEPSGForUTM(t *testing.T) {
	assert.Equal(t, "EPSG:32633", EPSGForUTM(33, true))
	assert.Equal(t, "EPSG:32719", EPSGForUTM(19, false))
	assert.Equal(t, "EPSG:32601", EPSGForUTM(1, true))
}

func TestWarpToUTM(t *testing.T) {
	// Geographic source spanning 14E-16E, 40N-42N at 0.01 degree cells,
	// filled with a constant. The warped window sits near 15E 41N, the
	// center of UTM zone 33N, so every target cell must sample the source.
	src := New(200, 200, 14, 40, 0.01, "EPSG:4326", -1)
	for i := range src.Data {
		src.Data[i] = 7
	}

	out, err := WarpToUTM(src, 33, true, 499000, 4538000, 500800, 4539800, 90, -1)
	require.NoError(t, err)

	assert.Equal(t, 20, out.Rows)
	assert.Equal(t, 20, out.Cols)
	assert.Equal(t, "EPSG:32633", out.CRS)
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			assert.Equal(t, float32(7), out.At(r, c))
		}
	}
}

func TestWarpToUTM_OutsideSourceStaysNodata(t *testing.T) {
	// Source covers a window nowhere near zone 33N.
	src := New(10, 10, -120, 30, 0.01, "EPSG:4326", -1)
	for i := range src.Data {
		src.Data[i] = 3
	}

	out, err := WarpToUTM(src, 33, true, 499000, 4538000, 499900, 4538900, 90, -1)
	require.NoError(t, err)
	for _, v := range out.Data {
		assert.Equal(t, float32(-1), v)
	}
}

func TestWarpToUTM_DegenerateBounds(t *testing.T) {
	src := New(10, 10, 14, 40, 0.01, "EPSG:4326", -1)
	_, err := WarpToUTM(src, 33, true, 500000, 4538000, 500000, 4538000, 90, -1)
	assert.Error(t, err)
}
