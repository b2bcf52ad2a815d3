package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biophysical.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBiophysicalTable(t *testing.T) {
	path := writeCSV(t, "ID,eff_n,load_n,description\n"+
		"1,0.25,12.5,forest\n"+
		"2,0.8,use raster,cropland\n"+
		"3,,,\n")

	table, err := LoadBiophysicalTable(path, 999)
	require.NoError(t, err)
	require.Len(t, table, 3)

	assert.Equal(t, 0.25, table[1].EffN)
	assert.Equal(t, 12.5, table[1].LoadN)
	assert.Equal(t, float64(999), table[2].LoadN, `"use raster" maps to the sentinel code`)
	assert.Equal(t, 0.0, table[3].EffN, "blank cells become zero")
	assert.Equal(t, 0.0, table[3].LoadN)
}

func TestLoadBiophysicalTable_HeaderCaseInsensitive(t *testing.T) {
	path := writeCSV(t, "id,EFF_N,Load_N\n5,0.5,7\n")
	table, err := LoadBiophysicalTable(path, 999)
	require.NoError(t, err)
	assert.Equal(t, 0.5, table[5].EffN)
	assert.Equal(t, 7.0, table[5].LoadN)
}

func TestLoadBiophysicalTable_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBiophysicalTable(filepath.Join(t.TempDir(), "absent.csv"), 999)
		assert.Error(t, err)
	})

	t.Run("missing required column", func(t *testing.T) {
		path := writeCSV(t, "ID,eff_n\n1,0.5\n")
		_, err := LoadBiophysicalTable(path, 999)
		assert.ErrorContains(t, err, "load_n")
	})

	t.Run("no data rows", func(t *testing.T) {
		path := writeCSV(t, "ID,eff_n,load_n\n")
		_, err := LoadBiophysicalTable(path, 999)
		assert.Error(t, err)
	})

	t.Run("bad land-use code", func(t *testing.T) {
		path := writeCSV(t, "ID,eff_n,load_n\nforest,0.5,1\n")
		_, err := LoadBiophysicalTable(path, 999)
		assert.Error(t, err)
	})
}
