// End-to-end batch: synthetic elevation tiles, two scenario-less inputs,
// three watersheds (one processable, one below the minimum area, one with
// no tile coverage), run through the full task graph into the result
// database, then resumed.
package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/internal/pipeline"
	"github.com/mesh-intelligence/ndrbatch/internal/raster"
	"github.com/mesh-intelligence/ndrbatch/internal/scheduler"
	"github.com/mesh-intelligence/ndrbatch/internal/store"
	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// writeConstantGrid saves a WGS84 grid with constant value over the given box.
func writeConstantGrid(t *testing.T, path string, minX, minY, maxX, maxY, cell float64, value float32) {
	t.Helper()
	cols := int((maxX - minX) / cell)
	rows := int((maxY - minY) / cell)
	g := raster.New(rows, cols, minX, minY, cell, "EPSG:4326", -1)
	for i := range g.Data {
		g.Data[i] = value
	}
	require.NoError(t, g.Save(path))
}

// writeEastSlopingDEM saves a WGS84 elevation tile dropping eastward.
func writeEastSlopingDEM(t *testing.T, path string, minX, minY, maxX, maxY, cell float64) {
	t.Helper()
	cols := int((maxX - minX) / cell)
	rows := int((maxY - minY) / cell)
	g := raster.New(rows, cols, minX, minY, cell, "EPSG:4326", -1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lon, _ := g.CellCenter(r, c)
			g.Set(r, c, float32((maxX-lon)*1000))
		}
	}
	require.NoError(t, g.Save(path))
}

func writeWatersheds(t *testing.T, path string) {
	t.Helper()
	square := func(minX, minY, size float64) map[string]interface{} {
		return map[string]interface{}{
			"type":       "Feature",
			"properties": map[string]interface{}{},
			"geometry": map[string]interface{}{
				"type": "Polygon",
				"coordinates": [][][]float64{{
					{minX, minY}, {minX + size, minY},
					{minX + size, minY + size}, {minX, minY + size},
					{minX, minY},
				}},
			},
		}
	}
	fc := map[string]interface{}{
		"type": "FeatureCollection",
		"features": []interface{}{
			square(14.9, 40.9, 0.2),    // processable, 0.04 sq deg
			square(14.95, 40.95, 0.1),  // below the minimum area
			square(-100.0, 30.0, 0.2),  // no tile coverage
		},
	}
	data, err := json.Marshal(fc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func testConfig(t *testing.T) types.Config {
	t.Helper()
	root := t.TempDir()
	tileDir := filepath.Join(root, "dem_tiles")
	require.NoError(t, os.MkdirAll(tileDir, 0755))

	// One elevation tile covering the processable watershed with margin.
	writeEastSlopingDEM(t, filepath.Join(tileDir, "n41e015.grd"), 14.85, 40.85, 15.15, 41.15, 0.001)

	inputDir := filepath.Join(root, "inputs")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	writeConstantGrid(t, filepath.Join(inputDir, "landuse.grd"), 14.8, 40.8, 15.2, 41.2, 0.002, 1)
	writeConstantGrid(t, filepath.Join(inputDir, "precip.grd"), 14.8, 40.8, 15.2, 41.2, 0.002, 1)
	writeConstantGrid(t, filepath.Join(inputDir, "agload.grd"), 14.8, 40.8, 15.2, 41.2, 0.002, 5)

	wsPath := filepath.Join(inputDir, "basins.geojson")
	writeWatersheds(t, wsPath)

	bioPath := filepath.Join(inputDir, "biophysical.csv")
	require.NoError(t, os.WriteFile(bioPath,
		[]byte("ID,eff_n,load_n\n1,0.6,10\n"), 0644))

	cfg := types.DefaultConfig()
	cfg.WorkspaceDir = filepath.Join(root, "workspace")
	cfg.DEMTileDir = tileDir
	cfg.WatershedPaths = []string{wsPath}
	cfg.BiophysicalPath = bioPath
	cfg.Scenarios = []types.Scenario{{
		Name:          "2015",
		LanduseRaster: filepath.Join(inputDir, "landuse.grd"),
		PrecipRaster:  filepath.Join(inputDir, "precip.grd"),
		AgLoadRaster:  filepath.Join(inputDir, "agload.grd"),
	}}
	// The synthetic terrain drains at most a few hundred cells through
	// any one point, so the stream threshold comes down with it.
	cfg.FlowThreshold = 50
	cfg.Workers = 4
	return cfg
}

func runBatch(t *testing.T, cfg types.Config, st *store.Store) []*scheduler.Task {
	t.Helper()
	sched := scheduler.New(cfg.Workers, zap.NewNop())
	drv := pipeline.NewDriver(cfg, zap.NewNop(), st, sched)
	terminals, err := drv.Run()
	require.NoError(t, err)
	for _, task := range terminals {
		task.Join()
	}
	require.NoError(t, sched.Close())
	return terminals
}

func TestBatch_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	cfg := testConfig(t)

	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	defer st.Close()

	terminals := runBatch(t, cfg, st)
	require.Len(t, terminals, 2, "undersized watershed is never scheduled")

	t.Run("processable watershed lands in the store", func(t *testing.T) {
		total, err := st.Export("ws_basins_0", "2015")
		require.NoError(t, err)
		assert.Greater(t, total, 0.0)

		// Everything delivered is a fraction of everything applied:
		// load 10 per ha over a 0.2 degree square is a hard ceiling.
		areaHa := 22000.0 * 22000.0 / 10000.0
		assert.Less(t, total, 10*areaHa)
	})

	t.Run("uncovered watershed resolves as failed, not stuck", func(t *testing.T) {
		var sawErr bool
		for _, task := range terminals {
			if task.Err() != nil {
				sawErr = true
			}
		}
		assert.True(t, sawErr)

		_, err := st.Export("ws_basins_2", "2015")
		assert.Error(t, err, "no export row for the uncovered watershed")
	})

	t.Run("geometries stored for scheduled watersheds", func(t *testing.T) {
		recs, err := st.Geometries()
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("resume skips the completed watershed", func(t *testing.T) {
		terminals := runBatch(t, cfg, st)
		assert.Len(t, terminals, 1, "only the unresolved watershed is rescheduled")
	})

	t.Run("report joins geometry and exports", func(t *testing.T) {
		outPath := filepath.Join(cfg.WorkspaceDir, "report.geojson")
		require.NoError(t, pipeline.WriteReport(st, outPath, zap.NewNop()))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		var fc map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &fc))
		features := fc["features"].([]interface{})
		assert.Len(t, features, 2)

		text := string(data)
		assert.Contains(t, text, "ws_basins_0")
		assert.Contains(t, text, "2015_export")
	})
}

func TestBatch_IntermediateArtifactsAreCached(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	cfg := testConfig(t)

	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	defer st.Close()

	runBatch(t, cfg, st)

	// The processed watershed's working directory holds the full artifact
	// chain, keyed by its prefix.
	wsDir := filepath.Join(cfg.WatershedDir(), "0", "0", "0", "0", "ws_basins_0_working_dir")
	for _, name := range []string{
		"ws_basins_0_dem.grd",
		"ws_basins_0_dem_aligned.grd",
		"ws_basins_0_flow_accum.grd",
		"ws_basins_0_ic.grd",
		"ws_basins_0_n_export_2015.grd",
		"ws_basins_0_database_insert_2015.txt",
	} {
		_, err := os.Stat(filepath.Join(wsDir, name))
		assert.NoError(t, err, fmt.Sprintf("missing artifact %s", name))
	}
}
