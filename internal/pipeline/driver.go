package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/internal/geometry"
	"github.com/mesh-intelligence/ndrbatch/internal/raster"
	"github.com/mesh-intelligence/ndrbatch/internal/routing"
	"github.com/mesh-intelligence/ndrbatch/internal/scheduler"
	"github.com/mesh-intelligence/ndrbatch/internal/spatial"
	"github.com/mesh-intelligence/ndrbatch/internal/store"
	"github.com/mesh-intelligence/ndrbatch/internal/transport"
	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// Driver owns the batch: one scheduler, one store, one tile index, and the
// per-watershed subgraph construction.
type Driver struct {
	cfg     types.Config
	log     *zap.Logger
	store   *store.Store
	sched   *scheduler.Scheduler
	index   *spatial.Index
	biophys types.BiophysicalTable
}

// NewDriver assembles a driver around an open store and running scheduler.
func NewDriver(cfg types.Config, log *zap.Logger, st *store.Store, sched *scheduler.Scheduler) *Driver {
	return &Driver{cfg: cfg, log: log.Named("pipeline"), store: st, sched: sched}
}

// Run schedules the whole batch and returns the terminal task of every
// scheduled watershed. The caller joins them (for progress reporting) and
// closes the scheduler to drain. Watersheds below the minimum area and
// watersheds already complete in the store are skipped without scheduling
// a single node.
func (d *Driver) Run() ([]*scheduler.Task, error) {
	if err := os.MkdirAll(d.cfg.ChurnDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	// The tile index gates the fan-out: every stitch depends on it, so it
	// is built (or loaded) to completion before any watershed is scheduled.
	indexTask, err := d.sched.Add(scheduler.Spec{
		Name:     "build_tile_index",
		Priority: 1,
		Targets:  []string{d.cfg.IndexPath()},
		Run: func() error {
			_, err := spatial.Build(d.cfg.DEMTileDir, d.cfg.IndexPath(), d.log)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	if err := indexTask.Join(); err != nil {
		// Index build failure is fatal to the entire run.
		return nil, fmt.Errorf("building tile index: %w", err)
	}
	d.index, err = spatial.Load(d.cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("loading tile index: %w", err)
	}

	d.biophys, err = LoadBiophysicalTable(d.cfg.BiophysicalPath, d.cfg.AgLoadCode)
	if err != nil {
		return nil, err
	}

	watersheds, err := LoadWatersheds(d.cfg.WatershedPaths)
	if err != nil {
		return nil, err
	}

	scenarioNames := types.ScenarioNames(d.cfg.Scenarios)
	var terminals []*scheduler.Task
	priority := 0
	for _, ws := range watersheds {
		if ws.AreaDeg2() < d.cfg.MinAreaDeg2 {
			continue
		}
		complete, err := d.store.HasAllScenarios(ws.Prefix, scenarioNames)
		if err != nil {
			return nil, err
		}
		if complete {
			d.log.Debug("watershed already complete", zap.String("ws", ws.Prefix))
			continue
		}
		last, err := d.scheduleWatershed(ws, priority)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, last)
		// Earlier watersheds keep higher priority so the batch drains
		// oldest-first instead of breadth-first.
		priority--
	}
	d.log.Info("scheduled watershed processing",
		zap.Int("watersheds", len(terminals)), zap.Int("skipped", len(watersheds)-len(terminals)))
	return terminals, nil
}

// scheduleWatershed builds one watershed's subgraph and returns its
// terminal join task. Every intermediate artifact is a file so a re-run
// resumes from whatever completed before.
func (d *Driver) scheduleWatershed(ws *Watershed, priority int) (*scheduler.Task, error) {
	cfg := d.cfg
	wsDir := ws.WorkingDir(cfg.WatershedDir())
	art := func(name string) string {
		return filepath.Join(wsDir, ws.Prefix+"_"+name)
	}

	cx, cy := geometry.Centroid(ws.Polygon)
	zone, northern := geometry.UTMZone(cx, cy)
	wsMinX, wsMinY, wsMaxX, wsMaxY := geometry.Bounds(ws.Polygon)

	demPath := art("dem.grd")
	stitchTask, err := d.sched.Add(scheduler.Spec{
		Name:     "stitch_dem_" + ws.Prefix,
		Priority: priority,
		Targets:  []string{demPath},
		Run: func() error {
			g, err := d.index.Stitch(wsMinX, wsMinY, wsMaxX, wsMaxY)
			if errors.Is(err, types.ErrNoTiles) {
				d.log.Info("watershed unresolved: no overlapping elevation tiles",
					zap.String("ws", ws.Prefix))
				return err
			}
			if err != nil {
				return err
			}
			return g.Save(demPath)
		},
	})
	if err != nil {
		return nil, err
	}

	localWsPath := art("local.geojson")
	reprojectTask, err := d.sched.Add(scheduler.Spec{
		Name:     "reproject_watershed_" + ws.Prefix,
		Priority: priority,
		Targets:  []string{localWsPath},
		Run: func() error {
			local, err := geometry.ReprojectToUTM(ws.Polygon, zone, northern)
			if err != nil {
				return err
			}
			return writePolygon(localWsPath, local)
		},
	})
	if err != nil {
		return nil, err
	}

	// Alignment: warp the stitched DEM and every referenced global layer
	// onto one UTM grid derived from the projected watershed bounds, then
	// mask the DEM to the polygon.
	alignedDemPath := art("dem_aligned.grd")
	alignDemTask, err := d.sched.Add(scheduler.Spec{
		Name:     "align_dem_" + ws.Prefix,
		Priority: priority,
		Targets:  []string{alignedDemPath},
		Deps:     []*scheduler.Task{stitchTask, reprojectTask},
		Run: func() error {
			local, err := readPolygon(localWsPath)
			if err != nil {
				return err
			}
			dem, err := raster.Load(demPath)
			if err != nil {
				return err
			}
			minX, minY, maxX, maxY := alignBounds(local, cfg.PixelSize)
			warped, err := raster.WarpToUTM(dem, zone, northern, minX, minY, maxX, maxY, cfg.PixelSize, cfg.Nodata)
			if err != nil {
				return err
			}
			return geometry.MaskGrid(warped, local).Save(alignedDemPath)
		},
	})
	if err != nil {
		return nil, err
	}

	alignTasks := make(map[string]*scheduler.Task)
	alignedPath := func(globalPath string) string {
		base := filepath.Base(globalPath)
		return art("aligned_" + base)
	}
	for _, sc := range cfg.Scenarios {
		for _, globalPath := range []string{sc.LanduseRaster, sc.PrecipRaster, sc.AgLoadRaster} {
			if _, done := alignTasks[globalPath]; done {
				continue
			}
			gp := globalPath
			target := alignedPath(gp)
			t, err := d.sched.Add(scheduler.Spec{
				Name:     "align_" + filepath.Base(gp) + "_" + ws.Prefix,
				Priority: priority,
				Targets:  []string{target},
				Deps:     []*scheduler.Task{reprojectTask},
				Run: func() error {
					local, err := readPolygon(localWsPath)
					if err != nil {
						return err
					}
					src, err := raster.Load(gp)
					if err != nil {
						return err
					}
					minX, minY, maxX, maxY := alignBounds(local, cfg.PixelSize)
					warped, err := raster.WarpToUTM(src, zone, northern, minX, minY, maxX, maxY, cfg.PixelSize, cfg.Nodata)
					if err != nil {
						return err
					}
					return warped.Save(target)
				},
			})
			if err != nil {
				return nil, err
			}
			alignTasks[globalPath] = t
		}
	}

	// Routing chain: fill -> flow direction -> accumulation and slope.
	filledPath := art("dem_filled.grd")
	fillTask, err := d.addGridTask("fill_pits_"+ws.Prefix, priority, filledPath,
		[]*scheduler.Task{alignDemTask}, func() (*raster.Grid, error) {
			dem, err := raster.Load(alignedDemPath)
			if err != nil {
				return nil, err
			}
			return routing.FillPits(dem), nil
		})
	if err != nil {
		return nil, err
	}

	flowDirPath := art("flow_dir.grd")
	flowDirTask, err := d.addGridTask("flow_dir_"+ws.Prefix, priority, flowDirPath,
		[]*scheduler.Task{fillTask}, func() (*raster.Grid, error) {
			filled, err := raster.Load(filledPath)
			if err != nil {
				return nil, err
			}
			return routing.FlowDirD8(filled, cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	flowAccumPath := art("flow_accum.grd")
	flowAccumTask, err := d.addGridTask("flow_accum_"+ws.Prefix, priority, flowAccumPath,
		[]*scheduler.Task{flowDirTask}, func() (*raster.Grid, error) {
			fd, err := raster.Load(flowDirPath)
			if err != nil {
				return nil, err
			}
			return routing.FlowAccumulation(fd, nil, cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	clampSlopePath := art("clamp_slope.grd")
	clampSlopeTask, err := d.addGridTask("clamp_slope_"+ws.Prefix, priority, clampSlopePath,
		[]*scheduler.Task{fillTask}, func() (*raster.Grid, error) {
			filled, err := raster.Load(filledPath)
			if err != nil {
				return nil, err
			}
			return raster.Clamp(routing.Slope(filled, cfg.Nodata), cfg.SlopeFloor), nil
		})
	if err != nil {
		return nil, err
	}

	slopeAccumPath := art("slope_accum.grd")
	slopeAccumTask, err := d.addGridTask("slope_accum_"+ws.Prefix, priority, slopeAccumPath,
		[]*scheduler.Task{flowDirTask, clampSlopeTask}, func() (*raster.Grid, error) {
			fd, err := raster.Load(flowDirPath)
			if err != nil {
				return nil, err
			}
			slope, err := raster.Load(clampSlopePath)
			if err != nil {
				return nil, err
			}
			return routing.FlowAccumulation(fd, slope, cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	dUpPath := art("d_up.grd")
	dUpTask, err := d.addGridTask("d_up_"+ws.Prefix, priority, dUpPath,
		[]*scheduler.Task{slopeAccumTask, flowAccumTask}, func() (*raster.Grid, error) {
			slopeAccum, err := raster.Load(slopeAccumPath)
			if err != nil {
				return nil, err
			}
			flowAccum, err := raster.Load(flowAccumPath)
			if err != nil {
				return nil, err
			}
			return transport.DUp(slopeAccum, flowAccum, cfg.PixelSize*cfg.PixelSize, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	channelPath := art("channel.grd")
	channelTask, err := d.addGridTask("threshold_flow_"+ws.Prefix, priority, channelPath,
		[]*scheduler.Task{flowAccumTask}, func() (*raster.Grid, error) {
			flowAccum, err := raster.Load(flowAccumPath)
			if err != nil {
				return nil, err
			}
			return transport.ChannelMask(flowAccum, cfg.FlowThreshold, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	flowDistPath := art("flow_dist_m.grd")
	flowDistTask, err := d.addGridTask("flow_dist_"+ws.Prefix, priority, flowDistPath,
		[]*scheduler.Task{flowDirTask, channelTask}, func() (*raster.Grid, error) {
			fd, err := raster.Load(flowDirPath)
			if err != nil {
				return nil, err
			}
			channel, err := raster.Load(channelPath)
			if err != nil {
				return nil, err
			}
			pixels := routing.DistanceToChannel(fd, channel, nil, cfg.Nodata)
			return raster.MapScalar(pixels, float32(cfg.PixelSize), cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	dDnPath := art("d_dn.grd")
	dDnTask, err := d.addGridTask("d_dn_"+ws.Prefix, priority, dDnPath,
		[]*scheduler.Task{flowDistTask, clampSlopeTask}, func() (*raster.Grid, error) {
			flowDist, err := raster.Load(flowDistPath)
			if err != nil {
				return nil, err
			}
			slope, err := raster.Load(clampSlopePath)
			if err != nil {
				return nil, err
			}
			perPixel, err := transport.DDnPerPixel(flowDist, slope, cfg.Nodata)
			if err != nil {
				return nil, err
			}
			fd, err := raster.Load(flowDirPath)
			if err != nil {
				return nil, err
			}
			channel, err := raster.Load(channelPath)
			if err != nil {
				return nil, err
			}
			return routing.DistanceToChannel(fd, channel, perPixel, cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	icPath := art("ic.grd")
	icTask, err := d.addGridTask("ic_"+ws.Prefix, priority, icPath,
		[]*scheduler.Task{dUpTask, dDnTask}, func() (*raster.Grid, error) {
			dUp, err := raster.Load(dUpPath)
			if err != nil {
				return nil, err
			}
			dDn, err := raster.Load(dDnPath)
			if err != nil {
				return nil, err
			}
			return transport.IC(dUp, dDn, cfg.ICNodata)
		})
	if err != nil {
		return nil, err
	}

	geometryTask, err := d.sched.Add(scheduler.Spec{
		Name:     "insert_geometry_" + ws.Prefix,
		Priority: priority,
		Run: func() error {
			wkbData, err := geometry.MarshalWKB(ws.Polygon)
			if err != nil {
				return err
			}
			return d.store.InsertGeometry(ws.Prefix, wkbData)
		},
	})
	if err != nil {
		return nil, err
	}

	// Per-scenario chain: reclassify, substitute ag load, modified load,
	// downstream retention, NDR, export, aggregate.
	joinDeps := []*scheduler.Task{geometryTask}
	for _, sc := range cfg.Scenarios {
		aggTask, err := d.scheduleScenario(ws, sc, priority, art, alignedPath,
			flowDirPath, channelPath, icPath,
			alignTasks, flowDirTask, channelTask, icTask)
		if err != nil {
			return nil, err
		}
		joinDeps = append(joinDeps, aggTask)
	}

	// Terminal no-op joining the watershed's leaf tasks, so callers track
	// per-watershed completion with one Join.
	return d.sched.Add(scheduler.Spec{
		Name:     "watershed_done_" + ws.Prefix,
		Priority: priority,
		Deps:     joinDeps,
		Run:      func() error { return nil },
	})
}

// scheduleScenario adds one scenario's task chain and returns its
// aggregation task.
func (d *Driver) scheduleScenario(
	ws *Watershed, sc types.Scenario, priority int,
	art func(string) string, alignedPath func(string) string,
	flowDirPath, channelPath, icPath string,
	alignTasks map[string]*scheduler.Task,
	flowDirTask, channelTask, icTask *scheduler.Task,
) (*scheduler.Task, error) {
	cfg := d.cfg
	landusePath := alignedPath(sc.LanduseRaster)
	precipPath := alignedPath(sc.PrecipRaster)
	agPath := alignedPath(sc.AgLoadRaster)

	effPath := art("eff_n_" + sc.Name + ".grd")
	effTask, err := d.addGridTask("reclassify_eff_n_"+sc.Name+"_"+ws.Prefix, priority, effPath,
		[]*scheduler.Task{alignTasks[sc.LanduseRaster]}, func() (*raster.Grid, error) {
			landuse, err := raster.Load(landusePath)
			if err != nil {
				return nil, err
			}
			return raster.Reclassify(landuse, d.biophys.EffMap(), cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	loadPath := art("load_n_" + sc.Name + ".grd")
	loadTask, err := d.addGridTask("reclassify_load_n_"+sc.Name+"_"+ws.Prefix, priority, loadPath,
		[]*scheduler.Task{alignTasks[sc.LanduseRaster]}, func() (*raster.Grid, error) {
			landuse, err := raster.Load(landusePath)
			if err != nil {
				return nil, err
			}
			return raster.Reclassify(landuse, d.biophys.LoadMap(), cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	agLoadPath := art("ag_load_n_" + sc.Name + ".grd")
	agLoadTask, err := d.addGridTask("scenario_load_"+sc.Name+"_"+ws.Prefix, priority, agLoadPath,
		[]*scheduler.Task{loadTask, alignTasks[sc.AgLoadRaster]}, func() (*raster.Grid, error) {
			baseLoad, err := raster.Load(loadPath)
			if err != nil {
				return nil, err
			}
			ag, err := raster.Load(agPath)
			if err != nil {
				return nil, err
			}
			return transport.AgLoad(baseLoad, ag, cfg.AgLoadCode, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	modLoadPath := art("modified_load_" + sc.Name + ".grd")
	modLoadTask, err := d.addGridTask("modified_load_"+sc.Name+"_"+ws.Prefix, priority, modLoadPath,
		[]*scheduler.Task{agLoadTask, alignTasks[sc.PrecipRaster]}, func() (*raster.Grid, error) {
			ag, err := raster.Load(agLoadPath)
			if err != nil {
				return nil, err
			}
			precip, err := raster.Load(precipPath)
			if err != nil {
				return nil, err
			}
			return transport.Multiply([]*raster.Grid{ag, precip}, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	retEffPath := art("downstream_ret_eff_" + sc.Name + ".grd")
	retEffTask, err := d.addGridTask("downstream_ret_eff_"+sc.Name+"_"+ws.Prefix, priority, retEffPath,
		[]*scheduler.Task{flowDirTask, channelTask, effTask}, func() (*raster.Grid, error) {
			fd, err := raster.Load(flowDirPath)
			if err != nil {
				return nil, err
			}
			channel, err := raster.Load(channelPath)
			if err != nil {
				return nil, err
			}
			eff, err := raster.Load(effPath)
			if err != nil {
				return nil, err
			}
			return transport.DownstreamRetEff(fd, channel, eff, cfg.RetentionLength, cfg.Nodata), nil
		})
	if err != nil {
		return nil, err
	}

	ndrPath := art("ndr_" + sc.Name + ".grd")
	ndrTask, err := d.addGridTask("ndr_"+sc.Name+"_"+ws.Prefix, priority, ndrPath,
		[]*scheduler.Task{retEffTask, icTask}, func() (*raster.Grid, error) {
			retEff, err := raster.Load(retEffPath)
			if err != nil {
				return nil, err
			}
			ic, err := raster.Load(icPath)
			if err != nil {
				return nil, err
			}
			return transport.NDR(retEff, ic, cfg.KFactor, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	exportPath := art("n_export_" + sc.Name + ".grd")
	exportTask, err := d.addGridTask("n_export_"+sc.Name+"_"+ws.Prefix, priority, exportPath,
		[]*scheduler.Task{modLoadTask, ndrTask}, func() (*raster.Grid, error) {
			modLoad, err := raster.Load(modLoadPath)
			if err != nil {
				return nil, err
			}
			ndr, err := raster.Load(ndrPath)
			if err != nil {
				return nil, err
			}
			return transport.Multiply([]*raster.Grid{modLoad, ndr}, cfg.Nodata)
		})
	if err != nil {
		return nil, err
	}

	touchPath := art("database_insert_" + sc.Name + ".txt")
	return d.sched.Add(scheduler.Spec{
		Name:     "aggregate_result_" + sc.Name + "_" + ws.Prefix,
		Priority: priority,
		Targets:  []string{touchPath},
		Deps:     []*scheduler.Task{exportTask},
		Run: func() error {
			export, err := raster.Load(exportPath)
			if err != nil {
				return err
			}
			total := transport.AggregateExport(export, cfg.PixelAreaHa())
			if err := d.store.InsertExport(ws.Prefix, sc.Name, total); err != nil {
				return err
			}
			return writeTouch(touchPath, ws.Prefix+" "+sc.Name)
		},
	})
}

// addGridTask wraps the common shape of a raster-producing task: compute
// one grid, save it atomically to its declared target.
func (d *Driver) addGridTask(name string, priority int, target string, deps []*scheduler.Task, fn func() (*raster.Grid, error)) (*scheduler.Task, error) {
	return d.sched.Add(scheduler.Spec{
		Name:     name,
		Priority: priority,
		Targets:  []string{target},
		Deps:     deps,
		Run: func() error {
			g, err := fn()
			if err != nil {
				return err
			}
			return g.Save(target)
		},
	})
}

// alignBounds pads a projected polygon's bounding box out to whole pixels
// so every aligned layer lands on the same grid.
func alignBounds(p *geom.Polygon, px float64) (minX, minY, maxX, maxY float64) {
	minX, minY, maxX, maxY = geometry.Bounds(p)
	minX = math.Floor(minX/px) * px
	minY = math.Floor(minY/px) * px
	maxX = math.Ceil(maxX/px) * px
	maxY = math.Ceil(maxY/px) * px
	return minX, minY, maxX, maxY
}

// writePolygon stores a polygon artifact as a GeoJSON feature, written
// atomically.
func writePolygon(path string, p *geom.Polygon) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	data, err := json.Marshal(&geojson.Feature{Geometry: p})
	if err != nil {
		return fmt.Errorf("encoding polygon: %w", err)
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing polygon artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing polygon artifact: %w", err)
	}
	return nil
}

// readPolygon loads a polygon artifact written by writePolygon.
func readPolygon(path string) (*geom.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading polygon artifact %s: %w", path, err)
	}
	var feat geojson.Feature
	if err := json.Unmarshal(data, &feat); err != nil {
		return nil, fmt.Errorf("decoding polygon artifact %s: %w", path, err)
	}
	poly, ok := feat.Geometry.(*geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("polygon artifact %s does not hold a polygon", path)
	}
	return poly, nil
}

func writeTouch(path, contents string) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, []byte(contents), 0644); err != nil {
		return fmt.Errorf("writing touch file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing touch file: %w", err)
	}
	return nil
}
