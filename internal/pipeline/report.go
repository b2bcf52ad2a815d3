package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/internal/geometry"
	"github.com/mesh-intelligence/ndrbatch/internal/store"
)

// WriteReport joins the stored geometries with their per-scenario export
// totals and writes a GeoJSON feature collection. Watersheds with a stored
// geometry but no export row yet are included with whatever scenarios have
// landed, so a report can be cut mid-batch.
func WriteReport(st *store.Store, outPath string, log *zap.Logger) error {
	records, err := st.Geometries()
	if err != nil {
		return err
	}

	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, rec := range records {
		g, err := wkb.Unmarshal(rec.WKB)
		if err != nil {
			return fmt.Errorf("decoding geometry for %s: %w", rec.WsID, err)
		}
		poly, ok := g.(*geom.Polygon)
		if !ok {
			return fmt.Errorf("stored geometry for %s is not a polygon", rec.WsID)
		}

		props := map[string]interface{}{"ws_id": rec.WsID}
		if areaHa, err := projectedAreaHa(poly); err == nil {
			props["area_ha"] = areaHa
		} else {
			log.Warn("skipping area for watershed", zap.String("ws", rec.WsID), zap.Error(err))
		}
		exports, err := st.ExportsByWatershed(rec.WsID)
		if err != nil {
			return err
		}
		for scenario, total := range exports {
			props[scenario+"_export"] = total
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         rec.WsID,
			Geometry:   poly,
			Properties: props,
		})
	}

	data, err := json.MarshalIndent(&fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	tmp := outPath + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing report: %w", err)
	}
	log.Info("wrote report", zap.String("path", outPath), zap.Int("watersheds", len(fc.Features)))
	return nil
}

// projectedAreaHa measures a WGS84 polygon in hectares by projecting it
// into its local UTM zone first.
func projectedAreaHa(p *geom.Polygon) (float64, error) {
	cx, cy := geometry.Centroid(p)
	zone, northern := geometry.UTMZone(cx, cy)
	local, err := geometry.ReprojectToUTM(p, zone, northern)
	if err != nil {
		return 0, err
	}
	return geometry.Area(local) / 10000.0, nil
}
