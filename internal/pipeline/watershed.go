// Package pipeline wires the components together: it loads watersheds,
// builds each watershed's task subgraph, submits thousands of subgraphs
// into one scheduler, and aggregates results into the store.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mesh-intelligence/ndrbatch/internal/geometry"
)

// Watershed is one polygon feature scheduled for processing.
type Watershed struct {
	// Prefix is the stable identifier: ws_<source basename>_<feature index>.
	Prefix string
	// FID is the feature index within its source file.
	FID int
	// Polygon is the feature geometry in WGS84.
	Polygon *geom.Polygon
}

// AreaDeg2 returns the polygon area in the source projection's squared
// degrees, the unit the minimum-size filter is expressed in.
func (w *Watershed) AreaDeg2() float64 {
	return geometry.Area(w.Polygon)
}

// WorkingDir returns the watershed's private artifact directory under
// root, sharded four levels deep by feature-id digits so no directory
// accumulates hundreds of thousands of entries.
func (w *Watershed) WorkingDir(root string) string {
	d := fmt.Sprintf("%04d", w.FID)
	n := len(d)
	return filepath.Join(
		root, d[n-1:], d[n-2:n-1], d[n-3:n-2], d[n-4:n-3],
		w.Prefix+"_working_dir")
}

// LoadWatersheds reads polygon features from the given GeoJSON files.
// Feature identity is positional: prefix ws_<basename>_<index>, so re-runs
// over the same inputs resume under the same keys. Non-polygon features
// are skipped.
func LoadWatersheds(paths []string) ([]*Watershed, error) {
	var out []*Watershed
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading watershed layer %s: %w", path, err)
		}
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("decoding watershed layer %s: %w", path, err)
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for fid, feat := range fc.Features {
			poly, ok := feat.Geometry.(*geom.Polygon)
			if !ok {
				continue
			}
			out = append(out, &Watershed{
				Prefix:  fmt.Sprintf("ws_%s_%d", base, fid),
				FID:     fid,
				Polygon: poly,
			})
		}
	}
	return out, nil
}
