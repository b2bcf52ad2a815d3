// Package spatial implements the bounding-box index over elevation tiles
// and the mosaicking of intersecting tiles into one watershed-local grid.
package spatial

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// TileInfo records one indexed tile: its identifier, on-disk path, and
// bounding box in the tile's source coordinate reference.
type TileInfo struct {
	ID   int     `json:"id"`
	Path string  `json:"path"`
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Index answers "which tiles intersect this box" over a fixed tile set.
// The persisted form is a JSON sidecar holding the tile list and id->path
// map; the in-memory R-tree is rebuilt from it on load.
type Index struct {
	tiles map[int]TileInfo
	tree  rtree.RTree
}

// Build scans dir for tile artifacts and writes the index sidecar to
// indexPath. If the sidecar already exists it is treated as authoritative:
// building is skipped with a log line and the existing index is loaded
// unchanged. Rebuilding is expensive, so the sidecar is a cache that is
// never silently overwritten.
func Build(dir, indexPath string, log *zap.Logger) (*Index, error) {
	if _, err := os.Stat(indexPath); err == nil {
		log.Info("tile index exists, skipping build", zap.String("path", indexPath))
		return Load(indexPath)
	}

	pattern := filepath.Join(dir, "*.grd")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	sort.Strings(paths)

	tiles := make([]TileInfo, 0, len(paths))
	for id, p := range paths {
		g, err := raster.Load(p)
		if err != nil {
			return nil, fmt.Errorf("indexing tile %s: %w", p, err)
		}
		tiles = append(tiles, TileInfo{
			ID:   id,
			Path: p,
			MinX: g.MinX,
			MinY: g.MinY,
			MaxX: g.MaxX(),
			MaxY: g.MaxY(),
		})
	}

	if err := saveSidecar(indexPath, tiles); err != nil {
		return nil, err
	}
	log.Info("built tile index", zap.Int("tiles", len(tiles)), zap.String("path", indexPath))
	return fromTiles(tiles), nil
}

// Load reads a previously persisted index sidecar.
func Load(indexPath string) (*Index, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("reading tile index %s: %w", indexPath, err)
	}
	var tiles []TileInfo
	if err := json.Unmarshal(data, &tiles); err != nil {
		return nil, fmt.Errorf("decoding tile index %s: %w", indexPath, err)
	}
	return fromTiles(tiles), nil
}

func fromTiles(tiles []TileInfo) *Index {
	idx := &Index{tiles: make(map[int]TileInfo, len(tiles))}
	for _, t := range tiles {
		idx.tiles[t.ID] = t
		idx.tree.Insert([2]float64{t.MinX, t.MinY}, [2]float64{t.MaxX, t.MaxY}, t.ID)
	}
	return idx
}

func saveSidecar(indexPath string, tiles []TileInfo) error {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	data, err := json.MarshalIndent(tiles, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tile index: %w", err)
	}
	tmp := indexPath + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing tile index: %w", err)
	}
	if err := os.Rename(tmp, indexPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing tile index: %w", err)
	}
	return nil
}

// Len returns the number of indexed tiles.
func (idx *Index) Len() int { return len(idx.tiles) }

// Path resolves a tile identifier to its on-disk path.
func (idx *Index) Path(id int) (string, bool) {
	t, ok := idx.tiles[id]
	return t.Path, ok
}

// Query returns the IDs of all tiles whose bounding box intersects the
// given box. The overlap test is inclusive: boundary-touching tiles match.
func (idx *Index) Query(minX, minY, maxX, maxY float64) []int {
	var ids []int
	idx.tree.Search([2]float64{minX, minY}, [2]float64{maxX, maxY},
		func(min, max [2]float64, data interface{}) bool {
			ids = append(ids, data.(int))
			return true
		})
	sort.Ints(ids)
	return ids
}
