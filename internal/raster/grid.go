// Package raster implements the in-memory grid type and the nodata-aware
// raster algebra every numeric step of the pipeline is built on.
package raster

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Grid is a rectangular raster of single-precision samples with an explicit
// nodata sentinel and a georeferenced bounding box. Data is row-major with
// row 0 at the northern edge. CRS is an EPSG code string ("EPSG:4326" for
// the global inputs, "EPSG:326xx"/"EPSG:327xx" for watershed-local grids).
type Grid struct {
	Rows, Cols int
	MinX, MinY float64
	CellSize   float64
	CRS        string
	Nodata     float32
	Data       []float32
}

// New allocates a grid of the given shape filled with its nodata value.
func New(rows, cols int, minX, minY, cellSize float64, crs string, nodata float32) *Grid {
	g := &Grid{
		Rows:     rows,
		Cols:     cols,
		MinX:     minX,
		MinY:     minY,
		CellSize: cellSize,
		CRS:      crs,
		Nodata:   nodata,
		Data:     make([]float32, rows*cols),
	}
	for i := range g.Data {
		g.Data[i] = nodata
	}
	return g
}

// Like allocates a nodata-filled grid sharing g's shape and georeference
// but carrying the given nodata sentinel.
func Like(g *Grid, nodata float32) *Grid {
	return New(g.Rows, g.Cols, g.MinX, g.MinY, g.CellSize, g.CRS, nodata)
}

// At returns the sample at row r, column c.
func (g *Grid) At(r, c int) float32 { return g.Data[r*g.Cols+c] }

// Set writes the sample at row r, column c.
func (g *Grid) Set(r, c int, v float32) { g.Data[r*g.Cols+c] = v }

// IsNodata reports whether v is g's nodata sentinel.
func (g *Grid) IsNodata(v float32) bool { return v == g.Nodata }

// Valid reports whether the cell at row r, column c holds a sample.
func (g *Grid) Valid(r, c int) bool { return g.Data[r*g.Cols+c] != g.Nodata }

// MaxX returns the eastern edge of the bounding box.
func (g *Grid) MaxX() float64 { return g.MinX + float64(g.Cols)*g.CellSize }

// MaxY returns the northern edge of the bounding box.
func (g *Grid) MaxY() float64 { return g.MinY + float64(g.Rows)*g.CellSize }

// CellCenter returns the georeferenced center of the cell at row r, column c.
func (g *Grid) CellCenter(r, c int) (x, y float64) {
	x = g.MinX + (float64(c)+0.5)*g.CellSize
	y = g.MaxY() - (float64(r)+0.5)*g.CellSize
	return x, y
}

// CellAt returns the row/column containing point (x, y) and whether the
// point falls inside the grid.
func (g *Grid) CellAt(x, y float64) (r, c int, ok bool) {
	c = int(math.Floor((x - g.MinX) / g.CellSize))
	r = int(math.Floor((g.MaxY() - y) / g.CellSize))
	if r < 0 || r >= g.Rows || c < 0 || c >= g.Cols {
		return 0, 0, false
	}
	return r, c, true
}

// Aligned reports whether a and b share shape, bounding box, and cell size.
func Aligned(a, b *Grid) bool {
	const eps = 1e-6
	return a.Rows == b.Rows && a.Cols == b.Cols &&
		math.Abs(a.MinX-b.MinX) < eps && math.Abs(a.MinY-b.MinY) < eps &&
		math.Abs(a.CellSize-b.CellSize) < eps
}

// MinMaxValid returns the minimum and maximum over valid cells. ok is false
// when the grid holds no valid cell.
func (g *Grid) MinMaxValid() (min, max float32, ok bool) {
	for _, v := range g.Data {
		if v == g.Nodata {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}

// SumValid returns the sum over valid cells in float64 precision.
func (g *Grid) SumValid() float64 {
	var sum float64
	for _, v := range g.Data {
		if v != g.Nodata {
			sum += float64(v)
		}
	}
	return sum
}

// Save writes the grid to path atomically: encode to a temp file in the
// same directory, then rename. A failed write never leaves a partial file
// that a later cache check could mistake for a completed artifact.
func (g *Grid) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(g); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding grid: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}

// Load reads a grid previously written by Save.
func Load(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grid %s: %w", path, err)
	}
	defer f.Close()
	var g Grid
	if err := gob.NewDecoder(f).Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding grid %s: %w", path, err)
	}
	return &g, nil
}
