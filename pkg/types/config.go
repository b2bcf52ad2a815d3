package types

import (
	"errors"
	"path/filepath"
	"runtime"
)

// Config carries every model constant and directory location used by the
// pipeline. It is constructed once at startup and passed into each component;
// no component reads ambient package-level state. Two separate nodata
// sentinels are carried because 0 is a legitimate connectivity-index value
// and the transport sentinel (-1) is not out-of-band for IC.
type Config struct {
	// Directory layout.
	WorkspaceDir string `yaml:"workspace_dir" mapstructure:"workspace_dir"`
	DEMTileDir   string `yaml:"dem_tile_dir" mapstructure:"dem_tile_dir"`

	// Input artifacts.
	WatershedPaths  []string   `yaml:"watershed_paths" mapstructure:"watershed_paths"`
	BiophysicalPath string     `yaml:"biophysical_path" mapstructure:"biophysical_path"`
	Scenarios       []Scenario `yaml:"scenarios" mapstructure:"scenarios"`

	// Model constants.
	Nodata          float32 `yaml:"nodata" mapstructure:"nodata"`
	ICNodata        float32 `yaml:"ic_nodata" mapstructure:"ic_nodata"`
	AgLoadCode      int     `yaml:"ag_load_code" mapstructure:"ag_load_code"`
	FlowThreshold   float32 `yaml:"flow_threshold" mapstructure:"flow_threshold"`
	RetentionLength float64 `yaml:"retention_length" mapstructure:"retention_length"`
	KFactor         float64 `yaml:"k_factor" mapstructure:"k_factor"`
	PixelSize       float64 `yaml:"pixel_size" mapstructure:"pixel_size"`
	SlopeFloor      float32 `yaml:"slope_floor" mapstructure:"slope_floor"`
	MinAreaDeg2     float64 `yaml:"min_area_deg2" mapstructure:"min_area_deg2"`

	// Execution.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// Config validation errors.
var (
	ErrWorkspaceEmpty = errors.New("workspace_dir must not be empty")
	ErrNoScenarios    = errors.New("at least one scenario is required")
	ErrScenarioBad    = errors.New("scenario is missing a raster layer")
	ErrWorkersBad     = errors.New("workers must be positive")
)

// DefaultConfig returns a Config populated with the published NDR model
// constants. Directory and input fields are left for the caller.
func DefaultConfig() Config {
	return Config{
		Nodata:          -1,
		ICNodata:        -9999,
		AgLoadCode:      999,
		FlowThreshold:   1000,
		RetentionLength: 150.0,
		KFactor:         1.0,
		PixelSize:       90.0,
		SlopeFloor:      0.005,
		MinAreaDeg2:     0.03,
		Workers:         runtime.GOMAXPROCS(0),
	}
}

// Validate checks that the Config is well-formed, returning a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.WorkspaceDir == "" {
		return ErrWorkspaceEmpty
	}
	if len(c.Scenarios) == 0 {
		return ErrNoScenarios
	}
	for _, s := range c.Scenarios {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if c.Workers <= 0 {
		return ErrWorkersBad
	}
	return nil
}

// ChurnDir is where intermediate shared artifacts (the tile index, cleaned
// biophysical table) live under the workspace.
func (c Config) ChurnDir() string {
	return filepath.Join(c.WorkspaceDir, "churn")
}

// WatershedDir is the root of the per-watershed working directories.
func (c Config) WatershedDir() string {
	return filepath.Join(c.WorkspaceDir, "watershed_processing")
}

// DatabasePath is the location of the result database.
func (c Config) DatabasePath() string {
	return filepath.Join(c.WorkspaceDir, "ndr_results.db")
}

// IndexPath is the location of the persisted DEM tile index.
func (c Config) IndexPath() string {
	return filepath.Join(c.ChurnDir(), "dem_tile_index.json")
}

// PixelAreaHa is the area of one aligned pixel in hectares.
func (c Config) PixelAreaHa() float64 {
	return c.PixelSize * c.PixelSize * 0.0001
}
