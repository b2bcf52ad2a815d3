package types

// Scenario names one land-use/precipitation/agricultural-load combination,
// typically a time period (1850, 2015) or a policy case (ssp1, ssp3).
type Scenario struct {
	Name          string `yaml:"name" mapstructure:"name"`
	LanduseRaster string `yaml:"landuse_raster" mapstructure:"landuse_raster"`
	PrecipRaster  string `yaml:"precip_raster" mapstructure:"precip_raster"`
	AgLoadRaster  string `yaml:"ag_load_raster" mapstructure:"ag_load_raster"`
}

// Validate checks that all three raster layers are present.
func (s Scenario) Validate() error {
	if s.Name == "" || s.LanduseRaster == "" || s.PrecipRaster == "" || s.AgLoadRaster == "" {
		return ErrScenarioBad
	}
	return nil
}

// ScenarioNames returns the names of the given scenarios in order.
func ScenarioNames(scenarios []Scenario) []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	return names
}
