package types

// BiophysicalEntry holds the retention efficiency and base nutrient load
// for one land-use code. A LoadN equal to the configured agricultural-load
// sentinel code means "take the load from the scenario's agricultural-load
// raster at this pixel" rather than a constant.
type BiophysicalEntry struct {
	EffN  float64
	LoadN float64
}

// BiophysicalTable maps land-use codes to their biophysical properties.
type BiophysicalTable map[int]BiophysicalEntry

// EffMap returns the lucode -> retention efficiency reclassification map.
func (t BiophysicalTable) EffMap() map[int]float64 {
	m := make(map[int]float64, len(t))
	for code, e := range t {
		m[code] = e.EffN
	}
	return m
}

// LoadMap returns the lucode -> base load reclassification map.
func (t BiophysicalTable) LoadMap() map[int]float64 {
	m := make(map[int]float64, len(t))
	for code, e := range t {
		m[code] = e.LoadN
	}
	return m
}
