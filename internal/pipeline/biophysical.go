package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// LoadBiophysicalTable reads the land-use biophysical CSV. The table must
// carry ID, eff_n, and load_n columns. Cleaning matches the upstream data
// conventions: blank or unparseable numeric cells become 0, and a load_n
// of "use raster" becomes the agricultural-load sentinel code, meaning the
// scenario's agricultural-load raster supplies that cell's load.
func LoadBiophysicalTable(path string, agLoadCode int) (types.BiophysicalTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening biophysical table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading biophysical table: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("biophysical table %s has no data rows", path)
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := col["id"]
	if !ok {
		return nil, fmt.Errorf("biophysical table %s is missing the ID column", path)
	}
	effCol, ok := col["eff_n"]
	if !ok {
		return nil, fmt.Errorf("biophysical table %s is missing the eff_n column", path)
	}
	loadCol, ok := col["load_n"]
	if !ok {
		return nil, fmt.Errorf("biophysical table %s is missing the load_n column", path)
	}

	table := make(types.BiophysicalTable, len(records)-1)
	for _, rec := range records[1:] {
		code, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			return nil, fmt.Errorf("biophysical table %s: bad land-use code %q: %w", path, rec[idCol], err)
		}
		entry := types.BiophysicalEntry{
			EffN: parseOrZero(rec[effCol]),
		}
		loadCell := strings.TrimSpace(rec[loadCol])
		if strings.EqualFold(loadCell, "use raster") {
			entry.LoadN = float64(agLoadCode)
		} else {
			entry.LoadN = parseOrZero(loadCell)
		}
		table[code] = entry
	}
	return table, nil
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
