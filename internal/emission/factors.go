package emission

import (
	"encoding/json"
	"fmt"
	"os"
)

// FactorTable maps an activity category to its emission factor,
// expressed in kg CO2e per unit of activity (kWh, m³, liter, km).
// The table is read-only after construction; categories it does not
// contain contribute a factor of zero.
type FactorTable map[string]float64

// FactorFor returns the emission factor for a category, or 0 for any
// category the table does not know about. It never fails.
func (t FactorTable) FactorFor(category string) float64 {
	return t[category]
}

// DefaultFactors returns the built-in factor table (average values).
func DefaultFactors() FactorTable {
	return FactorTable{
		"electricity": 0.85,   // kg CO2 per kWh
		"gas":         2.2,    // kg CO2 per m³
		"petrol":      2.3,    // kg CO2 per liter
		"diesel":      2.7,    // kg CO2 per liter
		"motorcycle":  0.1,    // kg CO2 per km
		"car":         0.2,    // kg CO2 per km
		"bus":         0.05,   // kg CO2 per km
		"train":       0.04,   // kg CO2 per km
		"water":       0.0004, // kg CO2 per liter
	}
}

// LoadFactors reads a factor table from a JSON file mapping category
// names to factors. Factors must not be negative.
func LoadFactors(path string) (FactorTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading factor file: %w", err)
	}

	var table FactorTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing factor file: %w", err)
	}

	for category, factor := range table {
		if factor < 0 {
			return nil, fmt.Errorf("negative factor for category %q", category)
		}
	}

	return table, nil
}
