package emission

import (
	"math"
	"strconv"
	"strings"
)

// RawInput is one user-entered activity field: a category label and the
// quantity as it arrived on the wire. Inputs are a slice rather than a
// map because the breakdown must preserve the order the fields were
// entered in.
type RawInput struct {
	Category string
	Value    string
}

// LineItem is the CO2e contribution of a single activity or purchase.
type LineItem struct {
	Category string  `json:"item"`
	Quantity float64 `json:"quantity"`
	Factor   float64 `json:"co2_per_unit"`
	CO2      float64 `json:"total_co2"`
}

// Breakdown is the per-item detail plus the aggregate total for one
// submission. TotalCO2 always equals the sum of the item CO2 values,
// accumulated left to right in item order.
type Breakdown struct {
	Items    []LineItem `json:"items"`
	TotalCO2 float64    `json:"total_co2"`
}

// ComputeBreakdown converts raw activity inputs into a Breakdown using
// the given factor table. Malformed or negative quantities are treated
// as zero, and unknown categories get a zero factor, so the calculation
// itself never fails. The function is pure: identical input always
// yields an identical Breakdown.
func ComputeBreakdown(inputs []RawInput, factors FactorTable) Breakdown {
	breakdown := Breakdown{Items: make([]LineItem, 0, len(inputs))}

	for _, input := range inputs {
		quantity, err := strconv.ParseFloat(strings.TrimSpace(input.Value), 64)
		if err != nil || math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 {
			quantity = 0
		}

		factor := factors.FactorFor(input.Category)
		co2 := quantity * factor

		breakdown.Items = append(breakdown.Items, LineItem{
			Category: input.Category,
			Quantity: quantity,
			Factor:   factor,
			CO2:      co2,
		})
		breakdown.TotalCO2 += co2
	}

	return breakdown
}
