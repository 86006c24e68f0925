package factor

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CostInMillions converts a currency amount to the unit of the reference table.
func CostInMillions(totalBaseCost decimal.Decimal) decimal.Decimal {
	return totalBaseCost.Div(million)
}

// Interpolate returns the factor for totalBaseCost using table.
// The table does not need to be sorted. It is an error for the table to be empty.
func Interpolate(totalBaseCost decimal.Decimal, table []ReferencePoint) (decimal.Decimal, error) {
	a := CostInMillions(totalBaseCost)
	lower, upper, err := SelectBounds(a, table)
	if err != nil {
		return decimal.Zero, err
	}
	return InterpolateBounds(a, lower, upper), nil
}

// SelectBounds finds the lower and upper reference rows for a cost in millions.
// The lower row is the largest threshold not above max(5, a), falling back to the
// lowest row. The upper row is the smallest threshold strictly above a, or nil.
func SelectBounds(a decimal.Decimal, table []ReferencePoint) (ReferencePoint, *ReferencePoint, error) {
	if len(table) == 0 {
		return ReferencePoint{}, nil, ErrEmptyReferenceTable
	}
	sorted := sortedCopy(table)

	ceiling := decimal.Max(minLowerThreshold, a)
	// first index whose threshold exceeds the ceiling
	i := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Threshold.GreaterThan(ceiling)
	})
	lower := sorted[0]
	if i > 0 {
		lower = sorted[i-1]
	}

	j := sort.Search(len(sorted), func(j int) bool {
		return sorted[j].Threshold.GreaterThan(a)
	})
	if j == len(sorted) {
		return lower, nil, nil
	}
	upper := sorted[j]
	return lower, &upper, nil
}

// InterpolateBounds applies the linear interpolation between two bounding rows
// and truncates the result to four decimal places.
func InterpolateBounds(a decimal.Decimal, lower ReferencePoint, upper *ReferencePoint) decimal.Decimal {
	b, d := lower.Threshold, lower.Factor
	if upper == nil || a.LessThanOrEqual(b) {
		return d
	}
	c, e := upper.Threshold, upper.Factor
	if a.GreaterThanOrEqual(c) {
		return e
	}
	// D - (D - E) * (A - B) / (C - B)
	f := d.Sub(d.Sub(e).Mul(a.Sub(b)).Div(c.Sub(b)))
	return Truncate(f)
}

// Truncate floors f to four decimal places. Values are never rounded up.
func Truncate(f decimal.Decimal) decimal.Decimal {
	return f.Shift(factorPlaces).Floor().Shift(-factorPlaces)
}

// ComputeTotals derives the displayed totals from a base cost and factor.
// Every screen and printout must obtain its totals from here.
func ComputeTotals(totalBaseCost, factor decimal.Decimal) Totals {
	withFactor := totalBaseCost.Mul(factor)
	return Totals{
		Base:       totalBaseCost,
		Factor:     factor,
		WithFactor: withFactor,
		WithVAT:    withFactor.Mul(VATMultiplier),
		Computed:   true,
	}
}

func sortedCopy(table []ReferencePoint) []ReferencePoint {
	sorted := make([]ReferencePoint, len(table))
	copy(sorted, table)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})
	return sorted
}
