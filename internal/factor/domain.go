// Package factor derives the Factor F cost-escalation multiplier from the
// government reference table and the VAT-inclusive totals built on it.
package factor

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/shared"
)

// ReferencePoint is one row of the reference table. Threshold is expressed in millions.
type ReferencePoint struct {
	Threshold decimal.Decimal `json:"cost_threshold"`
	Factor    decimal.Decimal `json:"factor"`
}

var (
	// ErrEmptyReferenceTable means no lower bound exists; pricing must not continue.
	ErrEmptyReferenceTable = errors.New("factor: reference table is empty")
	// ErrInvalidReference indicates an unusable reference row.
	ErrInvalidReference = fmt.Errorf("factor: invalid reference point: %w", shared.ErrValidation)
)

var (
	million = decimal.NewFromInt(1_000_000)
	// minLowerThreshold is the smallest threshold the lower bound search starts from.
	minLowerThreshold = decimal.NewFromInt(5)
	// VATMultiplier applies the fixed 7% VAT.
	VATMultiplier = decimal.RequireFromString("1.07")
)

// factorPlaces is the number of decimal places kept after truncation.
const factorPlaces = 4

// Totals holds the derived amounts shown wherever a BOQ total is displayed.
type Totals struct {
	Base       decimal.Decimal `json:"total_base_cost"`
	Factor     decimal.Decimal `json:"factor"`
	WithFactor decimal.Decimal `json:"cost_with_factor"`
	WithVAT    decimal.Decimal `json:"cost_with_vat"`
	// Computed is false when the base cost is zero and no factor was looked up.
	Computed bool `json:"computed"`
}
