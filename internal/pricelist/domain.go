// Package pricelist maintains the unit price catalogue used to prefill BOQ line items.
package pricelist

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/shared"
)

// ErrCodeTaken indicates a duplicate item code.
var ErrCodeTaken = fmt.Errorf("pricelist: code already exists: %w", shared.ErrConflict)

// Item is one priced unit of work.
type Item struct {
	ID           int64
	Code         string
	Name         string
	Unit         string
	Category     string
	MaterialCost decimal.Decimal
	LaborCost    decimal.Decimal
	UpdatedAt    time.Time
}

// UnitCost is the combined material and labour price per unit.
func (i Item) UnitCost() decimal.Decimal {
	return i.MaterialCost.Add(i.LaborCost)
}

// ItemInput is the create/update payload.
type ItemInput struct {
	Code         string
	Name         string
	Unit         string
	Category     string
	MaterialCost decimal.Decimal
	LaborCost    decimal.Decimal
}

// Normalize trims fields and validates amounts.
func (in ItemInput) Normalize() (ItemInput, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Category = strings.TrimSpace(in.Category)
	if in.Code == "" || in.Name == "" || in.Unit == "" {
		return in, fmt.Errorf("pricelist: code, name and unit are required: %w", shared.ErrValidation)
	}
	if in.MaterialCost.IsNegative() || in.LaborCost.IsNegative() {
		return in, fmt.Errorf("pricelist: costs must not be negative: %w", shared.ErrValidation)
	}
	return in, nil
}

// ListFilters narrows the catalogue listing.
type ListFilters struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}
