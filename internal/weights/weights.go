// Package weights holds the numeric rules for weight corrections. All math
// is decimal and results are rounded half-up to three places.
package weights

import (
	"errors"

	"github.com/shopspring/decimal"
)

const Places = 3

var (
	ErrNonPositiveResult = errors.New("weights: result must be greater than zero")
	ErrNonPositiveDelta  = errors.New("weights: delta must be greater than zero")
	ErrZeroBase          = errors.New("weights: record weight must be greater than zero")
)

// Round applies the half-up rule at three decimals. decimal.Round rounds
// half away from zero, which is half-up for the non-negative weights here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// SubtractTare returns peso − tara, rejecting a result that is not positive.
func SubtractTare(peso, tara decimal.Decimal) (decimal.Decimal, error) {
	result := Round(peso.Sub(tara))
	if !result.IsPositive() {
		return decimal.Decimal{}, ErrNonPositiveResult
	}
	return result, nil
}

// AddDelta adds a positive panza delta to a record weight.
func AddDelta(peso, delta decimal.Decimal) (decimal.Decimal, error) {
	if !delta.IsPositive() {
		return decimal.Decimal{}, ErrNonPositiveDelta
	}
	return Round(peso.Add(delta)), nil
}

// MigaPercentage computes the residue share of a record after cleaning.
// With a tare: ((peso−tara) − (pMiga−tara)) / peso. Without: (peso−pMiga) / peso.
func MigaPercentage(peso, pMiga decimal.Decimal, tara *decimal.Decimal) (decimal.Decimal, error) {
	if !peso.IsPositive() {
		return decimal.Decimal{}, ErrZeroBase
	}
	numerator := peso.Sub(pMiga)
	if tara != nil {
		numerator = peso.Sub(*tara).Sub(pMiga.Sub(*tara))
	}
	return Round(numerator.Div(peso)), nil
}
