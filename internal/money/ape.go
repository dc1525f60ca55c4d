package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// APE records are billed at a flat fee: the studio keeps a fixed share and a
// fixed amount covers the bollettino, whatever total was entered. This does
// not go through the cassa/IVA formulas.
var (
	APEStudioFee     = decimal.NewFromInt(40)
	APEBollettinoFee = decimal.NewFromInt(10)
)

// APESplit is the breakdown of an APE total.
type APESplit struct {
	Total         decimal.Decimal
	Studio        decimal.Decimal
	Bollettino    decimal.Decimal
	Collaboratore decimal.Decimal
}

// SplitAPE divides total into the flat studio and bollettino fees, leaving
// the remainder to the collaboratore. The remainder never goes below zero.
func SplitAPE(total decimal.Decimal) (APESplit, error) {
	if total.IsNegative() {
		return APESplit{}, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, total.String())
	}

	rest := total.Sub(APEStudioFee).Sub(APEBollettinoFee)
	if rest.IsNegative() {
		rest = decimal.Zero
	}

	return APESplit{
		Total:         total.Round(2),
		Studio:        APEStudioFee,
		Bollettino:    APEBollettinoFee,
		Collaboratore: rest.Round(2),
	}, nil
}
