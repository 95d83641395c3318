// Package economics converts capital expenditure into equivalent periodical
// costs (EPC) used as investment costs in the optimization.
package economics

import (
	"fmt"
	"math"
)

// Annuity returns the equivalent periodical costs of an investment.
//
// capex is the capital expenditure, n the number of periods, u the lifetime of
// the investment in periods (u == n for a plain annuity), wacc the weighted
// average cost of capital and costDecrease the annual relative decrease of the
// replacement investment. With a zero wacc the result is the undiscounted
// share of capex per period.
func Annuity(capex float64, n, u int, wacc, costDecrease float64) (float64, error) {
	if n < 1 || u < 1 {
		return 0, fmt.Errorf("periods and lifetime must be at least 1 (n=%d, u=%d)", n, u)
	}
	if wacc < 0 || wacc > 1 {
		return 0, fmt.Errorf("wacc must be in [0, 1], got %g", wacc)
	}
	if costDecrease < 0 || costDecrease > 1 {
		return 0, fmt.Errorf("cost decrease must be in [0, 1], got %g", costDecrease)
	}

	if wacc == 0 {
		if costDecrease == 0 {
			return capex / float64(u), nil
		}
		q := 1 - costDecrease
		return capex / float64(n) * (1 - math.Pow(q, float64(n))) / (1 - math.Pow(q, float64(u))), nil
	}

	fn := math.Pow(1+wacc, float64(n))
	factor := wacc * fn / (fn - 1)
	q := (1 - costDecrease) / (1 + wacc)
	replacement := (1 - math.Pow(q, float64(n))) / (1 - math.Pow(q, float64(u)))
	return capex * factor * replacement, nil
}

// MustAnnuity is Annuity for compile-time constants and panics on invalid
// arguments.
func MustAnnuity(capex float64, n int, wacc float64) float64 {
	a, err := Annuity(capex, n, n, wacc, 0)
	if err != nil {
		panic(err)
	}
	return a
}
