package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

// StdDev returns the population standard deviation of values rounded to 2
// decimal places. An empty or single-element input yields 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	mean := sum.Div(n)

	squares := decimal.Zero
	for _, v := range values {
		d := decimal.NewFromFloat(v).Sub(mean)
		squares = squares.Add(d.Mul(d))
	}
	variance, _ := squares.Div(n).Float64()

	// decimal has no square root; the variance is exact enough for float64
	return decimal.NewFromFloat(math.Sqrt(variance)).Round(2).InexactFloat64()
}
