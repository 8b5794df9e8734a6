package detector

import "github.com/shopspring/decimal"

// DefaultTakerFeeRate is the venue's taker fee at a 50% price.
const DefaultTakerFeeRate = 0.0315

var four = decimal.NewFromInt(4)

// TakerFee returns the per-share taker fee 4·p·(1−p)·rate, truncated to
// five decimals. It peaks at rate when p is 0.50.
func TakerFee(price, rate float64) float64 {
	if price <= 0 || price >= 1 || rate <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	fee := four.Mul(p).Mul(decimal.NewFromInt(1).Sub(p)).Mul(decimal.NewFromFloat(rate))
	return fee.Truncate(5).InexactFloat64()
}

// PairFees is the taker fee of buying one share of each leg.
func PairFees(yesAsk, noAsk, rate float64) float64 {
	return TakerFee(yesAsk, rate) + TakerFee(noAsk, rate)
}
