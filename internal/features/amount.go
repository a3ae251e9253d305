package features

import (
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Amount distribution constants captured from training data. Fixed, never
// recomputed at inference time.
const (
	// AmountP95 is the 95th-percentile amount; anything above is "large".
	AmountP95 = 394.64
)

// amountPercentiles are the fixed breakpoints for percentile-rank
// interpolation: P50, P75, P90, P95, P99.
var amountPercentiles = []struct {
	Amount float64
	Rank   float64
}{
	{22.00, 50},
	{77.16, 75},
	{203.19, 90},
	{AmountP95, 95},
	{1017.97, 99},
}

// AmountFeatures are the magnitude-based features derived from a monetary
// amount. One instance per request.
type AmountFeatures struct {
	LogAmount     float64 `json:"logAmount"`
	ScaledAmount  float64 `json:"scaledAmount"`
	DecimalPlaces int     `json:"decimalPlaces"`
	IsRound       bool    `json:"isRound"`
	IsLarge       bool    `json:"isLarge"`
}

// AmountExtractor derives magnitude features, using the scaler for the
// normalized amount.
type AmountExtractor struct {
	scaler *Scaler
}

// NewAmountExtractor creates an extractor over the given scaler.
func NewAmountExtractor(scaler *Scaler) *AmountExtractor {
	return &AmountExtractor{scaler: scaler}
}

// Extract derives the amount feature group from a non-negative amount.
func (e *AmountExtractor) Extract(amount float64) AmountFeatures {
	return AmountFeatures{
		LogAmount:     math.Log(amount + 1),
		ScaledAmount:  e.scaler.Transform("Amount", amount),
		DecimalPlaces: decimalPlaces(amount),
		IsRound:       isRound(amount),
		IsLarge:       amount > AmountP95,
	}
}

// PercentileRank places an amount on the training distribution by piecewise
// linear interpolation across the fixed breakpoints, extrapolating linearly
// beyond P99 and capping at 100.
func (e *AmountExtractor) PercentileRank(amount float64) float64 {
	if amount <= 0 {
		return 0
	}

	first := amountPercentiles[0]
	if amount < first.Amount {
		return first.Rank * amount / first.Amount
	}

	for i := 1; i < len(amountPercentiles); i++ {
		lo, hi := amountPercentiles[i-1], amountPercentiles[i]
		if amount < hi.Amount {
			frac := (amount - lo.Amount) / (hi.Amount - lo.Amount)
			return lo.Rank + frac*(hi.Rank-lo.Rank)
		}
	}

	// Beyond P99: extrapolate at the last segment's slope, capped at 100.
	last := amountPercentiles[len(amountPercentiles)-1]
	prev := amountPercentiles[len(amountPercentiles)-2]
	slope := (last.Rank - prev.Rank) / (last.Amount - prev.Amount)
	rank := last.Rank + slope*(amount-last.Amount)
	if rank > 100 {
		rank = 100
	}
	return rank
}

// Amount risk weights.
const (
	largeAmountWeight   = 0.3
	roundAmountWeight   = 0.2
	roundHundredWeight  = 0.1
	userDeviationWeight = 0.4
)

// RiskScore sums the weighted amount indicator hits, capped at 1.0. User
// deviation contributes only when historical stats are supplied and the
// amount sits more than three standard deviations from the customer's mean.
func (e *AmountExtractor) RiskScore(amount float64, stats *domain.UserStats) float64 {
	f := e.Extract(amount)

	var score float64
	if f.IsLarge {
		score += largeAmountWeight
	}
	if f.IsRound {
		score += roundAmountWeight
		if amount >= 100 {
			score += roundHundredWeight
		}
	}
	if stats != nil && stats.StdAmount > 0 {
		if math.Abs(amount-stats.MeanAmount) > 3*stats.StdAmount {
			score += userDeviationWeight
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// decimalPlaces counts digits after the decimal point in the shortest
// representation of the amount. Integral amounts report 0.
func decimalPlaces(amount float64) int {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// isRound reports an integral amount divisible by 10.
func isRound(amount float64) bool {
	if amount != math.Trunc(amount) {
		return false
	}
	return math.Mod(amount, 10) == 0
}
