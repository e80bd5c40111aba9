package engine

import (
	"math"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/shopspring/decimal"
)

// Decay constants: a 6-month half-life over 30-day months, floored so very
// old observations never vanish entirely.
const (
	decayHalfLifeMonths = 6.0
	decayFloor          = 0.01
	daysPerMonth        = 30.0
)

// frequencySaturation is the occurrence count at which the frequency
// signal reaches 1.0.
var frequencySaturation = math.Log10(11)

// DecayWeight returns the exponential recency discount for an elapsed
// duration: 1.0 at zero elapsed time, 0.5 after six months, never below
// the floor. Negative elapsed time (clock skew) is treated as zero.
func DecayWeight(elapsed time.Duration) float64 {
	months := elapsed.Hours() / 24 / daysPerMonth
	if months < 0 {
		months = 0
	}
	weight := math.Exp2(-months / decayHalfLifeMonths)
	if weight < decayFloor {
		return decayFloor
	}
	return weight
}

// Score computes the confidence that a transaction of the given amount
// matches the pattern, as a weighted combination of four independently
// bounded signals. Pure: no side effects, fully determined by its inputs.
func (c Config) Score(pattern *model.ExpensePattern, amount decimal.Decimal, now time.Time) float64 {
	frequency := frequencySignal(pattern.OccurrenceCount)
	recency := DecayWeight(now.Sub(pattern.LastSeenAt))
	consistency := amountSignal(pattern.AverageAmount, amount)
	feedback := feedbackSignal(pattern)

	score := c.FrequencyWeight*frequency +
		c.RecencyWeight*recency +
		c.AmountWeight*consistency +
		c.FeedbackWeight*feedback

	return clamp01(score)
}

// LevelFor maps a score to its discrete confidence level.
func (c Config) LevelFor(score float64) model.ConfidenceLevel {
	switch {
	case score >= c.HighThreshold:
		return model.ConfidenceHigh
	case score >= c.MediumThreshold:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// frequencySignal saturates at 10 occurrences.
func frequencySignal(occurrences int) float64 {
	if occurrences < 0 {
		return 0
	}
	signal := math.Log10(float64(occurrences)+1) / frequencySaturation
	return math.Min(1, signal)
}

// amountSignal scores 1 for a transaction equal to the pattern average and
// 0 at or beyond 100% deviation. The denominator is floored at 1 so
// near-zero averages don't explode the ratio.
func amountSignal(average, amount decimal.Decimal) float64 {
	denominator := average
	if denominator.LessThan(decimal.NewFromInt(1)) {
		denominator = decimal.NewFromInt(1)
	}
	deviation, _ := amount.Sub(average).Abs().Div(denominator).Float64()
	return math.Max(0, 1-deviation)
}

// feedbackSignal is the confirm rate, or a neutral 0.5 before any feedback
// exists.
func feedbackSignal(pattern *model.ExpensePattern) float64 {
	if !pattern.HasFeedback() {
		return 0.5
	}
	return pattern.AccuracyRate()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
