// Package engine implements the pattern-learning and prediction engine:
// decay-weighted learning from expense reports, multi-signal confidence
// scoring, prediction generation, user feedback processing with
// auto-suppression, and draft pre-population queries.
package engine

import (
	"fmt"
	"math"

	"github.com/augurfin/expense-augur/internal/common"
)

// Config carries the scoring weights and behavioral thresholds of the
// engine. Injecting it keeps unit tests deterministic under alternate
// weights.
type Config struct {
	// Signal weights. Must sum to 1.0.
	FrequencyWeight float64
	RecencyWeight   float64
	AmountWeight    float64
	FeedbackWeight  float64

	// Level thresholds: score >= HighThreshold is High, score >=
	// MediumThreshold is Medium, anything below is Low.
	HighThreshold   float64
	MediumThreshold float64

	// MinOccurrences is the minimum pattern occurrence count before the
	// generator will predict from it. A single historical sighting is
	// insufficient evidence.
	MinOccurrences int

	// Auto-suppression: a pattern is retired when its reject count exceeds
	// SuppressMinRejects and its confirm rate is below
	// SuppressMaxConfirmRate.
	SuppressMinRejects     int
	SuppressMaxConfirmRate float64
}

// DefaultConfig returns the production engine configuration.
func DefaultConfig() Config {
	return Config{
		FrequencyWeight:        0.40,
		RecencyWeight:          0.25,
		AmountWeight:           0.20,
		FeedbackWeight:         0.15,
		HighThreshold:          0.75,
		MediumThreshold:        0.50,
		MinOccurrences:         2,
		SuppressMinRejects:     3,
		SuppressMaxConfirmRate: 0.30,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	sum := c.FrequencyWeight + c.RecencyWeight + c.AmountWeight + c.FeedbackWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: signal weights sum to %v, want 1.0", common.ErrInvalidConfig, sum)
	}
	for _, w := range []float64{c.FrequencyWeight, c.RecencyWeight, c.AmountWeight, c.FeedbackWeight} {
		if w < 0 {
			return fmt.Errorf("%w: signal weights cannot be negative", common.ErrInvalidConfig)
		}
	}
	if c.HighThreshold < c.MediumThreshold {
		return fmt.Errorf("%w: high threshold %v below medium threshold %v",
			common.ErrInvalidConfig, c.HighThreshold, c.MediumThreshold)
	}
	if c.HighThreshold > 1 || c.MediumThreshold < 0 {
		return fmt.Errorf("%w: thresholds must lie in [0, 1]", common.ErrInvalidConfig)
	}
	if c.MinOccurrences < 1 {
		return fmt.Errorf("%w: minimum occurrences must be at least 1", common.ErrInvalidConfig)
	}
	if c.SuppressMaxConfirmRate < 0 || c.SuppressMaxConfirmRate > 1 {
		return fmt.Errorf("%w: suppression confirm rate must lie in [0, 1]", common.ErrInvalidConfig)
	}
	return nil
}
