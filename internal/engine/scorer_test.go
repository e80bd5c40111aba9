package engine

import (
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDecayWeight(t *testing.T) {
	month := 30 * 24 * time.Hour

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{name: "fresh observation has full weight", elapsed: 0, want: 1.0},
		{name: "half weight at six months", elapsed: 6 * month, want: 0.5},
		{name: "quarter weight at twelve months", elapsed: 12 * month, want: 0.25},
		{name: "very old observations hit the floor", elapsed: 10 * 12 * month, want: 0.01},
		{name: "clock skew treated as fresh", elapsed: -month, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DecayWeight(tt.elapsed), 1e-9)
		})
	}
}

func TestDecayWeightMonotone(t *testing.T) {
	month := 30 * 24 * time.Hour
	prev := DecayWeight(0)
	for m := 1; m <= 60; m++ {
		w := DecayWeight(time.Duration(m) * month)
		assert.LessOrEqual(t, w, prev, "decay must never increase with age (month %d)", m)
		prev = w
	}
}

func TestScoreBounds(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	tests := []struct {
		pattern *model.ExpensePattern
		amount  decimal.Decimal
		name    string
	}{
		{
			name: "ideal pattern",
			pattern: &model.ExpensePattern{
				OccurrenceCount: 100,
				LastSeenAt:      now,
				AverageAmount:   decimal.NewFromInt(50),
				ConfirmCount:    20,
			},
			amount: decimal.NewFromInt(50),
		},
		{
			name: "hopeless pattern",
			pattern: &model.ExpensePattern{
				OccurrenceCount: 0,
				LastSeenAt:      now.AddDate(-20, 0, 0),
				AverageAmount:   decimal.NewFromInt(10),
				RejectCount:     50,
			},
			amount: decimal.NewFromInt(10000),
		},
		{
			name: "zero value pattern",
			pattern: &model.ExpensePattern{
				LastSeenAt: now,
			},
			amount: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := cfg.Score(tt.pattern, tt.amount, now)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestScoreWorkedExample(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	// Six occurrences, last seen a month ago, $52 against a $50 average,
	// no feedback yet:
	//   frequency  = log10(7)/log10(11)   ~ 0.8115
	//   recency    = 2^(-1/6)             ~ 0.8909
	//   amount     = 1 - 2/50             = 0.96
	//   feedback   = 0.5 (neutral)
	pattern := &model.ExpensePattern{
		OccurrenceCount: 6,
		LastSeenAt:      now.Add(-30 * 24 * time.Hour),
		AverageAmount:   decimal.NewFromInt(50),
	}

	score := cfg.Score(pattern, decimal.NewFromInt(52), now)
	assert.InDelta(t, 0.8143, score, 0.005)
	assert.Equal(t, model.ConfidenceHigh, cfg.LevelFor(score))
}

func TestScoreWorkedExampleWithFeedback(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	// Five occurrences, last seen three months ago, $52 against a $50
	// average, 8 confirms and 2 rejects:
	//   frequency  = log10(6)/log10(11)   ~ 0.747
	//   recency    = 2^(-3/6)             ~ 0.707
	//   amount     = 1 - 2/50             = 0.96
	//   feedback   = 8/10                 = 0.8
	pattern := &model.ExpensePattern{
		OccurrenceCount: 5,
		LastSeenAt:      now.Add(-3 * 30 * 24 * time.Hour),
		AverageAmount:   decimal.NewFromInt(50),
		ConfirmCount:    8,
		RejectCount:     2,
	}

	score := cfg.Score(pattern, decimal.NewFromInt(52), now)
	assert.InDelta(t, 0.788, score, 0.005)
	assert.Equal(t, model.ConfidenceHigh, cfg.LevelFor(score))
}

func TestScoreFeedbackSignal(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	base := model.ExpensePattern{
		OccurrenceCount: 6,
		LastSeenAt:      now,
		AverageAmount:   decimal.NewFromInt(50),
	}

	confirmed := base
	confirmed.ConfirmCount = 10
	rejected := base
	rejected.RejectCount = 10

	amount := decimal.NewFromInt(50)
	assert.Greater(t, cfg.Score(&confirmed, amount, now), cfg.Score(&base, amount, now),
		"confirmed feedback should raise the score above neutral")
	assert.Less(t, cfg.Score(&rejected, amount, now), cfg.Score(&base, amount, now),
		"rejected feedback should lower the score below neutral")
}

func TestAmountSignalSmallAverages(t *testing.T) {
	// A $0.50 average and a $1.50 transaction is a $1 deviation; with the
	// denominator floored at 1 the signal is 0, not negative.
	signal := amountSignal(decimal.NewFromFloat(0.5), decimal.NewFromFloat(1.5))
	assert.InDelta(t, 0.0, signal, 1e-9)

	// Exact match always scores 1 regardless of magnitude.
	assert.InDelta(t, 1.0, amountSignal(decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.01)), 1e-9)
}

func TestLevelFor(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		want  model.ConfidenceLevel
		score float64
	}{
		{model.ConfidenceHigh, 1.0},
		{model.ConfidenceHigh, 0.75},
		{model.ConfidenceMedium, 0.7499},
		{model.ConfidenceMedium, 0.50},
		{model.ConfidenceLow, 0.4999},
		{model.ConfidenceLow, 0.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.LevelFor(tt.score), "score %v", tt.score)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FrequencyWeight = 0.9
		assert.Error(t, cfg.Validate())
	})

	t.Run("high threshold below medium rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HighThreshold = 0.4
		assert.Error(t, cfg.Validate())
	})
}
