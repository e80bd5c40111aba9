package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/config"
	"github.com/augurfin/expense-augur/internal/engine"
	"github.com/augurfin/expense-augur/internal/storage"
	"github.com/spf13/viper"
)

// getDatabase returns a database connection and a cleanup function.
func getDatabase() (*storage.SQLiteStorage, func(), error) {
	dbPath := config.DatabasePath(viper.GetString("database.path"))

	// Open database
	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, nil, common.NewUserError(fmt.Sprintf("could not open database at %s", dbPath), err)
	}

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, common.NewUserError("database migration failed; try 'augur migrate'", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}

	return db, cleanup, nil
}

// requireOwner returns the configured owner ID or an error when none is set.
func requireOwner() (string, error) {
	owner := strings.TrimSpace(viper.GetString("owner"))
	if owner == "" {
		return "", fmt.Errorf("%w: owner (set --owner, AUGUR_OWNER, or owner in config)", common.ErrMissingConfig)
	}
	return owner, nil
}

func setEngineDefaults() {
	defaults := engine.DefaultConfig()
	viper.SetDefault("engine.weights.frequency", defaults.FrequencyWeight)
	viper.SetDefault("engine.weights.recency", defaults.RecencyWeight)
	viper.SetDefault("engine.weights.amount", defaults.AmountWeight)
	viper.SetDefault("engine.weights.feedback", defaults.FeedbackWeight)
	viper.SetDefault("engine.thresholds.high", defaults.HighThreshold)
	viper.SetDefault("engine.thresholds.medium", defaults.MediumThreshold)
	viper.SetDefault("engine.min_occurrences", defaults.MinOccurrences)
	viper.SetDefault("engine.suppression.min_rejects", defaults.SuppressMinRejects)
	viper.SetDefault("engine.suppression.max_confirm_rate", defaults.SuppressMaxConfirmRate)
}

// engineConfig builds the scoring configuration from viper, validated.
func engineConfig() (engine.Config, error) {
	cfg := engine.Config{
		FrequencyWeight:        viper.GetFloat64("engine.weights.frequency"),
		RecencyWeight:          viper.GetFloat64("engine.weights.recency"),
		AmountWeight:           viper.GetFloat64("engine.weights.amount"),
		FeedbackWeight:         viper.GetFloat64("engine.weights.feedback"),
		HighThreshold:          viper.GetFloat64("engine.thresholds.high"),
		MediumThreshold:        viper.GetFloat64("engine.thresholds.medium"),
		MinOccurrences:         viper.GetInt("engine.min_occurrences"),
		SuppressMinRejects:     viper.GetInt("engine.suppression.min_rejects"),
		SuppressMaxConfirmRate: viper.GetFloat64("engine.suppression.max_confirm_rate"),
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("invalid engine configuration: %w", err)
	}
	return cfg, nil
}

// truncateString shortens a string for table display.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
