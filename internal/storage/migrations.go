package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: transactions and vendor aliases",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					merchant_name TEXT,
					amount TEXT NOT NULL,
					category_hint TEXT DEFAULT '',
					department TEXT DEFAULT '',
					has_receipt_match BOOLEAN DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_owner ON transactions(owner_id)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,

				`CREATE TABLE IF NOT EXISTS vendor_aliases (
					owner_id TEXT NOT NULL,
					alias TEXT NOT NULL,
					vendor_key TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (owner_id, alias)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add expense reports and report lines",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS expense_reports (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id TEXT NOT NULL,
					report_date DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_expense_reports_owner ON expense_reports(owner_id, id)`,

				`CREATE TABLE IF NOT EXISTS report_lines (
					report_id INTEGER NOT NULL,
					transaction_id TEXT NOT NULL,
					vendor_text TEXT NOT NULL,
					amount TEXT NOT NULL,
					category_code TEXT DEFAULT '',
					department_code TEXT DEFAULT '',
					FOREIGN KEY (report_id) REFERENCES expense_reports(id)
				)`,
				`CREATE INDEX idx_report_lines_report ON report_lines(report_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add expense patterns table",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS expense_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id TEXT NOT NULL,
					vendor_key TEXT NOT NULL,
					display_name TEXT NOT NULL,
					default_category TEXT DEFAULT '',
					default_department TEXT DEFAULT '',
					average_amount TEXT NOT NULL,
					min_amount TEXT NOT NULL,
					max_amount TEXT NOT NULL,
					occurrence_count INTEGER NOT NULL DEFAULT 1,
					last_seen_at DATETIME NOT NULL,
					confirm_count INTEGER NOT NULL DEFAULT 0,
					reject_count INTEGER NOT NULL DEFAULT 0,
					is_suppressed BOOLEAN NOT NULL DEFAULT 0,
					requires_receipt_match BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (owner_id, vendor_key)
				)`,
				`CREATE INDEX idx_expense_patterns_owner ON expense_patterns(owner_id, is_suppressed)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Add predictions and feedback audit log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transaction_predictions (
					id TEXT PRIMARY KEY,
					pattern_id INTEGER,
					transaction_id TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					score REAL NOT NULL DEFAULT 0,
					level TEXT NOT NULL,
					status TEXT NOT NULL,
					is_manual_override BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME,
					FOREIGN KEY (pattern_id) REFERENCES expense_patterns(id),
					UNIQUE (owner_id, transaction_id)
				)`,
				`CREATE INDEX idx_predictions_owner_status ON transaction_predictions(owner_id, status)`,
				`CREATE INDEX idx_predictions_pattern ON transaction_predictions(pattern_id)`,

				`CREATE TABLE IF NOT EXISTS prediction_feedback (
					id TEXT PRIMARY KEY,
					prediction_id TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					feedback_type TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (prediction_id) REFERENCES transaction_predictions(id)
				)`,
				`CREATE INDEX idx_prediction_feedback_prediction ON prediction_feedback(prediction_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "Add optimistic concurrency version to expense patterns",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				ALTER TABLE expense_patterns
				ADD COLUMN version INTEGER NOT NULL DEFAULT 1
			`)
			if err != nil {
				return fmt.Errorf("failed to add version column: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
