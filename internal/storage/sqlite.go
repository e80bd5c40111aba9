package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	cacheExpiry time.Time
	db          *sql.DB
	aliasCache  map[string]*model.VendorAlias
	dbPath      string
	cacheMutex  sync.RWMutex
}

// queryable abstracts over *sql.DB and *sql.Tx so storage helpers can run
// inside or outside an explicit transaction.
type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and a single
	// connection serializes concurrent writers touching the same pattern
	// rows.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:         db,
		dbPath:     dbPath,
		aliasCache: make(map[string]*model.VendorAlias),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction scoping one engine batch.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Tx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTx{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTx wraps sql.Tx to implement service.Tx. Methods delegate to the
// shared queryable helpers so batch and non-batch paths share one code path.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) GetPattern(ctx context.Context, ownerID, vendorKey string) (*model.ExpensePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}
	return getPatternTx(ctx, t.tx, ownerID, vendorKey)
}

func (t *sqliteTx) CreatePattern(ctx context.Context, pattern *model.ExpensePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return createPatternTx(ctx, t.tx, pattern)
}

func (t *sqliteTx) UpdatePattern(ctx context.Context, pattern *model.ExpensePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return updatePatternTx(ctx, t.tx, pattern)
}

func (t *sqliteTx) CreatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePrediction(prediction); err != nil {
		return err
	}
	return createPredictionTx(ctx, t.tx, prediction)
}

func (t *sqliteTx) GetPredictionByTransaction(ctx context.Context, ownerID, transactionID string) (*model.TransactionPrediction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return getPredictionByTransactionTx(ctx, t.tx, ownerID, transactionID)
}

func (t *sqliteTx) GetPatternByID(ctx context.Context, id int64) (*model.ExpensePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getPatternByIDTx(ctx, t.tx, id)
}

func (t *sqliteTx) GetPrediction(ctx context.Context, id string) (*model.TransactionPrediction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getPredictionTx(ctx, t.tx, id)
}

func (t *sqliteTx) UpdatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePrediction(prediction); err != nil {
		return err
	}
	return updatePredictionTx(ctx, t.tx, prediction)
}

func (t *sqliteTx) DeletePrediction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return deletePredictionTx(ctx, t.tx, id)
}

func (t *sqliteTx) SaveFeedback(ctx context.Context, feedback *model.PredictionFeedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedback(feedback); err != nil {
		return err
	}
	return saveFeedbackTx(ctx, t.tx, feedback)
}

// scanDecimal parses a decimal stored as TEXT. Amounts are persisted as
// exact decimal strings, never floats.
func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse stored amount %q: %w", s, err)
	}
	return d, nil
}
