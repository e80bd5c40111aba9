package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/model"
)

// aliasCacheTTL bounds how long normalizer lookups may serve stale aliases.
const aliasCacheTTL = 5 * time.Minute

func aliasCacheKey(ownerID, alias string) string {
	return ownerID + "\x00" + alias
}

func (s *SQLiteStorage) getCachedAlias(ownerID, alias string) *model.VendorAlias {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.aliasCache[aliasCacheKey(ownerID, alias)]
}

func (s *SQLiteStorage) cacheAlias(alias *model.VendorAlias) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if time.Now().After(s.cacheExpiry) {
		s.aliasCache = make(map[string]*model.VendorAlias)
		s.cacheExpiry = time.Now().Add(aliasCacheTTL)
	}
	s.aliasCache[aliasCacheKey(alias.OwnerID, alias.Alias)] = alias
}

// SaveVendorAlias saves or updates an alias mapping. The alias is stored
// uppercased and trimmed so lookups match normalized vendor text.
func (s *SQLiteStorage) SaveVendorAlias(ctx context.Context, alias *model.VendorAlias) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAlias(alias); err != nil {
		return err
	}

	alias.Alias = strings.ToUpper(strings.TrimSpace(alias.Alias))
	alias.VendorKey = strings.ToUpper(strings.TrimSpace(alias.VendorKey))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_aliases (owner_id, alias, vendor_key)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id, alias) DO UPDATE SET
			vendor_key = excluded.vendor_key
	`, alias.OwnerID, alias.Alias, alias.VendorKey)
	if err != nil {
		return fmt.Errorf("failed to save vendor alias: %w", err)
	}

	s.cacheAlias(alias)

	return nil
}

// GetVendorAlias retrieves an alias mapping, consulting the cache first.
func (s *SQLiteStorage) GetVendorAlias(ctx context.Context, ownerID, alias string) (*model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(alias, "alias"); err != nil {
		return nil, err
	}

	alias = strings.ToUpper(strings.TrimSpace(alias))

	if cached := s.getCachedAlias(ownerID, alias); cached != nil {
		return cached, nil
	}

	var result model.VendorAlias
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, alias, vendor_key, created_at
		FROM vendor_aliases
		WHERE owner_id = ? AND alias = ?
	`, ownerID, alias).Scan(&result.OwnerID, &result.Alias, &result.VendorKey, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alias %q", common.ErrNotFound, alias)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor alias: %w", err)
	}

	s.cacheAlias(&result)

	return &result, nil
}

// GetAllVendorAliases retrieves every alias for an owner.
func (s *SQLiteStorage) GetAllVendorAliases(ctx context.Context, ownerID string) ([]model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, alias, vendor_key, created_at
		FROM vendor_aliases
		WHERE owner_id = ?
		ORDER BY alias ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []model.VendorAlias
	for rows.Next() {
		var alias model.VendorAlias
		if err := rows.Scan(&alias.OwnerID, &alias.Alias, &alias.VendorKey, &alias.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor alias: %w", err)
		}
		aliases = append(aliases, alias)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vendor aliases: %w", err)
	}

	return aliases, nil
}
