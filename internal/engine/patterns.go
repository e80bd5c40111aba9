package engine

import (
	"context"
	"fmt"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/service"
)

// PatternAction is a bulk operation applied to a set of patterns.
type PatternAction string

// Pattern action constants.
const (
	PatternActionSuppress PatternAction = "suppress"
	PatternActionEnable   PatternAction = "enable"
	PatternActionDelete   PatternAction = "delete"
)

// PatternManager is the management surface over stored patterns: listing,
// inspection, and bulk state changes.
type PatternManager struct {
	store service.Storage
}

// NewPatternManager creates a pattern manager backed by store.
func NewPatternManager(store service.Storage) *PatternManager {
	return &PatternManager{store: store}
}

// Apply runs one action across the given pattern IDs, continuing past item
// failures. An unknown action fails before any pattern is touched.
func (pm *PatternManager) Apply(ctx context.Context, action PatternAction, patternIDs []int64) ([]service.PatternActionResult, error) {
	switch action {
	case PatternActionSuppress, PatternActionEnable, PatternActionDelete:
	default:
		return nil, fmt.Errorf("%w: unknown pattern action %q", common.ErrValidation, action)
	}

	results := make([]service.PatternActionResult, 0, len(patternIDs))
	for _, id := range patternIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, service.PatternActionResult{ID: id, Err: pm.applyOne(ctx, action, id)})
	}
	return results, nil
}

func (pm *PatternManager) applyOne(ctx context.Context, action PatternAction, id int64) error {
	switch action {
	case PatternActionSuppress:
		return pm.store.SetPatternSuppressed(ctx, id, true)
	case PatternActionEnable:
		return pm.store.SetPatternSuppressed(ctx, id, false)
	case PatternActionDelete:
		return pm.store.DeletePattern(ctx, id)
	default:
		return fmt.Errorf("%w: unknown pattern action %q", common.ErrValidation, action)
	}
}
