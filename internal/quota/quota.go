// Package quota decides whether a user may start another generation this
// month.
package quota

import (
	"context"
	"discord-video-bot/internal/database"
	"discord-video-bot/internal/models"
	"fmt"
)

// Decision is the outcome of a quota check.
type Decision int

const (
	Allowed Decision = iota
	GroupLimitExceeded
	UserLimitExceeded
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case GroupLimitExceeded:
		return "group"
	case UserLimitExceeded:
		return "user"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Check compares usage against the configured limits. A nil limit is
// unlimited. The group limit is checked first; usage equal to the limit
// blocks.
func Check(groupLimit, userLimit *int, groupUsage, userUsage int) Decision {
	if groupLimit != nil && groupUsage >= *groupLimit {
		return GroupLimitExceeded
	}
	if userLimit != nil && userUsage >= *userLimit {
		return UserLimitExceeded
	}
	return Allowed
}

// ExceededError reports which monthly limit blocked the request.
type ExceededError struct {
	Scope Decision
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s monthly limit reached", e.Scope)
}

// Store is the persistence the guard reads from.
type Store interface {
	GetLimits(ctx context.Context, groupID int64) (models.Limit, error)
	GetUsage(ctx context.Context, groupID, userID int64) (database.UsageTotals, error)
}

// Guard loads limits and usage and applies Check.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Authorize returns nil when userID may generate in groupID, an
// *ExceededError when a limit is reached, or the storage error.
func (g *Guard) Authorize(ctx context.Context, groupID, userID int64) error {
	limits, err := g.store.GetLimits(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load limits: %w", err)
	}
	usage, err := g.store.GetUsage(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}

	if d := Check(limits.GroupLimit, limits.UserLimit, usage.GroupCalls, usage.UserCalls); d != Allowed {
		return &ExceededError{Scope: d}
	}
	return nil
}
