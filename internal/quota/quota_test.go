package quota

import (
	"context"
	"discord-video-bot/internal/database"
	"discord-video-bot/internal/models"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCheck(t *testing.T) {
	cases := []struct {
		name       string
		groupLimit *int
		userLimit  *int
		groupUsage int
		userUsage  int
		want       Decision
	}{
		{"no limits", nil, nil, 1000, 1000, Allowed},
		{"under both", intPtr(100), intPtr(10), 50, 9, Allowed},
		{"group reached", intPtr(100), intPtr(10), 100, 0, GroupLimitExceeded},
		{"user reached", intPtr(100), intPtr(10), 50, 10, UserLimitExceeded},
		{"group checked first", intPtr(5), intPtr(5), 5, 5, GroupLimitExceeded},
		{"user only", nil, intPtr(10), 0, 10, UserLimitExceeded},
		{"zero limit blocks", intPtr(0), nil, 0, 0, GroupLimitExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.groupLimit, tc.userLimit, tc.groupUsage, tc.userUsage))
		})
	}
}

func TestExceededError_Message(t *testing.T) {
	assert.Equal(t, "group monthly limit reached", (&ExceededError{Scope: GroupLimitExceeded}).Error())
	assert.Equal(t, "user monthly limit reached", (&ExceededError{Scope: UserLimitExceeded}).Error())
}

type stubStore struct {
	limits   models.Limit
	usage    database.UsageTotals
	limitErr error
	usageErr error
}

func (s stubStore) GetLimits(context.Context, int64) (models.Limit, error) {
	return s.limits, s.limitErr
}

func (s stubStore) GetUsage(context.Context, int64, int64) (database.UsageTotals, error) {
	return s.usage, s.usageErr
}

func TestGuard_PropagatesStorageErrors(t *testing.T) {
	boom := errors.New("db down")

	err := NewGuard(stubStore{limitErr: boom}).Authorize(context.Background(), 1, 1)
	assert.ErrorIs(t, err, boom)

	err = NewGuard(stubStore{usageErr: boom}).Authorize(context.Background(), 1, 1)
	assert.ErrorIs(t, err, boom)
}

func TestGuard_AuthorizeAgainstDatabase(t *testing.T) {
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	guard := NewGuard(db)

	require.NoError(t, guard.Authorize(ctx, 1, 7))

	require.NoError(t, db.SetUserLimit(ctx, 1, 10))
	for i := 0; i < 10; i++ {
		require.NoError(t, db.IncrementUsage(ctx, 1, 7))
	}

	err = guard.Authorize(ctx, 1, 7)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, UserLimitExceeded, exceeded.Scope)

	// Another user in the same group is still under the per-user cap.
	require.NoError(t, guard.Authorize(ctx, 1, 8))

	// The group cap counts every user's calls.
	require.NoError(t, db.SetGroupLimit(ctx, 1, 10))
	err = guard.Authorize(ctx, 1, 8)
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, GroupLimitExceeded, exceeded.Scope)
}
