package database

import (
	"context"
	"discord-video-bot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageTotals is the current-month usage seen by the quota check.
type UsageTotals struct {
	GroupCalls int // all users in the group
	UserCalls  int // this user in the group
}

// GetUsage returns this month's usage for userID in groupID. Months without
// a row count as zero.
func (db *DB) GetUsage(ctx context.Context, groupID, userID int64) (UsageTotals, error) {
	month := db.Month()
	var totals UsageTotals
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groupCalls int64
		if err := tx.Model(&models.Usage{}).
			Select("COALESCE(SUM(group_calls), 0)").
			Where("group_id = ? AND month = ?", groupID, month).
			Scan(&groupCalls).Error; err != nil {
			return err
		}

		var row models.Usage
		err := tx.Where("group_id = ? AND user_id = ? AND month = ?", groupID, userID, month).
			First(&row).Error
		if err != nil && !isNotFound(err) {
			return err
		}

		totals = UsageTotals{GroupCalls: int(groupCalls), UserCalls: row.UserCalls}
		return nil
	})
	return totals, err
}

// IncrementUsage counts one successful generation for userID in groupID.
func (db *DB) IncrementUsage(ctx context.Context, groupID, userID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return incrementUsage(tx, groupID, userID, db.Month())
	})
}

func incrementUsage(tx *gorm.DB, groupID, userID int64, month string) error {
	row := models.Usage{GroupID: groupID, UserID: userID, Month: month}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return err
	}
	return tx.Model(&models.Usage{}).
		Where("group_id = ? AND user_id = ? AND month = ?", groupID, userID, month).
		Updates(map[string]any{
			"group_calls": gorm.Expr("group_calls + 1"),
			"user_calls":  gorm.Expr("user_calls + 1"),
		}).Error
}
