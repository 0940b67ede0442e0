package database

import (
	"context"
	"discord-video-bot/internal/models"

	"gorm.io/gorm/clause"
)

// GetLimits returns the limits for groupID. A group without a row has both
// limits unset.
func (db *DB) GetLimits(ctx context.Context, groupID int64) (models.Limit, error) {
	var lim models.Limit
	err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&lim).Error
	if isNotFound(err) {
		return models.Limit{GroupID: groupID}, nil
	}
	return lim, err
}

// SetGroupLimit sets the monthly group limit, leaving the user limit as is.
func (db *DB) SetGroupLimit(ctx context.Context, groupID int64, limit int) error {
	return db.upsertLimit(ctx, models.Limit{GroupID: groupID, GroupLimit: &limit}, "group_limit")
}

// SetUserLimit sets the monthly per-user limit, leaving the group limit as is.
func (db *DB) SetUserLimit(ctx context.Context, groupID int64, limit int) error {
	return db.upsertLimit(ctx, models.Limit{GroupID: groupID, UserLimit: &limit}, "user_limit")
}

func (db *DB) upsertLimit(ctx context.Context, lim models.Limit, column string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{column}),
		}).
		Create(&lim).Error
}
