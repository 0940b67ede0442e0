package database

import (
	"context"
	"discord-video-bot/internal/models"

	"gorm.io/gorm/clause"
)

// GetReference returns the image references stored for groupID, or "" when
// the group has none.
func (db *DB) GetReference(ctx context.Context, groupID int64) (string, error) {
	var ref models.Reference
	err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&ref).Error
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ref.ImageRefs, nil
}

// SetReference stores refs for groupID, replacing any previous value.
func (db *DB) SetReference(ctx context.Context, groupID int64, refs string) error {
	ref := models.Reference{GroupID: groupID, ImageRefs: refs}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"prompt"}),
		}).
		Create(&ref).Error
}
