package database

import (
	"context"
	"discord-video-bot/internal/models"

	"gorm.io/gorm/clause"
)

// UpsertGroup records a group, updating its name if it is already known.
func (db *DB) UpsertGroup(ctx context.Context, groupID int64, name string) error {
	g := models.Group{GroupID: groupID, GroupName: name}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"group_name"}),
		}).
		Create(&g).Error
}

// ListGroups returns every known group ordered by id.
func (db *DB) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := db.WithContext(ctx).Order("group_id").Find(&groups).Error
	return groups, err
}
