package database

import (
	"context"
	"discord-video-bot/internal/models"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxSlotAttempts bounds retries when two writers race for the same
// user_video_id and the unique index rejects the loser.
const maxSlotAttempts = 3

// AddMemory inserts m with the next user_video_id for (m.UserID, m.GroupID)
// and returns that id. Timestamp defaults to now (UTC).
func (db *DB) AddMemory(ctx context.Context, m *models.Memory) (int, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = db.now().UTC()
	}
	if m.Status == "" {
		m.Status = models.StatusPending
	}

	var err error
	for attempt := 0; attempt < maxSlotAttempts; attempt++ {
		m.ID = 0
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var next int
			if err := tx.Model(&models.Memory{}).
				Select("COALESCE(MAX(user_video_id), 0) + 1").
				Where("user_id = ? AND group_id = ?", m.UserID, m.GroupID).
				Scan(&next).Error; err != nil {
				return err
			}
			m.UserVideoID = next
			return tx.Create(m).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("add memory: %w", err)
	}
	return m.UserVideoID, nil
}

// UpdateMemory sets the url and status of the entry created for taskID.
func (db *DB) UpdateMemory(ctx context.Context, userID, groupID int64, taskID, videoURL string, status models.MemoryStatus) error {
	return updateMemory(db.WithContext(ctx), userID, groupID, taskID, videoURL, status)
}

// RecordSuccess counts the generation against this month's usage and marks
// the entry for taskID as successful, in one transaction. An entry that is
// already successful is left alone and not counted again.
func (db *DB) RecordSuccess(ctx context.Context, userID, groupID int64, taskID, videoURL string) error {
	month := db.Month()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Memory{}).
			Where("user_id = ? AND group_id = ? AND task_id = ? AND status <> ?",
				userID, groupID, taskID, models.StatusSuccess).
			Updates(map[string]any{
				"video_url": videoURL,
				"status":    models.StatusSuccess,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return incrementUsage(tx, groupID, userID, month)
		}

		var n int64
		if err := tx.Model(&models.Memory{}).
			Where("user_id = ? AND group_id = ? AND task_id = ?", userID, groupID, taskID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func updateMemory(tx *gorm.DB, userID, groupID int64, taskID, videoURL string, status models.MemoryStatus) error {
	res := tx.Model(&models.Memory{}).
		Where("user_id = ? AND group_id = ? AND task_id = ?", userID, groupID, taskID).
		Updates(map[string]any{
			"video_url": videoURL,
			"status":    status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMemoryByID returns the entry with the given per-user slot number.
func (db *DB) GetMemoryByID(ctx context.Context, userID, groupID int64, userVideoID int) (*models.Memory, error) {
	var m models.Memory
	err := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ? AND user_video_id = ?", userID, groupID, userVideoID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMemories returns up to limit entries for the user in the group,
// newest first.
func (db *DB) RecentMemories(ctx context.Context, userID, groupID int64, limit int) ([]models.Memory, error) {
	var out []models.Memory
	err := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "user_video_id"}, Desc: true}).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchMemories returns the user's entries whose prompt embedding is
// closest to embedding. Postgres only.
func (db *DB) SearchMemories(ctx context.Context, userID, groupID int64, embedding []float32, limit int) ([]models.Memory, error) {
	if !db.IsPostgres() {
		return nil, errors.New("memory search requires the postgres driver")
	}

	vector := pgvector.NewVector(embedding)

	var out []models.Memory
	err := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ? AND prompt_embedding IS NOT NULL", userID, groupID).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "prompt_embedding <-> ?", Vars: []any{vector}, WithoutParentheses: true},
		}).
		Limit(limit).
		Find(&out).Error
	return out, err
}
