// internal/models/models.go
package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// MemoryStatus is the lifecycle state of a memory entry.
type MemoryStatus string

const (
	StatusPending MemoryStatus = "pending"
	StatusSuccess MemoryStatus = "success"
	StatusFailed  MemoryStatus = "failed"
)

// Group is a guild the bot has been added to.
type Group struct {
	GroupID   int64 `gorm:"primaryKey;autoIncrement:false"`
	GroupName string
}

func (Group) TableName() string { return "groups" }

// Reference holds the seed image urls a group generates from.
type Reference struct {
	GroupID   int64  `gorm:"primaryKey;autoIncrement:false"`
	ImageRefs string `gorm:"column:prompt;type:text"`
}

func (Reference) TableName() string { return "prompts" }

// Limit holds the monthly caps for a group. A nil field means unlimited.
type Limit struct {
	GroupID    int64 `gorm:"primaryKey;autoIncrement:false"`
	GroupLimit *int
	UserLimit  *int
}

func (Limit) TableName() string { return "limits" }

// Usage counts successful generations of one user in one group for one month.
type Usage struct {
	GroupID    int64  `gorm:"primaryKey;autoIncrement:false"`
	UserID     int64  `gorm:"primaryKey;autoIncrement:false"`
	Month      string `gorm:"primaryKey;size:7"` // YYYY-MM
	GroupCalls int    `gorm:"not null;default:0"`
	UserCalls  int    `gorm:"not null;default:0"`
}

func (Usage) TableName() string { return "usage" }

// Memory is one generation request and its result.
//
// ID is the internal row id. UserVideoID is the slot number shown to the
// user and is sequential per (UserID, GroupID).
type Memory struct {
	ID              uint             `gorm:"primaryKey"`
	UserID          int64            `gorm:"not null;uniqueIndex:idx_memory_slot,priority:1;index:idx_memory_task,priority:1"`
	GroupID         int64            `gorm:"not null;uniqueIndex:idx_memory_slot,priority:2;index:idx_memory_task,priority:2"`
	UserVideoID     int              `gorm:"not null;uniqueIndex:idx_memory_slot,priority:3"`
	VideoURL        string           `gorm:"type:text"`
	Timestamp       time.Time        `gorm:"column:timestamp;not null"`
	TaskID          string           `gorm:"not null;index:idx_memory_task,priority:3"`
	Status          MemoryStatus     `gorm:"size:16;not null"`
	Prompt          string           `gorm:"type:text"`
	PromptEmbedding *pgvector.Vector `gorm:"type:vector(1536)"` // OpenAI embedding size
}

func (Memory) TableName() string { return "memory" }
