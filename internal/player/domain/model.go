// Package domain contains persistence models for player accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PlayerAccount links a user to their public player identity.
type PlayerAccount struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"not null;uniqueIndex"`
	PlayerID  string            `gorm:"type:text;not null;uniqueIndex"`
	Username  string            `gorm:"type:text;not null"`
	Email     string            `gorm:"type:text"`
	Profile   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlayerAccount) TableName() string { return "player_accounts" }
