// Package domain contains persistence models for oracle profiles.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OracleProfile is an oracle persona owned by a user.
type OracleProfile struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"not null;index"`
	OracleID  string            `gorm:"type:text;not null;uniqueIndex"`
	Name      string            `gorm:"type:text;not null"`
	Archetype string            `gorm:"type:text"`
	Profile   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OracleProfile) TableName() string { return "oracle_profiles" }
