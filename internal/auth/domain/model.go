// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// User represents a registered account.
type User struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	Username     string            `gorm:"type:text;not null;uniqueIndex"`
	Email        string            `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string            `gorm:"type:text;not null"`
	Role         string            `gorm:"type:text;not null;default:player"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
