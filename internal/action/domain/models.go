// Package domain contains persistence models for the action ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OracleAction is one append-only ledger row. Rows are never updated; the
// only deletion path is the administrative owner purge.
type OracleAction struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	OracleID       string         `gorm:"type:text;not null;uniqueIndex:uniq_oracle_client_action,priority:1;index:idx_oracle_actions_scope,priority:1"`
	PlayerID       string         `gorm:"type:text;not null;index"`
	Action         string         `gorm:"type:text;not null"`
	ClientActionID *string        `gorm:"type:text;uniqueIndex:uniq_oracle_client_action,priority:2"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_oracle_actions_scope,priority:2"`
}

// TableName sets the database table name.
func (OracleAction) TableName() string { return "oracle_actions" }
