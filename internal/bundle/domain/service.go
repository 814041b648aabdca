// Package domain defines the combined sync and owner purge contracts.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
)

// SyncRequest selects which sub-resources a combined fetch returns. The
// actions list and the action stats carry independent filter and pagination
// parameters.
type SyncRequest struct {
	IncludeActions     bool
	IncludeActionStats bool

	Actions     actiondomain.ListActionsRequest
	ActionStats actiondomain.ListActionsRequest
}

// SyncResponse is the combined owner view. Actions and stats are filled only
// when requested, always together with their meta blocks; a requested
// sub-result is non-nil even when it matched nothing.
type SyncResponse struct {
	PlayerAccount *playerdomain.PlayerAccount   `json:"player_account"`
	Oracles       []*oracledomain.OracleProfile `json:"oracles"`

	Actions     []*actiondomain.OracleAction `json:"actions"`
	ActionsMeta *actiondomain.ListMeta       `json:"actions_meta,omitempty"`

	ActionStats     map[string]int64        `json:"action_stats"`
	ActionStatsMeta *actiondomain.StatsMeta `json:"action_stats_meta,omitempty"`
}

// PurgeRequest names the user whose bundle is deleted.
type PurgeRequest struct {
	UserID     snowflake.ID
	DeleteUser bool
}

// PurgeResult reports per-table deletion counts.
type PurgeResult struct {
	ActionsDeleted        int64 `json:"actions_deleted"`
	OraclesDeleted        int64 `json:"oracles_deleted"`
	PlayerAccountsDeleted int64 `json:"player_accounts_deleted"`
	UsersDeleted          int64 `json:"users_deleted"`
}

type Service interface {
	Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error)
	PurgeOwner(ctx context.Context, req PurgeRequest) (*PurgeResult, error)
}

var (
	ErrPurgeInProgress    = errors.New("purge_in_progress")
	ErrPurgeTargetMissing = errors.New("purge_target_missing")
)

// ValidationError rejects a whole sync call and names the parameter set
// that failed, so callers can tell the actions params from the stats params.
type ValidationError struct {
	ParamSet string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s parameters: %v", e.ParamSet, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
