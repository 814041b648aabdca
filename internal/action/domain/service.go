package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pantheonhq/pantheon/pkg/db"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

// RecordActionRequest appends one ledger row. Metadata is stored verbatim
// and never interpreted.
type RecordActionRequest struct {
	OracleID       string          `json:"oracle_id"`
	PlayerID       string          `json:"player_id"`
	Action         string          `json:"action"`
	ClientActionID *string         `json:"client_action_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

// RecordActionResult distinguishes a fresh append from an idempotent replay.
type RecordActionResult struct {
	Record       *OracleAction `json:"record"`
	Deduplicated bool          `json:"deduplicated"`
}

// BulkRecordResult reports per-batch outcome counts.
type BulkRecordResult struct {
	Records      []*OracleAction `json:"records"`
	Inserted     int             `json:"inserted"`
	Deduplicated int             `json:"deduplicated"`
}

// ActionFilters are the caller-supplied query bounds, already parsed.
type ActionFilters struct {
	OracleID string
	PlayerID string
	Action   string
	Since    *time.Time
	Until    *time.Time
}

type ListActionsRequest struct {
	Filters    ActionFilters
	Pagination pagination.Pagination
}

// ListMeta echoes the effective window and the ownership scope consulted.
type ListMeta struct {
	pagination.PageInfo
	OracleIDs []string   `json:"oracle_ids"`
	PlayerIDs []string   `json:"player_ids"`
	Action    string     `json:"action,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

type ListActionsResponse struct {
	Records []*OracleAction `json:"records"`
	Meta    ListMeta        `json:"meta"`
}

// StatsMeta adds the bounded-window honesty fields to ListMeta.
type StatsMeta struct {
	ListMeta
	RowsAggregated int `json:"rows_aggregated"`
}

type AggregateActionsResponse struct {
	Counts map[string]int64 `json:"counts"`
	Meta   StatsMeta        `json:"meta"`
}

type Service interface {
	Record(ctx context.Context, req RecordActionRequest) (*RecordActionResult, error)
	RecordBulk(ctx context.Context, reqs []RecordActionRequest) (*BulkRecordResult, error)
	List(ctx context.Context, req ListActionsRequest) (*ListActionsResponse, error)
	Aggregate(ctx context.Context, req ListActionsRequest) (*AggregateActionsResponse, error)
	DeleteByScope(ctx context.Context, oracleIDs, playerIDs []string) (int64, error)
}

var (
	ErrInvalidAction         = errors.New("invalid_action")
	ErrInvalidClientActionID = errors.New("invalid_client_action_id")
	ErrInvalidMetadata       = errors.New("invalid_metadata")
	ErrNotOwner              = errors.New("not_owner")
	ErrBulkTooLarge          = errors.New("bulk_too_large")
	ErrBulkEmpty             = errors.New("bulk_empty")
	ErrRateLimited           = errors.New("rate_limited")

	// ErrStoreUnavailable is the shared retryable store failure, surfaced
	// here so callers of the ledger never import the db package directly.
	ErrStoreUnavailable = db.ErrUnavailable
)
