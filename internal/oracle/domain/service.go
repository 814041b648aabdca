package domain

import (
	"context"
	"errors"
)

type UpsertRequest struct {
	OracleID  string         `json:"oracle_id"`
	Name      string         `json:"name"`
	Archetype string         `json:"archetype"`
	Profile   map[string]any `json:"profile"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*OracleProfile, error)
	ListMine(ctx context.Context) ([]*OracleProfile, error)
}

var (
	ErrInvalidName   = errors.New("invalid_oracle_name")
	ErrOracleIDTaken = errors.New("oracle_id_taken")
	ErrNotOwner      = errors.New("not_oracle_owner")
)
