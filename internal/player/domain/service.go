package domain

import (
	"context"
	"errors"
)

type UpsertRequest struct {
	PlayerID string         `json:"player_id"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Profile  map[string]any `json:"profile"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*PlayerAccount, error)
	Get(ctx context.Context) (*PlayerAccount, error)
}

var (
	ErrInvalidUsername = errors.New("invalid_username")
	ErrAccountNotFound = errors.New("player_account_not_found")
	ErrPlayerIDTaken   = errors.New("player_id_taken")
)
