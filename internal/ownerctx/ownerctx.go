// Package ownerctx carries the authenticated owner's scope through request contexts.
package ownerctx

import (
	"context"
	"strings"
)

// Ownership describes the identifiers an authenticated user may read and write.
type Ownership struct {
	UserID    string
	Username  string
	Role      string
	OracleIDs []string
	PlayerIDs []string
}

// OwnerContextKey is the request context key for the active ownership scope.
type OwnerContextKey struct{}

// WithOwnership stores the ownership scope in the context.
func WithOwnership(ctx context.Context, scope Ownership) context.Context {
	return context.WithValue(ctx, OwnerContextKey{}, scope)
}

// FromContext returns the ownership scope from context, if set.
func FromContext(ctx context.Context) (Ownership, bool) {
	if ctx == nil {
		return Ownership{}, false
	}
	scope, ok := ctx.Value(OwnerContextKey{}).(Ownership)
	if !ok || strings.TrimSpace(scope.UserID) == "" {
		return Ownership{}, false
	}
	return scope, true
}

// OwnsOracle reports whether the scope covers the given oracle id.
func (o Ownership) OwnsOracle(oracleID string) bool {
	return containsFold(o.OracleIDs, oracleID)
}

// OwnsPlayer reports whether the scope covers the given player id.
func (o Ownership) OwnsPlayer(playerID string) bool {
	return containsFold(o.PlayerIDs, playerID)
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}
