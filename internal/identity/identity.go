// Package identity resolves the ownership scope for authenticated users.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/cache"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	"github.com/pantheonhq/pantheon/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ownershipTTL = 45 * time.Second

// Service resolves and caches per-user ownership scopes.
type Service interface {
	Resolve(ctx context.Context, user *authdomain.User) (ownerctx.Ownership, error)
	InvalidateUser(userID string)
}

type resolver struct {
	log     *zap.Logger
	players repository.Repository[playerdomain.PlayerAccount]
	oracles repository.Repository[oracledomain.OracleProfile]
	scopes  cache.Cache[string, ownerctx.Ownership]
}

func NewService(log *zap.Logger, db *gorm.DB) Service {
	return &resolver{
		log:     log.Named("identity.service"),
		players: repository.ProvideStore[playerdomain.PlayerAccount](db),
		oracles: repository.ProvideStore[oracledomain.OracleProfile](db),
		scopes:  cache.NewTTLCache[string, ownerctx.Ownership](),
	}
}

// Resolve loads the oracle and player ids the user owns.
func (r *resolver) Resolve(ctx context.Context, user *authdomain.User) (ownerctx.Ownership, error) {
	if user == nil || user.ID == 0 {
		return ownerctx.Ownership{}, nil
	}
	key := user.ID.String()
	if scope, ok := r.scopes.Get(key); ok {
		return scope, nil
	}

	scope := ownerctx.Ownership{
		UserID:   key,
		Username: user.Username,
		Role:     user.Role,
	}

	account, err := r.players.FindOne(ctx, &playerdomain.PlayerAccount{UserID: user.ID})
	if err != nil {
		return ownerctx.Ownership{}, err
	}
	if account != nil {
		scope.PlayerIDs = []string{account.PlayerID}
	}

	profiles, err := r.oracles.Find(ctx, &oracledomain.OracleProfile{UserID: user.ID})
	if err != nil {
		return ownerctx.Ownership{}, err
	}
	for _, profile := range profiles {
		if id := strings.TrimSpace(profile.OracleID); id != "" {
			scope.OracleIDs = append(scope.OracleIDs, id)
		}
	}

	r.scopes.Set(key, scope, ownershipTTL)
	return scope, nil
}

// InvalidateUser drops the cached scope after an ownership change.
func (r *resolver) InvalidateUser(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	r.scopes.Delete(userID)
}

// InvalidateID is a convenience wrapper for snowflake ids.
func InvalidateID(svc Service, id snowflake.ID) {
	if svc == nil || id == 0 {
		return
	}
	svc.InvalidateUser(id.String())
}
