package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
	obsmetrics "github.com/pantheonhq/pantheon/internal/observability/metrics"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	"github.com/pantheonhq/pantheon/internal/ratelimit"
	"github.com/pantheonhq/pantheon/pkg/db"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	ActionSvc  actiondomain.Service
	PlayerSvc  playerdomain.Service
	OracleSvc  oracledomain.Service
	Limiter    *ratelimit.ActionIngestLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics            `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	actionSvc  actiondomain.Service
	playerSvc  playerdomain.Service
	oracleSvc  oracledomain.Service
	limiter    *ratelimit.ActionIngestLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) bundledomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bundle.service"),
		actionSvc:  p.ActionSvc,
		playerSvc:  p.PlayerSvc,
		oracleSvc:  p.OracleSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// Sync assembles the combined owner view. Both optional parameter sets are
// validated up front so an invalid one rejects the whole call before any
// sub-resource is fetched.
func (s *Service) Sync(ctx context.Context, req bundledomain.SyncRequest) (*bundledomain.SyncResponse, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, actiondomain.ErrNotOwner
	}

	if req.IncludeActions {
		if err := validateListParams(scope, req.Actions, "actions"); err != nil {
			return nil, err
		}
	}
	if req.IncludeActionStats {
		if err := validateListParams(scope, req.ActionStats, "action_stats"); err != nil {
			return nil, err
		}
	}

	resp := &bundledomain.SyncResponse{}

	account, err := s.playerSvc.Get(ctx)
	if err != nil && !errors.Is(err, playerdomain.ErrAccountNotFound) {
		return nil, err
	}
	resp.PlayerAccount = account

	oracles, err := s.oracleSvc.ListMine(ctx)
	if err != nil {
		return nil, err
	}
	if oracles == nil {
		oracles = []*oracledomain.OracleProfile{}
	}
	resp.Oracles = oracles

	if req.IncludeActions {
		list, err := s.actionSvc.List(ctx, req.Actions)
		if err != nil {
			return nil, err
		}
		// A requested sub-result is always present, empty windows included.
		if list.Records == nil {
			list.Records = []*actiondomain.OracleAction{}
		}
		resp.Actions = list.Records
		resp.ActionsMeta = &list.Meta
	}

	if req.IncludeActionStats {
		stats, err := s.actionSvc.Aggregate(ctx, req.ActionStats)
		if err != nil {
			return nil, err
		}
		resp.ActionStats = stats.Counts
		resp.ActionStatsMeta = &stats.Meta
	}

	return resp, nil
}

// PurgeOwner deletes one user's ledger rows, oracle profiles and player
// account, and optionally the user row. Concurrent purges of the same user
// are serialized with a short lock.
func (s *Service) PurgeOwner(ctx context.Context, req bundledomain.PurgeRequest) (*bundledomain.PurgeResult, error) {
	if req.UserID == 0 {
		return nil, bundledomain.ErrPurgeTargetMissing
	}
	userID := req.UserID.String()

	if s.limiter.Enabled() {
		token, acquired, err := s.limiter.TryLockPurge(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, bundledomain.ErrPurgeInProgress
		}
		defer func() {
			if err := s.limiter.ReleasePurge(ctx, userID, token); err != nil {
				s.log.Warn("failed to release purge lock", zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}

	var user authdomain.User
	if err := s.db.WithContext(ctx).Where("id = ?", req.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bundledomain.ErrPurgeTargetMissing
		}
		return nil, db.TranslateError(err)
	}

	oracleIDs, playerIDs, err := s.ownedIdentifiers(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	result := &bundledomain.PurgeResult{}

	result.ActionsDeleted, err = s.actionSvc.DeleteByScope(ctx, oracleIDs, playerIDs)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Where("user_id = ?", req.UserID).Delete(&oracledomain.OracleProfile{})
	if res.Error != nil {
		return nil, db.TranslateError(res.Error)
	}
	result.OraclesDeleted = res.RowsAffected

	res = s.db.WithContext(ctx).Where("user_id = ?", req.UserID).Delete(&playerdomain.PlayerAccount{})
	if res.Error != nil {
		return nil, db.TranslateError(res.Error)
	}
	result.PlayerAccountsDeleted = res.RowsAffected

	if req.DeleteUser {
		res = s.db.WithContext(ctx).Where("id = ?", req.UserID).Delete(&authdomain.User{})
		if res.Error != nil {
			return nil, db.TranslateError(res.Error)
		}
		result.UsersDeleted = res.RowsAffected
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordBundlePurge(ctx)
	}

	s.log.Info("owner bundle purged",
		zap.String("user_id", userID),
		zap.Int64("actions_deleted", result.ActionsDeleted),
		zap.Int64("oracles_deleted", result.OraclesDeleted),
		zap.Int64("player_accounts_deleted", result.PlayerAccountsDeleted),
		zap.Int64("users_deleted", result.UsersDeleted),
	)
	return result, nil
}

func (s *Service) ownedIdentifiers(ctx context.Context, userID snowflake.ID) ([]string, []string, error) {
	var oracleIDs []string
	if err := s.db.WithContext(ctx).
		Model(&oracledomain.OracleProfile{}).
		Where("user_id = ?", userID).
		Pluck("oracle_id", &oracleIDs).Error; err != nil {
		return nil, nil, db.TranslateError(err)
	}

	var playerIDs []string
	if err := s.db.WithContext(ctx).
		Model(&playerdomain.PlayerAccount{}).
		Where("user_id = ?", userID).
		Pluck("player_id", &playerIDs).Error; err != nil {
		return nil, nil, db.TranslateError(err)
	}
	return oracleIDs, playerIDs, nil
}

func validateListParams(scope ownerctx.Ownership, req actiondomain.ListActionsRequest, paramSet string) error {
	if _, err := pagination.NormalizeOrder(req.Pagination.Order, pagination.OrderDesc); err != nil {
		return &bundledomain.ValidationError{ParamSet: paramSet, Err: err}
	}
	if oracleID := strings.TrimSpace(req.Filters.OracleID); oracleID != "" && !scope.OwnsOracle(oracleID) {
		return actiondomain.ErrNotOwner
	}
	if playerID := strings.TrimSpace(req.Filters.PlayerID); playerID != "" && !scope.OwnsPlayer(playerID) {
		return actiondomain.ErrNotOwner
	}
	return nil
}
