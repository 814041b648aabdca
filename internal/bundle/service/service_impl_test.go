package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	actionservice "github.com/pantheonhq/pantheon/internal/action/service"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
	"github.com/pantheonhq/pantheon/internal/config"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	oracleservice "github.com/pantheonhq/pantheon/internal/oracle/service"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	playerservice "github.com/pantheonhq/pantheon/internal/player/service"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

type testBundle struct {
	svc    bundledomain.Service
	action actiondomain.Service
	db     *gorm.DB
	node   *snowflake.Node
}

func newTestBundle(t *testing.T) *testBundle {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&authdomain.User{},
		&playerdomain.PlayerAccount{},
		&oracledomain.OracleProfile{},
		&actiondomain.OracleAction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	playerSvc := playerservice.NewService(playerservice.ServiceParam{DB: db, Log: log, GenID: node})
	oracleSvc := oracleservice.NewService(oracleservice.ServiceParam{DB: db, Log: log, GenID: node})
	actionSvc := actionservice.NewService(actionservice.ServiceParam{
		DB: db, Log: log, GenID: node,
		Limits: config.NewStaticLimitsHolder(config.LimitsConfig{
			ListDefaultLimit:  25,
			ListMaxLimit:      500,
			StatsDefaultLimit: 200,
			StatsMaxLimit:     1000,
			BulkMaxActions:    100,
		}),
	})
	svc := NewService(Params{
		DB: db, Log: log,
		ActionSvc: actionSvc, PlayerSvc: playerSvc, OracleSvc: oracleSvc,
	})

	return &testBundle{svc: svc, action: actionSvc, db: db, node: node}
}

func (b *testBundle) seedOwner(t *testing.T, userID snowflake.ID, oracleID, playerID string) context.Context {
	t.Helper()

	require.NoError(t, b.db.Create(&authdomain.User{
		ID: userID, Username: "owner-" + userID.String(),
		Email: userID.String() + "@example.com", PasswordHash: "x", Role: authdomain.RolePlayer,
	}).Error)
	require.NoError(t, b.db.Create(&playerdomain.PlayerAccount{
		ID: b.node.Generate(), UserID: userID, PlayerID: playerID, Username: "owner",
	}).Error)
	require.NoError(t, b.db.Create(&oracledomain.OracleProfile{
		ID: b.node.Generate(), UserID: userID, OracleID: oracleID, Name: "Delphi",
	}).Error)

	return ownerctx.WithOwnership(context.Background(), ownerctx.Ownership{
		UserID:    userID.String(),
		Role:      authdomain.RolePlayer,
		OracleIDs: []string{oracleID},
		PlayerIDs: []string{playerID},
	})
}

func (b *testBundle) seedAction(t *testing.T, oracleID, playerID, action string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, b.db.Create(&actiondomain.OracleAction{
		ID: b.node.Generate(), OracleID: oracleID, PlayerID: playerID,
		Action: action, CreatedAt: createdAt,
	}).Error)
}

func TestSyncReturnsRequestedSubResources(t *testing.T) {
	b := newTestBundle(t)
	ctx := b.seedOwner(t, 101, "oracle-a", "player-a")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.seedAction(t, "oracle-a", "player-a", "pray", base)
	b.seedAction(t, "oracle-a", "player-a", "offer", base.Add(time.Minute))

	resp, err := b.svc.Sync(ctx, bundledomain.SyncRequest{
		IncludeActions:     true,
		IncludeActionStats: true,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.PlayerAccount)
	assert.Equal(t, "player-a", resp.PlayerAccount.PlayerID)
	require.Len(t, resp.Oracles, 1)
	assert.Len(t, resp.Actions, 2)
	require.NotNil(t, resp.ActionsMeta)
	assert.Equal(t, int64(2), resp.ActionsMeta.TotalAvailable)
	assert.Equal(t, int64(1), resp.ActionStats["pray"])
	require.NotNil(t, resp.ActionStatsMeta)
	assert.Equal(t, 2, resp.ActionStatsMeta.RowsAggregated)
}

func TestSyncOmitsUnrequestedSubResources(t *testing.T) {
	b := newTestBundle(t)
	ctx := b.seedOwner(t, 102, "oracle-a", "player-a")

	resp, err := b.svc.Sync(ctx, bundledomain.SyncRequest{})
	require.NoError(t, err)
	assert.Nil(t, resp.Actions)
	assert.Nil(t, resp.ActionsMeta)
	assert.Nil(t, resp.ActionStats)
	assert.Nil(t, resp.ActionStatsMeta)
}

func TestSyncValidatesBothParamSetsBeforeFetching(t *testing.T) {
	b := newTestBundle(t)
	ctx := b.seedOwner(t, 103, "oracle-a", "player-a")

	_, err := b.svc.Sync(ctx, bundledomain.SyncRequest{
		IncludeActions:     true,
		IncludeActionStats: true,
		ActionStats: actiondomain.ListActionsRequest{
			Pagination: pagination.Pagination{Order: "sideways"},
		},
	})
	require.Error(t, err)

	var vErr *bundledomain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "action_stats", vErr.ParamSet)
}

func TestSyncRejectsUnownedNarrowing(t *testing.T) {
	b := newTestBundle(t)
	ctx := b.seedOwner(t, 104, "oracle-a", "player-a")

	_, err := b.svc.Sync(ctx, bundledomain.SyncRequest{
		IncludeActions: true,
		Actions: actiondomain.ListActionsRequest{
			Filters: actiondomain.ActionFilters{OracleID: "oracle-x"},
		},
	})
	assert.ErrorIs(t, err, actiondomain.ErrNotOwner)
}

func TestSyncToleratesMissingPlayerAccount(t *testing.T) {
	b := newTestBundle(t)

	userID := snowflake.ID(105)
	require.NoError(t, b.db.Create(&authdomain.User{
		ID: userID, Username: "fresh", Email: "fresh@example.com",
		PasswordHash: "x", Role: authdomain.RolePlayer,
	}).Error)
	ctx := ownerctx.WithOwnership(context.Background(), ownerctx.Ownership{
		UserID: userID.String(), Role: authdomain.RolePlayer,
	})

	resp, err := b.svc.Sync(ctx, bundledomain.SyncRequest{})
	require.NoError(t, err)
	assert.Nil(t, resp.PlayerAccount)
	assert.Empty(t, resp.Oracles)
}

func TestPurgeOwnerDeletesBundle(t *testing.T) {
	b := newTestBundle(t)
	b.seedOwner(t, 106, "oracle-a", "player-a")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.seedAction(t, "oracle-a", "player-a", "pray", base)
	b.seedAction(t, "oracle-a", "player-a", "offer", base.Add(time.Minute))

	result, err := b.svc.PurgeOwner(context.Background(), bundledomain.PurgeRequest{
		UserID:     106,
		DeleteUser: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ActionsDeleted)
	assert.Equal(t, int64(1), result.OraclesDeleted)
	assert.Equal(t, int64(1), result.PlayerAccountsDeleted)
	assert.Equal(t, int64(1), result.UsersDeleted)

	var count int64
	require.NoError(t, b.db.Model(&actiondomain.OracleAction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPurgeOwnerKeepsUserRowWhenAsked(t *testing.T) {
	b := newTestBundle(t)
	b.seedOwner(t, 107, "oracle-a", "player-a")

	result, err := b.svc.PurgeOwner(context.Background(), bundledomain.PurgeRequest{UserID: 107})
	require.NoError(t, err)
	assert.Zero(t, result.UsersDeleted)

	var count int64
	require.NoError(t, b.db.Model(&authdomain.User{}).Where("id = ?", 107).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPurgeOwnerMissingTarget(t *testing.T) {
	b := newTestBundle(t)

	_, err := b.svc.PurgeOwner(context.Background(), bundledomain.PurgeRequest{UserID: 999})
	assert.ErrorIs(t, err, bundledomain.ErrPurgeTargetMissing)

	_, err = b.svc.PurgeOwner(context.Background(), bundledomain.PurgeRequest{})
	assert.ErrorIs(t, err, bundledomain.ErrPurgeTargetMissing)
}

func TestSyncEmptyWindowStillPopulatesActions(t *testing.T) {
	b := newTestBundle(t)
	ctx := b.seedOwner(t, 108, "oracle-a", "player-a")

	resp, err := b.svc.Sync(ctx, bundledomain.SyncRequest{
		IncludeActions:     true,
		IncludeActionStats: true,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Actions)
	assert.Len(t, resp.Actions, 0)
	require.NotNil(t, resp.ActionStats)
	assert.Len(t, resp.ActionStats, 0)
}
