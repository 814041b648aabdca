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

	"github.com/pantheonhq/pantheon/internal/action/domain"
	"github.com/pantheonhq/pantheon/internal/config"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

func newTestService(t *testing.T, limits config.LimitsConfig) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.OracleAction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Limits: config.NewStaticLimitsHolder(limits),
	})
	return svc, db, node
}

func defaultTestLimits() config.LimitsConfig {
	return config.LimitsConfig{
		ListDefaultLimit:  25,
		ListMaxLimit:      500,
		StatsDefaultLimit: 200,
		StatsMaxLimit:     1000,
		BulkMaxActions:    100,
	}
}

func ownerContext(userID string, oracleIDs, playerIDs []string) context.Context {
	return ownerctx.WithOwnership(context.Background(), ownerctx.Ownership{
		UserID:    userID,
		Role:      "player",
		OracleIDs: oracleIDs,
		PlayerIDs: playerIDs,
	})
}

func seedAction(t *testing.T, db *gorm.DB, node *snowflake.Node, oracleID, playerID, action string, createdAt time.Time) *domain.OracleAction {
	t.Helper()
	record := &domain.OracleAction{
		ID:        node.Generate(),
		OracleID:  oracleID,
		PlayerID:  playerID,
		Action:    action,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func strPtr(s string) *string { return &s }

func TestRecordActionIdempotentReplay(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	req := domain.RecordActionRequest{
		OracleID:       "oracle-a",
		PlayerID:       "player-a",
		Action:         "pray",
		ClientActionID: strPtr("client-1"),
		Metadata:       []byte(`{"temple":"delphi"}`),
	}

	first, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.NotZero(t, first.Record.ID)

	replay, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.True(t, replay.Deduplicated)
	assert.Equal(t, first.Record.ID, replay.Record.ID)

	var count int64
	require.NoError(t, db.Model(&domain.OracleAction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordActionWithoutClientIDAlwaysAppends(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	req := domain.RecordActionRequest{
		OracleID: "oracle-a",
		PlayerID: "player-a",
		Action:   "pray",
	}

	for i := 0; i < 3; i++ {
		result, err := svc.Record(ctx, req)
		require.NoError(t, err)
		assert.False(t, result.Deduplicated)
	}

	var count int64
	require.NoError(t, db.Model(&domain.OracleAction{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestRecordActionOwnershipDenialIsUniform(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	cases := []struct {
		name string
		req  domain.RecordActionRequest
	}{
		{"unowned oracle", domain.RecordActionRequest{OracleID: "oracle-b", PlayerID: "player-a", Action: "pray"}},
		{"unowned player", domain.RecordActionRequest{OracleID: "oracle-a", PlayerID: "player-b", Action: "pray"}},
		{"both unowned", domain.RecordActionRequest{OracleID: "oracle-b", PlayerID: "player-b", Action: "pray"}},
		{"empty oracle", domain.RecordActionRequest{OracleID: "", PlayerID: "player-a", Action: "pray"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tc.req)
			assert.ErrorIs(t, err, domain.ErrNotOwner)
		})
	}

	var count int64
	require.NoError(t, db.Model(&domain.OracleAction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordActionValidation(t *testing.T) {
	svc, _, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.Record(context.Background(), domain.RecordActionRequest{
		OracleID: "oracle-a", PlayerID: "player-a", Action: "pray",
	})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = svc.Record(ctx, domain.RecordActionRequest{
		OracleID: "oracle-a", PlayerID: "player-a", Action: "  ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = svc.Record(ctx, domain.RecordActionRequest{
		OracleID: "oracle-a", PlayerID: "player-a", Action: "pray", ClientActionID: strPtr("   "),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidClientActionID)

	_, err = svc.Record(ctx, domain.RecordActionRequest{
		OracleID: "oracle-a", PlayerID: "player-a", Action: "pray", Metadata: []byte(`{broken`),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMetadata)
}

func TestRecordBulkCountsInsertedAndDeduplicated(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.Record(ctx, domain.RecordActionRequest{
		OracleID: "oracle-a", PlayerID: "player-a", Action: "pray", ClientActionID: strPtr("dup"),
	})
	require.NoError(t, err)

	result, err := svc.RecordBulk(ctx, []domain.RecordActionRequest{
		{OracleID: "oracle-a", PlayerID: "player-a", Action: "pray", ClientActionID: strPtr("dup")},
		{OracleID: "oracle-a", PlayerID: "player-a", Action: "offer", ClientActionID: strPtr("fresh-1")},
		{OracleID: "oracle-a", PlayerID: "player-a", Action: "divine"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Deduplicated)
	assert.Len(t, result.Records, 3)

	var count int64
	require.NoError(t, db.Model(&domain.OracleAction{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestRecordBulkValidatesEveryEntryBeforeInserting(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.RecordBulk(ctx, []domain.RecordActionRequest{
		{OracleID: "oracle-a", PlayerID: "player-a", Action: "pray"},
		{OracleID: "oracle-stolen", PlayerID: "player-a", Action: "pray"},
	})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	var count int64
	require.NoError(t, db.Model(&domain.OracleAction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordBulkSizeBounds(t *testing.T) {
	limits := defaultTestLimits()
	limits.BulkMaxActions = 2
	svc, _, _ := newTestService(t, limits)
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.RecordBulk(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrBulkEmpty)

	oversized := make([]domain.RecordActionRequest, 3)
	for i := range oversized {
		oversized[i] = domain.RecordActionRequest{OracleID: "oracle-a", PlayerID: "player-a", Action: "pray"}
	}
	_, err = svc.RecordBulk(ctx, oversized)
	assert.ErrorIs(t, err, domain.ErrBulkTooLarge)
}

func TestListActionsScopedToOwner(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedAction(t, db, node, "oracle-a", "player-a", "pray", base)
	seedAction(t, db, node, "oracle-a", "player-a", "offer", base.Add(time.Minute))
	seedAction(t, db, node, "oracle-x", "player-x", "steal", base.Add(2*time.Minute))

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})
	resp, err := svc.List(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)

	assert.Len(t, resp.Records, 2)
	for _, record := range resp.Records {
		assert.Equal(t, "oracle-a", record.OracleID)
	}
	assert.Equal(t, int64(2), resp.Meta.TotalAvailable)
	assert.Equal(t, 2, resp.Meta.Returned)
	assert.False(t, resp.Meta.HasMore)
	assert.Equal(t, []string{"oracle-a"}, resp.Meta.OracleIDs)
	assert.Equal(t, []string{"player-a"}, resp.Meta.PlayerIDs)
}

func TestListActionsPaginationIsConsistent(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", fmt.Sprintf("act-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	var paged []snowflake.ID
	for offset := 0; offset < 5; offset += 2 {
		resp, err := svc.List(ctx, domain.ListActionsRequest{
			Pagination: pagination.Pagination{Limit: 2, Offset: offset},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Meta.Limit)
		assert.Equal(t, offset, resp.Meta.Offset)
		assert.Equal(t, int64(5), resp.Meta.TotalAvailable)
		assert.Equal(t, offset+len(resp.Records) < 5, resp.Meta.HasMore)
		for _, record := range resp.Records {
			paged = append(paged, record.ID)
		}
	}

	full, err := svc.List(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)
	var all []snowflake.ID
	for _, record := range full.Records {
		all = append(all, record.ID)
	}
	assert.Equal(t, all, paged)

	// Default order is newest first.
	assert.Equal(t, "act-4", full.Records[0].Action)
	assert.Equal(t, "act-0", full.Records[4].Action)
}

func TestListActionsOrderAscending(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", fmt.Sprintf("act-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})
	resp, err := svc.List(ctx, domain.ListActionsRequest{
		Pagination: pagination.Pagination{Order: "asc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "act-0", resp.Records[0].Action)
	assert.Equal(t, "act-2", resp.Records[2].Action)
	assert.Equal(t, "asc", resp.Meta.Order)
}

func TestListActionsRejectsInvalidOrder(t *testing.T) {
	svc, _, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.List(ctx, domain.ListActionsRequest{
		Pagination: pagination.Pagination{Order: "sideways"},
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidOrder)
}

func TestListActionsClampsWindow(t *testing.T) {
	limits := defaultTestLimits()
	limits.ListDefaultLimit = 2
	limits.ListMaxLimit = 3
	svc, db, node := newTestService(t, limits)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", "pray", base.Add(time.Duration(i)*time.Minute))
	}

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	resp, err := svc.List(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Meta.Limit)
	assert.Len(t, resp.Records, 2)
	assert.True(t, resp.Meta.HasMore)

	resp, err = svc.List(ctx, domain.ListActionsRequest{
		Pagination: pagination.Pagination{Limit: 50, Offset: -10},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Meta.Limit)
	assert.Equal(t, 0, resp.Meta.Offset)
	assert.Len(t, resp.Records, 3)
}

func TestListActionsNarrowingMustBeOwned(t *testing.T) {
	svc, _, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	_, err := svc.List(ctx, domain.ListActionsRequest{
		Filters: domain.ActionFilters{OracleID: "oracle-x"},
	})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = svc.List(ctx, domain.ListActionsRequest{
		Filters: domain.ActionFilters{PlayerID: "player-x"},
	})
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestListActionsNarrowedMetaEchoesConsultedIDs(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedAction(t, db, node, "oracle-a", "player-a", "pray", base)
	seedAction(t, db, node, "oracle-b", "player-a", "pray", base.Add(time.Minute))

	ctx := ownerContext("1", []string{"oracle-a", "oracle-b"}, []string{"player-a"})
	resp, err := svc.List(ctx, domain.ListActionsRequest{
		Filters: domain.ActionFilters{OracleID: "oracle-b"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Records, 1)
	assert.Equal(t, "oracle-b", resp.Records[0].OracleID)
	assert.Equal(t, []string{"oracle-b"}, resp.Meta.OracleIDs)
}

func TestListActionsTimeWindowIsInclusive(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedAction(t, db, node, "oracle-a", "player-a", "before", base.Add(-time.Hour))
	edge := seedAction(t, db, node, "oracle-a", "player-a", "edge", base)
	seedAction(t, db, node, "oracle-a", "player-a", "after", base.Add(time.Hour))

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})
	resp, err := svc.List(ctx, domain.ListActionsRequest{
		Filters: domain.ActionFilters{Since: &base, Until: &base},
	})
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, edge.ID, resp.Records[0].ID)
	assert.Equal(t, &base, resp.Meta.Since)
	assert.Equal(t, &base, resp.Meta.Until)
}

func TestAggregateCountsByAction(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", "pray", base.Add(time.Duration(i)*time.Minute))
	}
	for i := 0; i < 2; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", "offer", base.Add(time.Duration(10+i)*time.Minute))
	}
	seedAction(t, db, node, "oracle-x", "player-x", "pray", base)

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})
	resp, err := svc.Aggregate(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), resp.Counts["pray"])
	assert.Equal(t, int64(2), resp.Counts["offer"])
	assert.Equal(t, 5, resp.Meta.RowsAggregated)
	assert.Equal(t, int64(5), resp.Meta.TotalAvailable)
	assert.False(t, resp.Meta.HasMore)
}

func TestAggregateWindowIsBoundedAndHonest(t *testing.T) {
	limits := defaultTestLimits()
	limits.StatsDefaultLimit = 4
	limits.StatsMaxLimit = 4
	svc, db, node := newTestService(t, limits)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		action := "pray"
		if i%2 == 1 {
			action = "offer"
		}
		seedAction(t, db, node, "oracle-a", "player-a", action, base.Add(time.Duration(i)*time.Minute))
	}

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})
	resp, err := svc.Aggregate(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)

	// Only the four newest rows are aggregated, and the meta says so.
	assert.Equal(t, 4, resp.Meta.RowsAggregated)
	assert.Equal(t, int64(6), resp.Meta.TotalAvailable)
	assert.True(t, resp.Meta.HasMore)

	var sum int64
	for _, count := range resp.Counts {
		sum += count
	}
	assert.Equal(t, int64(4), sum)
}

func TestAggregateOffsetShiftsWindow(t *testing.T) {
	limits := defaultTestLimits()
	limits.StatsDefaultLimit = 2
	limits.StatsMaxLimit = 2
	svc, db, node := newTestService(t, limits)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedAction(t, db, node, "oracle-a", "player-a", fmt.Sprintf("act-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	// Descending window: offset 2 skips the two newest rows.
	resp, err := svc.Aggregate(ctx, domain.ListActionsRequest{
		Pagination: pagination.Pagination{Offset: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Counts["act-0"])
	assert.Equal(t, int64(1), resp.Counts["act-1"])
	assert.NotContains(t, resp.Counts, "act-3")
	assert.Equal(t, 2, resp.Meta.RowsAggregated)
	assert.False(t, resp.Meta.HasMore)
}

func TestAggregateEmptyScopeReturnsNothing(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	seedAction(t, db, node, "oracle-a", "player-a", "pray", time.Now().UTC())

	ctx := ownerContext("2", nil, nil)
	resp, err := svc.Aggregate(ctx, domain.ListActionsRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Counts)
	assert.Zero(t, resp.Meta.RowsAggregated)
	assert.Zero(t, resp.Meta.TotalAvailable)
}

func TestDeleteByScopeRemovesOnlyNamedIdentifiers(t *testing.T) {
	svc, db, node := newTestService(t, defaultTestLimits())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedAction(t, db, node, "oracle-a", "player-a", "pray", base)
	seedAction(t, db, node, "oracle-b", "player-b", "pray", base)

	deleted, err := svc.DeleteByScope(context.Background(), []string{"oracle-a"}, []string{"player-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []domain.OracleAction
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "oracle-b", remaining[0].OracleID)

	deleted, err = svc.DeleteByScope(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStoreFailureIsReportedAsUnavailable(t *testing.T) {
	svc, db, _ := newTestService(t, defaultTestLimits())
	ctx := ownerContext("1", []string{"oracle-a"}, []string{"player-a"})

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.List(ctx, domain.ListActionsRequest{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.Record(ctx, domain.RecordActionRequest{
		OracleID: "oracle-a",
		PlayerID: "player-a",
		Action:   "pray",
	})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.Aggregate(ctx, domain.ListActionsRequest{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
