package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pantheonhq/pantheon/internal/action/domain"
	"github.com/pantheonhq/pantheon/internal/cloudmetrics"
	"github.com/pantheonhq/pantheon/internal/config"
	obsmetrics "github.com/pantheonhq/pantheon/internal/observability/metrics"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	"github.com/pantheonhq/pantheon/pkg/db"
	"github.com/pantheonhq/pantheon/pkg/db/option"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
	"github.com/pantheonhq/pantheon/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Limits     *config.LimitsConfigHolder
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
	Cloud      *cloudmetrics.CloudMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	limits     *config.LimitsConfigHolder
	actions    repository.Repository[domain.OracleAction]
	obsMetrics *obsmetrics.Metrics
	cloud      *cloudmetrics.CloudMetrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("action.service"),

		genID:      p.GenID,
		limits:     p.Limits,
		actions:    repository.ProvideStore[domain.OracleAction](p.DB),
		obsMetrics: p.ObsMetrics,
		cloud:      p.Cloud,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordActionRequest) (*domain.RecordActionResult, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}

	record, err := s.validate(scope, req)
	if err != nil {
		return nil, err
	}

	result, err := s.appendOne(ctx, s.db, record)
	if err != nil {
		return nil, err
	}

	if result.Deduplicated {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordActionDeduplicated(ctx, result.Record.Action)
		}
	} else {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordActionIngest(ctx, result.Record.Action)
		}
		if s.cloud != nil {
			go s.cloud.IncActionEvent(result.Record.Action)
		}
	}
	return result, nil
}

func (s *Service) RecordBulk(ctx context.Context, reqs []domain.RecordActionRequest) (*domain.BulkRecordResult, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}

	if len(reqs) == 0 {
		return nil, domain.ErrBulkEmpty
	}
	if max := s.limits.Get().BulkMaxActions; len(reqs) > max {
		return nil, domain.ErrBulkTooLarge
	}

	// Every entry is validated and ownership-checked before the first insert.
	records := make([]*domain.OracleAction, 0, len(reqs))
	for _, req := range reqs {
		record, err := s.validate(scope, req)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	result := &domain.BulkRecordResult{Records: make([]*domain.OracleAction, 0, len(records))}
	var inserted, deduplicated []*domain.OracleAction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			one, err := s.appendOne(ctx, tx, record)
			if err != nil {
				return err
			}
			result.Records = append(result.Records, one.Record)
			if one.Deduplicated {
				result.Deduplicated++
				deduplicated = append(deduplicated, one.Record)
			} else {
				result.Inserted++
				inserted = append(inserted, one.Record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, db.TranslateError(err)
	}

	if s.obsMetrics != nil {
		for _, record := range inserted {
			s.obsMetrics.RecordActionIngest(ctx, record.Action)
		}
		for _, record := range deduplicated {
			s.obsMetrics.RecordActionDeduplicated(ctx, record.Action)
		}
	}
	if s.cloud != nil {
		for _, record := range inserted {
			go s.cloud.IncActionEvent(record.Action)
		}
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, req domain.ListActionsRequest) (*domain.ListActionsResponse, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}

	limits := s.limits.Get()
	window, meta, err := s.buildWindow(scope, req, limits.ListDefaultLimit, limits.ListMaxLimit)
	if err != nil {
		return nil, err
	}

	scopeOpts := buildScopeOptions(meta.OracleIDs, meta.PlayerIDs, req.Filters)
	total, err := s.actions.Count(ctx, nil, scopeOpts...)
	if err != nil {
		return nil, err
	}

	findOpts := append([]option.QueryOption{}, scopeOpts...)
	findOpts = append(findOpts,
		option.WithOrder("created_at", meta.Order),
		option.ApplyPagination(window),
	)
	records, err := s.actions.Find(ctx, nil, findOpts...)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.OracleAction{}
	}

	meta.PageInfo = pagination.BuildOffsetPageInfo(len(records), window.Limit, window.Offset, meta.Order, total)
	return &domain.ListActionsResponse{Records: records, Meta: meta}, nil
}

func (s *Service) Aggregate(ctx context.Context, req domain.ListActionsRequest) (*domain.AggregateActionsResponse, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}

	limits := s.limits.Get()
	window, meta, err := s.buildWindow(scope, req, limits.StatsDefaultLimit, limits.StatsMaxLimit)
	if err != nil {
		return nil, err
	}

	scopeOpts := buildScopeOptions(meta.OracleIDs, meta.PlayerIDs, req.Filters)
	total, err := s.actions.Count(ctx, nil, scopeOpts...)
	if err != nil {
		return nil, err
	}

	// Grouping runs over a bounded row window, not the full filtered scope.
	sub := s.db.WithContext(ctx).Model(&domain.OracleAction{}).Select("action")
	for _, opt := range scopeOpts {
		sub = opt.Apply(sub)
	}
	sub = option.WithOrder("created_at", meta.Order).Apply(sub)
	sub = sub.Limit(window.Limit).Offset(window.Offset)

	var rows []struct {
		Action string
		Total  int64
	}
	err = s.db.WithContext(ctx).
		Table("(?) AS action_window", sub).
		Select("action, COUNT(*) AS total").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, db.TranslateError(err)
	}

	counts := make(map[string]int64, len(rows))
	aggregated := 0
	for _, row := range rows {
		counts[row.Action] = row.Total
		aggregated += int(row.Total)
	}

	meta.PageInfo = pagination.BuildOffsetPageInfo(aggregated, window.Limit, window.Offset, meta.Order, total)
	return &domain.AggregateActionsResponse{
		Counts: counts,
		Meta:   domain.StatsMeta{ListMeta: meta, RowsAggregated: aggregated},
	}, nil
}

func (s *Service) DeleteByScope(ctx context.Context, oracleIDs, playerIDs []string) (int64, error) {
	if len(oracleIDs) == 0 && len(playerIDs) == 0 {
		return 0, nil
	}
	return s.actions.Delete(ctx, nil, scopeOption(oracleIDs, playerIDs))
}

// validate checks ownership and field shape, returning the row to append.
func (s *Service) validate(scope ownerctx.Ownership, req domain.RecordActionRequest) (*domain.OracleAction, error) {
	oracleID := strings.TrimSpace(req.OracleID)
	playerID := strings.TrimSpace(req.PlayerID)
	if !scope.OwnsOracle(oracleID) || !scope.OwnsPlayer(playerID) {
		return nil, domain.ErrNotOwner
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		return nil, domain.ErrInvalidAction
	}

	var clientActionID *string
	if req.ClientActionID != nil {
		trimmed := strings.TrimSpace(*req.ClientActionID)
		if trimmed == "" {
			return nil, domain.ErrInvalidClientActionID
		}
		clientActionID = &trimmed
	}

	record := &domain.OracleAction{
		ID:             s.genID.Generate(),
		OracleID:       oracleID,
		PlayerID:       playerID,
		Action:         action,
		ClientActionID: clientActionID,
		CreatedAt:      time.Now().UTC(),
	}
	if len(req.Metadata) > 0 {
		if !json.Valid(req.Metadata) {
			return nil, domain.ErrInvalidMetadata
		}
		record.Metadata = datatypes.JSON(req.Metadata)
	}
	return record, nil
}

// appendOne inserts a ledger row, honoring the idempotency contract: the
// uniqueness constraint is the final arbiter under concurrency, and a raced
// loser returns the winner's row.
func (s *Service) appendOne(ctx context.Context, conn *gorm.DB, record *domain.OracleAction) (*domain.RecordActionResult, error) {
	if record.ClientActionID != nil {
		existing, err := s.findByClientActionID(ctx, conn, record.OracleID, *record.ClientActionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.RecordActionResult{Record: existing, Deduplicated: true}, nil
		}
	}

	stmt := conn.WithContext(ctx)
	if record.ClientActionID != nil {
		stmt = stmt.Clauses(buildIdempotencyConflictClause(conn))
	}
	result := stmt.Create(record)
	if result.Error != nil {
		return nil, db.TranslateError(result.Error)
	}
	if result.RowsAffected == 0 && record.ClientActionID != nil {
		existing, err := s.findByClientActionID(ctx, conn, record.OracleID, *record.ClientActionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.RecordActionResult{Record: existing, Deduplicated: true}, nil
		}
	}
	return &domain.RecordActionResult{Record: record}, nil
}

func (s *Service) findByClientActionID(ctx context.Context, conn *gorm.DB, oracleID, clientActionID string) (*domain.OracleAction, error) {
	return s.actions.WithTrx(conn).FindOne(ctx, nil,
		option.WithEq("oracle_id", oracleID),
		option.WithEq("client_action_id", clientActionID),
	)
}

// buildWindow validates pagination and narrowing filters against the scope
// and returns the effective window plus the meta skeleton.
func (s *Service) buildWindow(scope ownerctx.Ownership, req domain.ListActionsRequest, defLimit, maxLimit int) (pagination.Pagination, domain.ListMeta, error) {
	order, err := pagination.NormalizeOrder(req.Pagination.Order, pagination.OrderDesc)
	if err != nil {
		return pagination.Pagination{}, domain.ListMeta{}, err
	}

	oracleIDs := scope.OracleIDs
	if narrowed := strings.TrimSpace(req.Filters.OracleID); narrowed != "" {
		if !scope.OwnsOracle(narrowed) {
			return pagination.Pagination{}, domain.ListMeta{}, domain.ErrNotOwner
		}
		oracleIDs = []string{narrowed}
	}
	playerIDs := scope.PlayerIDs
	if narrowed := strings.TrimSpace(req.Filters.PlayerID); narrowed != "" {
		if !scope.OwnsPlayer(narrowed) {
			return pagination.Pagination{}, domain.ListMeta{}, domain.ErrNotOwner
		}
		playerIDs = []string{narrowed}
	}

	window := pagination.Pagination{
		Limit:  pagination.ClampLimit(req.Pagination.Limit, defLimit, maxLimit),
		Offset: pagination.ClampOffset(req.Pagination.Offset),
		Order:  order,
	}
	meta := domain.ListMeta{
		OracleIDs: oracleIDs,
		PlayerIDs: playerIDs,
		Action:    strings.TrimSpace(req.Filters.Action),
		Since:     req.Filters.Since,
		Until:     req.Filters.Until,
	}
	meta.Order = order
	return window, meta, nil
}

func buildScopeOptions(oracleIDs, playerIDs []string, filters domain.ActionFilters) []option.QueryOption {
	opts := []option.QueryOption{scopeOption(oracleIDs, playerIDs)}

	// Narrowed ids are enforced as exact predicates on top of the scope.
	if narrowed := strings.TrimSpace(filters.OracleID); narrowed != "" {
		opts = append(opts, option.WithEq("oracle_id", narrowed))
	}
	if narrowed := strings.TrimSpace(filters.PlayerID); narrowed != "" {
		opts = append(opts, option.WithEq("player_id", narrowed))
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		opts = append(opts, option.WithEq("action", action))
	}
	opts = append(opts, option.WithTimeRange("created_at", filters.Since, filters.Until))
	return opts
}

// scopeOption restricts rows to the caller's ownership. An empty scope can
// never match.
func scopeOption(oracleIDs, playerIDs []string) option.QueryOption {
	switch {
	case len(oracleIDs) > 0 && len(playerIDs) > 0:
		return option.Where("oracle_id IN ? OR player_id IN ?", oracleIDs, playerIDs)
	case len(oracleIDs) > 0:
		return option.WithIn("oracle_id", oracleIDs)
	case len(playerIDs) > 0:
		return option.WithIn("player_id", playerIDs)
	default:
		return option.Where("1 = 0")
	}
}

func buildIdempotencyConflictClause(conn *gorm.DB) clause.OnConflict {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "oracle_id"}, {Name: "client_action_id"}},
		DoNothing: true,
	}
	if conn != nil && strings.EqualFold(conn.Dialector.Name(), "postgres") {
		conflict.TargetWhere = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "client_action_id IS NOT NULL"},
		}}
	}
	return conflict
}
