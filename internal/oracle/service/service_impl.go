package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pantheonhq/pantheon/internal/identity"
	"github.com/pantheonhq/pantheon/internal/oracle/domain"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	pkgdb "github.com/pantheonhq/pantheon/pkg/db"
	"github.com/pantheonhq/pantheon/pkg/db/option"
	"github.com/pantheonhq/pantheon/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Identity identity.Service `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	oracles  repository.Repository[domain.OracleProfile]
	genID    *snowflake.Node
	identity identity.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:      p.Log.Named("oracle.service"),
		oracles:  repository.ProvideStore[domain.OracleProfile](p.DB),
		genID:    p.GenID,
		identity: p.Identity,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.OracleProfile, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}
	userID, err := snowflake.ParseString(scope.UserID)
	if err != nil || userID == 0 {
		return nil, domain.ErrNotOwner
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	oracleID := strings.TrimSpace(req.OracleID)

	if oracleID != "" {
		existing, err := s.oracles.FindOne(ctx, &domain.OracleProfile{OracleID: oracleID})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.UserID != userID {
				return nil, domain.ErrNotOwner
			}
			existing.Name = name
			if archetype := strings.TrimSpace(req.Archetype); archetype != "" {
				existing.Archetype = archetype
			}
			if req.Profile != nil {
				existing.Profile = datatypes.JSONMap(req.Profile)
			}
			existing.UpdatedAt = now
			if err := s.oracles.Save(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
	} else {
		oracleID = uuid.NewString()
	}

	profile := &domain.OracleProfile{
		ID:        s.genID.Generate(),
		UserID:    userID,
		OracleID:  oracleID,
		Name:      name,
		Archetype: strings.TrimSpace(req.Archetype),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Profile != nil {
		profile.Profile = datatypes.JSONMap(req.Profile)
	}

	if err := s.oracles.Create(ctx, profile); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOracleIDTaken
		}
		return nil, err
	}

	identity.InvalidateID(s.identity, userID)
	s.log.Info("oracle profile created",
		zap.String("user_id", userID.String()),
		zap.String("oracle_id", profile.OracleID),
	)
	return profile, nil
}

func (s *Service) ListMine(ctx context.Context) ([]*domain.OracleProfile, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrNotOwner
	}
	userID, err := snowflake.ParseString(scope.UserID)
	if err != nil || userID == 0 {
		return nil, domain.ErrNotOwner
	}

	return s.oracles.Find(ctx, &domain.OracleProfile{UserID: userID},
		option.WithOrder("created_at", "asc"),
	)
}
