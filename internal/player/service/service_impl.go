package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pantheonhq/pantheon/internal/identity"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
	"github.com/pantheonhq/pantheon/internal/player/domain"
	pkgdb "github.com/pantheonhq/pantheon/pkg/db"
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
	accounts repository.Repository[domain.PlayerAccount]
	genID    *snowflake.Node
	identity identity.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:      p.Log.Named("player.service"),
		accounts: repository.ProvideStore[domain.PlayerAccount](p.DB),
		genID:    p.GenID,
		identity: p.Identity,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.PlayerAccount, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	userID, err := snowflake.ParseString(scope.UserID)
	if err != nil || userID == 0 {
		return nil, domain.ErrAccountNotFound
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.TrimSpace(scope.Username)
	}
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}

	now := time.Now().UTC()
	existing, err := s.accounts.FindOne(ctx, &domain.PlayerAccount{UserID: userID})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Username = username
		if email := strings.TrimSpace(req.Email); email != "" {
			existing.Email = email
		}
		if req.Profile != nil {
			existing.Profile = datatypes.JSONMap(req.Profile)
		}
		existing.UpdatedAt = now
		if err := s.accounts.Save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	account := &domain.PlayerAccount{
		ID:        s.genID.Generate(),
		UserID:    userID,
		PlayerID:  resolvePlayerID(req.PlayerID, username),
		Username:  username,
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Profile != nil {
		account.Profile = datatypes.JSONMap(req.Profile)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPlayerIDTaken
		}
		return nil, err
	}

	identity.InvalidateID(s.identity, userID)
	s.log.Info("player account created",
		zap.String("user_id", userID.String()),
		zap.String("player_id", account.PlayerID),
	)
	return account, nil
}

func (s *Service) Get(ctx context.Context) (*domain.PlayerAccount, error) {
	scope, ok := ownerctx.FromContext(ctx)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	userID, err := snowflake.ParseString(scope.UserID)
	if err != nil || userID == 0 {
		return nil, domain.ErrAccountNotFound
	}

	account, err := s.accounts.FindOne(ctx, &domain.PlayerAccount{UserID: userID})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func resolvePlayerID(requested, username string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		return requested
	}
	if generated := slug.Make(username); generated != "" {
		return generated
	}
	return uuid.NewString()
}
