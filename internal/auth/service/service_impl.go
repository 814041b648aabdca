package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/auth/password"
	"github.com/pantheonhq/pantheon/internal/auth/token"
	"github.com/pantheonhq/pantheon/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log    *zap.Logger
	users  repository.Repository[domain.User]
	issuer *token.Issuer
	genID  *snowflake.Node
}

func New(log *zap.Logger, db *gorm.DB, issuer *token.Issuer, genID *snowflake.Node) domain.Service {
	return &Service{
		log:    log.Named("auth.service"),
		users:  repository.ProvideStore[domain.User](db),
		issuer: issuer,
		genID:  genID,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = defaultUsername(email)
	}

	existing, err := s.users.FindOne(ctx, &domain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUserExists
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Role:         domain.RolePlayer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindOne(ctx, &domain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(user.PasswordHash, req.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	signed, expiresAt, err := s.issuer.Issue(user.Email, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:        user,
		AccessToken: signed,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	claims, err := s.issuer.Parse(rawToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	email, err := normalizeEmail(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.FindOne(ctx, &domain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", domain.ErrInvalidCredentials
	}
	if _, err := mail.ParseAddress(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func defaultUsername(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
