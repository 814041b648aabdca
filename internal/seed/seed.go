// Package seed bootstraps the administrative account on startup.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/auth/password"
	"github.com/pantheonhq/pantheon/internal/config"
)

// EnsureAdmin creates the configured admin user when it does not exist yet.
// An existing account with the same email is promoted to admin instead of
// being recreated. The seed is a no-op when no admin credentials are
// configured.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.Where("LOWER(email) = ?", email).First(&user).Error
		if err == nil {
			if user.Role == authdomain.RoleAdmin {
				return nil
			}
			return tx.Model(&user).Update("role", authdomain.RoleAdmin).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(cfg.AdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user = authdomain.User{
			ID:           node.Generate(),
			Username:     adminUsername(email),
			Email:        email,
			PasswordHash: hashed,
			Role:         authdomain.RoleAdmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(&user).Error
	})
}

func adminUsername(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	return local
}
