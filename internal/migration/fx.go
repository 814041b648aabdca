package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/config"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned SQL targets postgres. Other dialects (sqlite in
			// local setups) fall back to schema sync from the models.
			return conn.AutoMigrate(
				&authdomain.User{},
				&playerdomain.PlayerAccount{},
				&oracledomain.OracleProfile{},
				&actiondomain.OracleAction{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
