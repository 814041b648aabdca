package db

import (
	"context"
	"time"

	"github.com/pantheonhq/pantheon/internal/config"
	obslogger "github.com/pantheonhq/pantheon/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the shared gorm connection with tracing and pool metrics.
var Module = fx.Module("db",
	fx.Provide(Open),
)

func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
		return nil, err
	}
	if cfg.DBType != "sqlite" {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.DBName,
			RefreshInterval: 15,
		})); err != nil {
			log.Warn("db prometheus plugin disabled", zap.Error(err))
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	}
	if cfg.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	}
	if cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return sqlDB.Close()
		},
	})

	return conn, nil
}
