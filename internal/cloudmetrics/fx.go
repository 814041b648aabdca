package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/pantheonhq/pantheon/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pushInterval = 30 * time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger) *CloudMetrics {
		if !cfg.Cloud.Metrics.Enabled {
			return nil
		}
		return New(registry, pusher, cfg.Cloud.OrganizationID, cfg.AppVersion, logger)
	}),
	fx.Invoke(runPushWorker),
)

func runPushWorker(lc fx.Lifecycle, c *CloudMetrics, logger *zap.Logger, db *gorm.DB) {
	if c == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting cloud metrics background worker")
			go func() {
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()

				collectAndPush(ctx, c, db, logger)
				for {
					select {
					case <-ticker.C:
						collectAndPush(ctx, c, db, logger)
					case <-ctx.Done():
						logger.Info("stopping cloud metrics background worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func collectAndPush(ctx context.Context, c *CloudMetrics, db *gorm.DB, logger *zap.Logger) {
	updateSystemMetrics(c)
	updateUserCount(ctx, c, db)
	if err := c.Push(ctx); err != nil {
		logger.Error("cloud metrics push failed", zap.Error(err))
	}
}

func updateSystemMetrics(c *CloudMetrics) {
	if c == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.SetMemoryUsage(m.Sys)
}

func updateUserCount(ctx context.Context, c *CloudMetrics, db *gorm.DB) {
	if c == nil || db == nil {
		return
	}
	var count int64
	if err := db.WithContext(ctx).Table("users").Count(&count).Error; err != nil {
		return
	}
	c.SetUsersTotal(count)
}
