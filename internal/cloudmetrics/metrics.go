// Package cloudmetrics pushes accounting counters to a hosted collector.
package cloudmetrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CloudMetrics holds the accounting instruments pushed off-process.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	actionEvents *prometheus.CounterVec
	usersTotal   prometheus.Gauge
	memoryUsage  prometheus.Gauge
}

// New registers the accounting instruments on the given registry.
func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, log *zap.Logger) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	labels := prometheus.Labels{
		"instance_id": normalizeLabel(instanceID),
		"version":     normalizeLabel(version),
	}

	actionEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pantheon_cloud_action_events_total",
		Help:        "Ledger actions recorded, by action tag.",
		ConstLabels: labels,
	}, []string{"action"})
	usersTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "pantheon_cloud_users_total",
		Help:        "Registered user accounts.",
		ConstLabels: labels,
	})
	memoryUsage := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "pantheon_cloud_memory_bytes",
		Help:        "Process memory obtained from the OS.",
		ConstLabels: labels,
	})

	registry.MustRegister(actionEvents, usersTotal, memoryUsage)

	return &CloudMetrics{
		registry:     registry,
		pusher:       pusher,
		log:          log.Named("cloudmetrics"),
		actionEvents: actionEvents,
		usersTotal:   usersTotal,
		memoryUsage:  memoryUsage,
	}
}

// IncActionEvent counts one recorded ledger action.
func (c *CloudMetrics) IncActionEvent(action string) {
	if c == nil {
		return
	}
	c.actionEvents.WithLabelValues(normalizeLabel(action)).Inc()
}

// SetUsersTotal updates the registered-user gauge.
func (c *CloudMetrics) SetUsersTotal(count int64) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.usersTotal.Set(float64(count))
}

// SetMemoryUsage updates the process memory gauge.
func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memoryUsage.Set(float64(bytes))
}

// Push sends the current registry state through the configured pusher.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
