package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LimitsConfig bounds query page sizes and bulk ingest batches.
type LimitsConfig struct {
	ListDefaultLimit  int `mapstructure:"listDefaultLimit"`
	ListMaxLimit      int `mapstructure:"listMaxLimit"`
	StatsDefaultLimit int `mapstructure:"statsDefaultLimit"`
	StatsMaxLimit     int `mapstructure:"statsMaxLimit"`
	BulkMaxActions    int `mapstructure:"bulkMaxActions"`
}

func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		ListDefaultLimit:  25,
		ListMaxLimit:      500,
		StatsDefaultLimit: 200,
		StatsMaxLimit:     1000,
		BulkMaxActions:    100,
	}
}

type LimitsConfigHolder struct {
	current atomic.Value // holds LimitsConfig
}

func NewLimitsConfigHolder(cfg Config) (*LimitsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("limits")
	v.SetConfigType("yml")
	if cfg.LimitsFile != "" {
		v.SetConfigFile(cfg.LimitsFile)
	} else {
		v.AddConfigPath("/var/lib/pantheon/config")
		v.AddConfigPath("/etc/pantheon")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PANTHEON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLimitsConfig()
	v.SetDefault("limits.listDefaultLimit", defaults.ListDefaultLimit)
	v.SetDefault("limits.listMaxLimit", defaults.ListMaxLimit)
	v.SetDefault("limits.statsDefaultLimit", defaults.StatsDefaultLimit)
	v.SetDefault("limits.statsMaxLimit", defaults.StatsMaxLimit)
	v.SetDefault("limits.bulkMaxActions", defaults.BulkMaxActions)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var limits LimitsConfig
	if err := v.UnmarshalKey("limits", &limits); err != nil {
		return nil, err
	}
	if err := validateLimitsConfig(limits); err != nil {
		return nil, err
	}

	holder := &LimitsConfigHolder{}
	holder.current.Store(limits)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LimitsConfig
		if err := v.UnmarshalKey("limits", &updated); err != nil {
			log.Printf("[limits-config] reload failed: %v", err)
			return
		}
		if err := validateLimitsConfig(updated); err != nil {
			log.Printf("[limits-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[limits-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LimitsConfigHolder) Get() LimitsConfig {
	return h.current.Load().(LimitsConfig)
}

// NewStaticLimitsHolder returns a holder with fixed values, used in tests.
func NewStaticLimitsHolder(limits LimitsConfig) *LimitsConfigHolder {
	holder := &LimitsConfigHolder{}
	holder.current.Store(limits)
	return holder
}

func validateLimitsConfig(cfg LimitsConfig) error {
	if cfg.ListDefaultLimit <= 0 || cfg.ListMaxLimit < cfg.ListDefaultLimit {
		return errors.New("limits.list bounds must be positive and ordered")
	}
	if cfg.StatsDefaultLimit <= 0 || cfg.StatsMaxLimit < cfg.StatsDefaultLimit {
		return errors.New("limits.stats bounds must be positive and ordered")
	}
	if cfg.BulkMaxActions <= 0 {
		return errors.New("limits.bulkMaxActions must be positive")
	}
	return nil
}
