package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SweeperConfig is the hot-reloadable part of the expiry sweeper settings.
type SweeperConfig struct {
	AbandonAfter time.Duration `mapstructure:"abandonAfter"`
	BatchSize    int           `mapstructure:"batchSize"`
	RunInterval  time.Duration `mapstructure:"runInterval"`
	EnabledJobs  []string      `mapstructure:"enabledJobs"`
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		AbandonAfter: time.Hour,
		BatchSize:    100,
		RunInterval:  time.Hour,
		EnabledJobs:  []string{"expire_pending", "expire_lapsed"},
	}
}

// JobEnabled reports whether name is listed in EnabledJobs.
func (c SweeperConfig) JobEnabled(name string) bool {
	for _, job := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(job), name) {
			return true
		}
	}
	return false
}

type SweeperConfigHolder struct {
	current atomic.Value // holds SweeperConfig
}

// NewStaticSweeperConfigHolder wraps a fixed config without file watching.
func NewStaticSweeperConfigHolder(cfg SweeperConfig) *SweeperConfigHolder {
	holder := &SweeperConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSweeperConfigHolder() (*SweeperConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sweeper")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/guildpass/config")
	v.AddConfigPath("/etc/guildpass")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GUILDPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSweeperConfig()
	v.SetDefault("sweeper.abandonAfter", defaults.AbandonAfter)
	v.SetDefault("sweeper.batchSize", defaults.BatchSize)
	v.SetDefault("sweeper.runInterval", defaults.RunInterval)
	v.SetDefault("sweeper.enabledJobs", defaults.EnabledJobs)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg SweeperConfig
	if err := v.UnmarshalKey("sweeper", &cfg); err != nil {
		return nil, err
	}
	if err := validateSweeperConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSweeperConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SweeperConfig
		if err := v.UnmarshalKey("sweeper", &updated); err != nil {
			log.Printf("[sweeper-config] reload failed: %v", err)
			return
		}
		if err := validateSweeperConfig(updated); err != nil {
			log.Printf("[sweeper-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sweeper-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SweeperConfigHolder) Get() SweeperConfig {
	return h.current.Load().(SweeperConfig)
}

func validateSweeperConfig(cfg SweeperConfig) error {
	if cfg.AbandonAfter <= 0 {
		return errors.New("sweeper.abandonAfter must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("sweeper.batchSize must be positive")
	}
	if cfg.RunInterval <= 0 {
		return errors.New("sweeper.runInterval must be positive")
	}
	return nil
}
