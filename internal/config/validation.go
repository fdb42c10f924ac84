package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	switch strings.ToLower(c.Store.Backend) {
	case "redis":
		if c.Store.Redis.Address == "" {
			return errors.New("redis address must be specified for redis store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store backend: %s. Must be 'redis' or 'memory'", c.Store.Backend)
	}

	if c.Store.FileDir == "" {
		return errors.New("store file directory must be configured")
	}

	if c.Session.TTL < 1 {
		return errors.New("session TTL must be positive")
	}

	if c.Session.SweepInterval < 1 {
		return errors.New("sweep interval must be positive")
	}

	if c.Session.SweepInterval >= c.Session.TTL {
		return errors.New("sweep interval should be less than session TTL")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "KUJIBIKI_PORT")

	// Store
	viper.BindEnv("store.backend", "KUJIBIKI_STORE_BACKEND")
	viper.BindEnv("store.fileDir", "KUJIBIKI_STORE_FILE_DIR")
	viper.BindEnv("store.redis.address", "KUJIBIKI_REDIS_ADDRESS")
	viper.BindEnv("store.redis.password", "KUJIBIKI_REDIS_PASSWORD")
	viper.BindEnv("store.redis.db", "KUJIBIKI_REDIS_DB")

	// Session lifecycle
	viper.BindEnv("session.ttl", "KUJIBIKI_SESSION_TTL")
	viper.BindEnv("session.sweepInterval", "KUJIBIKI_SWEEP_INTERVAL")
}
