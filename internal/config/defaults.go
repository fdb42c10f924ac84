package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)

	// Store
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.fileDir", ".sessions")

	// Redis
	viper.SetDefault("store.redis.address", "localhost:6379")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.redis.poolSize", 100)
	viper.SetDefault("store.redis.poolTimeout", 5)

	// Session lifecycle
	viper.SetDefault("session.ttl", 7200) // 2 hours
	viper.SetDefault("session.sweepInterval", 300)
	viper.SetDefault("session.persistQueueSize", 256)

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}
