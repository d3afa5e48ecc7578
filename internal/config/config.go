package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds all process configuration. It is resolved once at startup and
// injected explicitly; nothing in the codebase reads the environment directly.
type Config struct {
	HTTPAddr      string
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	EncryptionKey string

	// ReconciliationToleranceDays is the date window used when generating
	// bank reconciliation candidates.
	ReconciliationToleranceDays int

	SnowflakeNode int64
}

func Load() (Config, error) {
	// Optional; absent .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("ENCRYPTION_KEY", "")
	v.SetDefault("RECONCILIATION_TOLERANCE_DAYS", 4)
	v.SetDefault("SNOWFLAKE_NODE", 1)

	cfg := Config{
		HTTPAddr:                    v.GetString("HTTP_ADDR"),
		DatabaseDSN:                 v.GetString("DATABASE_DSN"),
		RedisAddr:                   v.GetString("REDIS_ADDR"),
		RedisPassword:               v.GetString("REDIS_PASSWORD"),
		EncryptionKey:               v.GetString("ENCRYPTION_KEY"),
		ReconciliationToleranceDays: v.GetInt("RECONCILIATION_TOLERANCE_DAYS"),
		SnowflakeNode:               v.GetInt64("SNOWFLAKE_NODE"),
	}
	if cfg.ReconciliationToleranceDays < 0 {
		cfg.ReconciliationToleranceDays = 4
	}
	return cfg, nil
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
