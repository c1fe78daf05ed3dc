package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service settings. Values come from an optional YAML file,
// then from QUIZ_* environment variables (QUIZ_REDIS_ADDR for redis.addr).
type Config struct {
	Env string `mapstructure:"env" validate:"oneof=development production test"`

	Server struct {
		Port string `mapstructure:"port" validate:"required,numeric"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`

	Postgres struct {
		URL      string `mapstructure:"url"`
		MaxConns int32  `mapstructure:"max_conns" validate:"min=0,max=1000"`
	} `mapstructure:"postgres"`

	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	Redis struct {
		Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db" validate:"min=0,max=15"`
	} `mapstructure:"redis"`

	Progress struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"progress"`

	Quiz struct {
		SessionTTL time.Duration `mapstructure:"session_ttl"`
	} `mapstructure:"quiz"`

	Questions struct {
		// Path replaces the built-in catalog when set.
		Path string `mapstructure:"path"`
		// Source is "yaml" or "postgres".
		Source   string        `mapstructure:"source" validate:"oneof=yaml postgres"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"questions"`
}

// Storage names the durable backend in selection order: Postgres, then
// SQLite, then process memory.
func (c Config) Storage() string {
	switch {
	case c.Postgres.URL != "":
		return "postgres"
	case c.SQLite.Path != "":
		return "sqlite"
	default:
		return "memory"
	}
}

// Load reads config from path (missing file is fine) and the environment,
// then validates the result.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Questions.Source == "postgres" && cfg.Postgres.URL == "" {
		return Config{}, fmt.Errorf("validation failed: questions.source=postgres needs postgres.url")
	}
	if err := ValidateStruct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("sqlite.path", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("progress.cache_ttl", 30*time.Second)
	v.SetDefault("quiz.session_ttl", 30*time.Minute)
	v.SetDefault("questions.path", "")
	v.SetDefault("questions.source", "yaml")
	v.SetDefault("questions.cache_ttl", 10*time.Minute)
}
