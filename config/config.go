package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Assets    []AssetConfig   `mapstructure:"assets"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Bus       BusConfig       `mapstructure:"bus"`
	Update    UpdateConfig    `mapstructure:"update"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Log       LogConfig       `mapstructure:"log"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"` // "dev" or "prod"
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AssetConfig maps a canonical asset id to an optional fallback provider id.
type AssetConfig struct {
	ID       string `mapstructure:"id"`
	Fallback string `mapstructure:"fallback"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"` // "postgres", "mongo" or "memory"
	Timeout time.Duration `mapstructure:"timeout"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type BusConfig struct {
	Driver        string `mapstructure:"driver"` // "nats", "redis" or "local"
	Subject       string `mapstructure:"subject"`
	NatsURL       string `mapstructure:"nats_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type UpdateConfig struct {
	Period       time.Duration `mapstructure:"period"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Coalesce     bool          `mapstructure:"coalesce"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout"`
}

type StatsConfig struct {
	Window         int `mapstructure:"window"`
	RefreshRetries int `mapstructure:"refresh_retries"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level        string `mapstructure:"level"`          // log level: "debug", "info", "warn", "error"
	Format       string `mapstructure:"format"`         // log format: "json" or "console"
	OutputFile   string `mapstructure:"output_file"`    // file path to store logs (optional)
	Environment  string `mapstructure:"environment"`    // environment: "dev" or "prod"
	ClearOnStart bool   `mapstructure:"clear_on_start"` // truncate OutputFile before the first write
}

// legacyEnv lists the environment variable names the deployment already exports.
var legacyEnv = map[string]string{
	"coingecko.base_url": "COINGECKO_API_URL",
	"coingecko.api_key":  "COINGECKO_API_KEY",
	"bus.nats_url":       "NATS_URL",
	"mongo.uri":          "MONGODB_URI",
	"http.port":          "PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "dev")

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.api_key_param", "")
	v.SetDefault("coingecko.timeout", 10*time.Second)
	v.SetDefault("coingecko.rate_per_minute", 30)

	v.SetDefault("assets", []map[string]string{
		{"id": "bitcoin"},
		{"id": "ethereum"},
		{"id": "matic-network", "fallback": "polygon"},
	})

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "cryptostats")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.create_db", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "cryptostats")
	v.SetDefault("mongo.collection", "crypto_stats")

	v.SetDefault("bus.driver", "nats")
	v.SetDefault("bus.subject", "crypto.update")
	v.SetDefault("bus.nats_url", "nats://localhost:4222")
	v.SetDefault("bus.redis_addr", "localhost:6379")
	v.SetDefault("bus.redis_password", "")
	v.SetDefault("bus.redis_db", 0)

	v.SetDefault("update.period", 15*time.Minute)
	v.SetDefault("update.initial_delay", 5*time.Second)
	v.SetDefault("update.coalesce", false)
	v.SetDefault("update.task_timeout", 20*time.Second)

	v.SetDefault("stats.window", 100)
	v.SetDefault("stats.refresh_retries", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "logs/server.log")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.clear_on_start", true)
}

// Load loads application configuration using Viper.
// It reads an optional .env file, then config.yaml, and overrides with environment variables.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, dir := range configDirs() {
		v.AddConfigPath(dir)
	}

	// Support environment variables with dot notation (e.g., BUS_NATS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the processes cannot start with.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return errors.New("config: at least one asset is required")
	}
	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.ID == "" {
			return errors.New("config: asset id must not be empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate asset %q", a.ID)
		}
		seen[a.ID] = true
	}
	if c.Update.Period <= 0 {
		return fmt.Errorf("config: update.period must be positive, got %s", c.Update.Period)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config: store.timeout must be positive, got %s", c.Store.Timeout)
	}
	if c.Stats.Window <= 0 {
		return fmt.Errorf("config: stats.window must be positive, got %d", c.Stats.Window)
	}
	if c.Stats.RefreshRetries < 0 {
		return fmt.Errorf("config: stats.refresh_retries must not be negative, got %d", c.Stats.RefreshRetries)
	}
	return nil
}

func configDirs() []string {
	if dir := os.Getenv("CRYPTOSTATS_CONFIG_DIR"); dir != "" {
		return []string{dir}
	}

	dirs := []string{"./config"}
	ex, err := os.Executable()
	if err != nil {
		return dirs
	}
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return append(dirs, filepath.Join(pwd, "../../config"))
	}
	return append(dirs, filepath.Join(filepath.Dir(ex), "../config"))
}
