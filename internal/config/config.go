// Package config loads application configuration from defaults,
// an optional YAML file, and environment variable overrides, using
// viper the way the rest of this codebase's ancestors do.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Room      RoomConfig      `mapstructure:"room"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	DataLayer DataLayerConfig `mapstructure:"data_layer"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Environment  string        `mapstructure:"environment"`
	Debug        bool          `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Driver   string `mapstructure:"driver"` // sqlite or postgres
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// RoomConfig governs Room Coordinator timing per spec §5.
type RoomConfig struct {
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
	DisconnectGrace   time.Duration `mapstructure:"disconnect_grace"`
	GameOverLinger    time.Duration `mapstructure:"game_over_linger"`
	DataLayerOpTimeout time.Duration `mapstructure:"data_layer_op_timeout"`
}

// BreakerConfig holds the circuit breaker's default parameters, per
// spec §4.1 (N, M, T, W).
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	SlidingWindow    time.Duration `mapstructure:"sliding_window"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheSize        int           `mapstructure:"cache_size"`
}

// DataLayerConfig governs the hybrid data layer's sync queue worker
// pool sizes and retry policy, per spec §4.2.
type DataLayerConfig struct {
	HighPriorityWorkers   int `mapstructure:"high_priority_workers"`
	MediumPriorityWorkers int `mapstructure:"medium_priority_workers"`
	LowPriorityWorkers    int `mapstructure:"low_priority_workers"`
	MaxRetries            int `mapstructure:"max_retries"`
	QueueCapacity          int `mapstructure:"queue_capacity"`
}

// ProxyConfig governs the edge proxy's health checking and reconnect
// rate limiting, per spec §4.5.
type ProxyConfig struct {
	ListenAddr          string        `mapstructure:"listen_addr"`
	Backends            []string      `mapstructure:"backends"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	HealthCheckTimeout  time.Duration `mapstructure:"health_check_timeout"`
	FailoverThreshold   int           `mapstructure:"failover_threshold"`
	MaxMigrationsPerWindow int        `mapstructure:"max_migrations_per_window"`
	MigrationWindow     time.Duration `mapstructure:"migration_window"`
	MinMigrationGap     time.Duration `mapstructure:"min_migration_gap"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: No config file found, using defaults and environment variables")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	overrideWithEnv(&config)

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.idle_timeout", "30s")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.debug", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "hokm")
	viper.SetDefault("database.password", "hokm_dev")
	viper.SetDefault("database.name", "hokm_dev")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.driver", "sqlite")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", true)

	viper.SetDefault("jwt.secret", "change_me_in_production")
	viper.SetDefault("jwt.expiration", "24h")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", "9091")

	viper.SetDefault("room.turn_timeout", "60s")
	viper.SetDefault("room.disconnect_grace", "180s")
	viper.SetDefault("room.game_over_linger", "5m")
	viper.SetDefault("room.data_layer_op_timeout", "5s")

	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.success_threshold", 3)
	viper.SetDefault("breaker.open_timeout", "60s")
	viper.SetDefault("breaker.sliding_window", "300s")
	viper.SetDefault("breaker.cache_ttl", "300s")
	viper.SetDefault("breaker.cache_size", 1000)

	viper.SetDefault("data_layer.high_priority_workers", 4)
	viper.SetDefault("data_layer.medium_priority_workers", 2)
	viper.SetDefault("data_layer.low_priority_workers", 1)
	viper.SetDefault("data_layer.max_retries", 3)
	viper.SetDefault("data_layer.queue_capacity", 1000)

	viper.SetDefault("proxy.listen_addr", ":9000")
	viper.SetDefault("proxy.backends", []string{"ws://localhost:8080/ws"})
	viper.SetDefault("proxy.health_check_interval", "2s")
	viper.SetDefault("proxy.health_check_timeout", "3s")
	viper.SetDefault("proxy.failover_threshold", 1)
	viper.SetDefault("proxy.max_migrations_per_window", 3)
	viper.SetDefault("proxy.migration_window", "60s")
	viper.SetDefault("proxy.min_migration_gap", "5s")
}

func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if env := os.Getenv("ENV"); env != "" {
		config.Server.Environment = env
	}
	if debug := os.Getenv("DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil {
			config.Server.Debug = val
		}
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		config.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		config.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		config.Database.Name = dbName
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		config.Redis.Port = redisPort
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		config.JWT.Secret = jwtSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// IsDevelopment returns true if the environment is development.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if the environment is production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// GetDatabaseDSN returns the database DSN string.
func (c *Config) GetDatabaseDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return "./hokm.db"
	case "postgres":
		return "host=" + c.Database.Host +
			" port=" + c.Database.Port +
			" user=" + c.Database.User +
			" password=" + c.Database.Password +
			" dbname=" + c.Database.Name +
			" sslmode=" + c.Database.SSLMode
	default:
		return "./hokm.db"
	}
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}
