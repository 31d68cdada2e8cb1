package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"simpletasks/backend/internal/utils"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Auth      AuthConfig      `toml:"auth"`
	Cache     CacheConfig     `toml:"cache"`
}

type ServerConfig struct {
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	Environment  string        `toml:"environment"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
	AllowOrigins []string      `toml:"allow_origins"`
}

type DatabaseConfig struct {
	Driver          string        `toml:"driver"`
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	User            string        `toml:"user"`
	Password        string        `toml:"password"`
	Name            string        `toml:"name"`
	SSLMode         string        `toml:"ssl_mode"`
	Path            string        `toml:"path"`
	LogLevel        string        `toml:"log_level"`
	MigrationsPath  string        `toml:"migrations_path"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time"`
}

type RedisConfig struct {
	Enabled      bool          `toml:"enabled"`
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	Password     string        `toml:"password"`
	DB           int           `toml:"db"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	MaxRetries   int           `toml:"max_retries"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

type RateLimitConfig struct {
	RequestsPerMin     int `toml:"requests_per_min"`
	BurstSize          int `toml:"burst_size"`
	UserRequestsPerMin int `toml:"user_requests_per_min"`
}

type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl"`
	Issuer    string        `toml:"issuer"`
}

type CacheConfig struct {
	TaskTTL time.Duration `toml:"task_ttl"`
	ListTTL time.Duration `toml:"list_ttl"`
}

const defaultJWTSecret = "default_secret_change_in_production"

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			Environment:  "development",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "simpletasks",
			SSLMode:         "disable",
			Path:            "simpletasks.db",
			LogLevel:        "warn",
			MigrationsPath:  "file://backend/migrations",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         6379,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin:     600,
			BurstSize:          50,
			UserRequestsPerMin: 300,
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  24 * time.Hour,
			Issuer:    "simpletasks",
		},
		Cache: CacheConfig{
			TaskTTL: 10 * time.Minute,
			ListTTL: time.Minute,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the TOML file at
// path (if any, falling back to CONFIG_FILE), then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = utils.GetEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = utils.GetEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.Environment = utils.GetEnv("APP_ENV", c.Server.Environment)
	c.Server.ReadTimeout = utils.GetEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = utils.GetEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = utils.GetEnvAsDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.Database.Driver = utils.GetEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = utils.GetEnv("DB_HOST", c.Database.Host)
	c.Database.Port = utils.GetEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = utils.GetEnv("DB_USER", c.Database.User)
	c.Database.Password = utils.GetEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = utils.GetEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = utils.GetEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Path = utils.GetEnv("DB_PATH", c.Database.Path)
	c.Database.LogLevel = utils.GetEnv("DB_LOG_LEVEL", c.Database.LogLevel)
	c.Database.MigrationsPath = utils.GetEnv("DB_MIGRATIONS_PATH", c.Database.MigrationsPath)
	c.Database.MaxOpenConns = utils.GetEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = utils.GetEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = utils.GetEnvAsDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.ConnMaxIdleTime = utils.GetEnvAsDuration("DB_CONN_MAX_IDLE_TIME", c.Database.ConnMaxIdleTime)

	c.Redis.Enabled = utils.GetEnvAsBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = utils.GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = utils.GetEnvAsInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = utils.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = utils.GetEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = utils.GetEnvAsInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.RateLimit.RequestsPerMin = utils.GetEnvAsInt("RATE_LIMIT_REQUESTS_PER_MIN", c.RateLimit.RequestsPerMin)
	c.RateLimit.BurstSize = utils.GetEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.BurstSize)
	c.RateLimit.UserRequestsPerMin = utils.GetEnvAsInt("RATE_LIMIT_USER_REQUESTS_PER_MIN", c.RateLimit.UserRequestsPerMin)

	c.Auth.JWTSecret = utils.GetEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = utils.GetEnvAsDuration("JWT_TTL", c.Auth.TokenTTL)
	c.Auth.Issuer = utils.GetEnv("JWT_ISSUER", c.Auth.Issuer)

	c.Cache.TaskTTL = utils.GetEnvAsDuration("CACHE_TASK_TTL", c.Cache.TaskTTL)
	c.Cache.ListTTL = utils.GetEnvAsDuration("CACHE_LIST_TTL", c.Cache.ListTTL)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetDSN returns the connection string for the configured driver.
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
		c.Database.Name, c.Database.SSLMode)
}
