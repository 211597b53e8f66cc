package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Notification backends
const (
	NotificationBackendMemory = "memory"
	NotificationBackendRedis  = "redis"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Telemetry     TelemetryConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string // overrides the environment's default when set
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type JWTConfig struct {
	Secret string
}

// NotificationConfig controls the live order-status channel
type NotificationConfig struct {
	Backend      string // memory or redis
	Channel      string // redis pub/sub channel name
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// UsesRedis reports whether any component needs a Redis client
func (c *Config) UsesRedis() bool {
	return c.RateLimit.Enabled || c.Notifications.Backend == NotificationBackendRedis
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}

	switch c.Notifications.Backend {
	case NotificationBackendMemory, NotificationBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_BACKEND %q", c.Notifications.Backend))
	}

	if c.Notifications.SendBuffer <= 0 {
		errs = append(errs, errors.New("NOTIFY_SEND_BUFFER must be positive"))
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requires positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW"))
	}

	return errors.Join(errs...)
}

func Load() *Config {
	// Populate the process env first so AutomaticEnv sees .env values too
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env into environment: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return fromViper()
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 20)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("NOTIFY_BACKEND", NotificationBackendMemory)
	viper.SetDefault("NOTIFY_CHANNEL", "storefront:order-events")
	viper.SetDefault("NOTIFY_SEND_BUFFER", 16)
	viper.SetDefault("NOTIFY_PING_INTERVAL", "30s")
	viper.SetDefault("NOTIFY_WRITE_TIMEOUT", "10s")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")
	viper.SetDefault("OTEL_ENABLED", false)
	viper.SetDefault("OTEL_SERVICE_NAME", "storefront-api")
	viper.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
}

func fromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     viper.GetString("SERVER_PORT"),
			Env:      viper.GetString("SERVER_ENV"),
			LogLevel: viper.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Notifications: NotificationConfig{
			Backend:      strings.ToLower(viper.GetString("NOTIFY_BACKEND")),
			Channel:      viper.GetString("NOTIFY_CHANNEL"),
			SendBuffer:   viper.GetInt("NOTIFY_SEND_BUFFER"),
			PingInterval: viper.GetDuration("NOTIFY_PING_INTERVAL"),
			WriteTimeout: viper.GetDuration("NOTIFY_WRITE_TIMEOUT"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Telemetry: TelemetryConfig{
			Enabled:     viper.GetBool("OTEL_ENABLED"),
			ServiceName: viper.GetString("OTEL_SERVICE_NAME"),
			Endpoint:    viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
