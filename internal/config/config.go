package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	AuthLocal    = "local"
	AuthSupabase = "supabase"
)

type Config struct {
	Port     int
	Env      string
	LogLevel string

	StoreDriver   string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthProvider   string
	JWTSecret      string
	JWTTTL         time.Duration
	SupabaseURL    string
	SupabaseKey    string
	AnonKey        string
	DefaultAvatar  string
	NATSURL        string
	RateLimitRPS   float64
	RateLimitBurst int

	WSInsecureSkipVerify bool
}

func Load() Config {
	return Config{
		Port:     envInt("APP_PORT", 8084),
		Env:      envString("APP_ENV", "development"),
		LogLevel: envString("LOG_LEVEL", "info"),

		StoreDriver:   strings.ToLower(envString("STORE_DRIVER", StoreMemory)),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		AuthProvider:   strings.ToLower(envString("AUTH_PROVIDER", AuthLocal)),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTTL:         envDuration("JWT_TTL", 7*24*time.Hour),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		AnonKey:        os.Getenv("ANON_KEY"),
		DefaultAvatar:  os.Getenv("DEFAULT_AVATAR_URL"),
		NATSURL:        os.Getenv("NATS_URL"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		WSInsecureSkipVerify: os.Getenv("WS_INSECURE_SKIP_VERIFY") == "true",
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("APP_PORT %d out of range", c.Port)
	}
	switch c.StoreDriver {
	case StoreMemory, StoreRedis:
	case StoreMySQL, StorePostgres:
		if c.DBDSN == "" {
			return errors.Errorf("DB_DSN is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthProvider {
	case AuthLocal:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for AUTH_PROVIDER=local")
		}
	case AuthSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for AUTH_PROVIDER=supabase")
		}
	default:
		return errors.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limits cannot be negative")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
