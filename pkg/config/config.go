package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Base holds the settings every service reads the same way.
type Base struct {
	ServiceName string
	Env         string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	RedisAddr    string
	KafkaBrokers []string

	CORSOrigin  string
	FrontendURL string
}

// LoadEnvFiles loads the first readable .env file; absence is not an error.
func LoadEnvFiles(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
	if len(paths) > 0 {
		log.Printf("notice: no .env file found in %v, using process environment", paths)
	}
}

func LoadBase(service string) Base {
	return Base{
		ServiceName: EnvDefault("SERVICE_NAME", service),
		Env:         EnvDefault("APP_ENV", "development"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		JWTAccessSecret:  []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
		JWTRefreshSecret: []byte(strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET"))),
		AccessTTL:        EnvDurationDefault("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       EnvDurationDefault("JWT_REFRESH_TTL", 7*24*time.Hour),

		RedisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		CORSOrigin:  EnvDefault("CORS_ORIGIN", "http://localhost:3000"),
		FrontendURL: EnvDefault("FRONTEND_URL", "http://localhost:3000"),
	}
}

func (b Base) Production() bool {
	return strings.EqualFold(b.Env, "production")
}

func (b Base) Addr() string {
	return fmt.Sprintf(":%d", b.ServerPort)
}

func (b Base) Validate() error {
	var errs []error
	if b.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(b.JWTAccessSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(b.JWTRefreshSecret) == 0 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if len(b.JWTAccessSecret) > 0 && string(b.JWTAccessSecret) == string(b.JWTRefreshSecret) {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if b.AccessTTL <= 0 || b.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if b.AccessTTL >= b.RefreshTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL"))
	}
	if b.ServerPort <= 0 {
		errs = append(errs, errors.New("SERVER_PORT must be positive"))
	}
	return errors.Join(errs...)
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
