package config

import (
	"errors"
	"os"
	"strings"

	"github.com/Skotchmaster/lms/pkg/config"
)

type Config struct {
	config.Base

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	KafkaTopic    string
	StatsSchedule string
}

func Load() Config {
	base := config.LoadBase("course")
	base.ServerPort = config.EnvIntDefault("SERVER_PORT", 8082)

	return Config{
		Base:          base,
		ESURL:         strings.TrimSpace(os.Getenv("ES_URL")),
		ESUser:        strings.TrimSpace(os.Getenv("ES_USER")),
		ESPassword:    os.Getenv("ES_PASSWORD"),
		ESIndex:       config.EnvDefault("ES_INDEX", "courses"),
		KafkaTopic:    config.EnvDefault("KAFKA_TOPIC", "lms.events"),
		StatsSchedule: config.EnvDefault("STATS_RECONCILE_SCHEDULE", "@every 10m"),
	}
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Base.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Production() && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required in production"))
	}
	if c.ESURL != "" && c.ESIndex == "" {
		errs = append(errs, errors.New("ES_INDEX is required when ES_URL is set"))
	}
	return errors.Join(errs...)
}
