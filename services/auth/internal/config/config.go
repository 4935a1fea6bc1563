package config

import (
	"errors"
	"strings"

	"github.com/Skotchmaster/lms/pkg/config"
)

type Config struct {
	config.Base

	KafkaTopic    string
	SeedDemoUsers bool
	BcryptCost    int
	ResetPageURL  string
}

func Load() Config {
	base := config.LoadBase("auth")
	base.ServerPort = config.EnvIntDefault("SERVER_PORT", 8081)

	return Config{
		Base:          base,
		KafkaTopic:    config.EnvDefault("KAFKA_TOPIC", "lms.events"),
		SeedDemoUsers: config.EnvBoolDefault("SEED_DEMO_USERS", false),
		BcryptCost:    config.EnvIntDefault("BCRYPT_COST", 10),
		ResetPageURL:  strings.TrimRight(base.FrontendURL, "/") + "/reset-password",
	}
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Base.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.Production() && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required in production"))
	}
	if c.Production() && c.SeedDemoUsers {
		errs = append(errs, errors.New("SEED_DEMO_USERS must not be enabled in production"))
	}
	return errors.Join(errs...)
}
