package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Skotchmaster/lms/pkg/config"
)

type Config struct {
	ServerPort int
	LogLevel   string
	CORSOrigin string

	AuthURL   string
	CourseURL string
}

func Load() Config {
	return Config{
		ServerPort: config.EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   config.EnvDefault("LOG_LEVEL", "info"),
		CORSOrigin: config.EnvDefault("CORS_ORIGIN", "http://localhost:3000"),
		AuthURL:    strings.TrimSpace(os.Getenv("AUTH_URL")),
		CourseURL:  strings.TrimSpace(os.Getenv("COURSE_URL")),
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]string{"AUTH_URL": c.AuthURL, "COURSE_URL": c.CourseURL} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", name))
		}
	}
	if c.ServerPort <= 0 {
		errs = append(errs, errors.New("SERVER_PORT must be positive"))
	}
	return errors.Join(errs...)
}
