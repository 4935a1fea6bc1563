package config

import "log"

func MustNonEmpty(value, envName string) string {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
	return value
}

// MustValid aborts the process when a service configuration fails validation.
func MustValid(service string, err error) {
	if err != nil {
		log.Fatalf("%s: invalid configuration: %v", service, err)
	}
}
