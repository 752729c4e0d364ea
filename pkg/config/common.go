package config

import (
	"os"
	"strings"
)

// Environment is the deployment environment named by APP_ENV
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// GetEnvironment reads APP_ENV. Unknown or empty values mean development.
func GetEnvironment() Environment {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV"))) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "test", "testing":
		return Test
	default:
		return Development
	}
}

// IsProduction makes the session HMAC key mandatory
func IsProduction() bool {
	return GetEnvironment() == Production
}
