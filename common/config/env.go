// Package config reads process configuration from the environment, the
// way every node in the ring (gateway, screen, robot) picks its
// addresses and tunables that spec.md leaves to the operator.
package config

import (
	"os"
	"strconv"
)

// GetEnv retrieves an environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MustGetEnv retrieves an environment variable or panics if not set.
func MustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Required environment variable not set: " + key)
	}
	return value
}

// GetEnvInt retrieves an integer environment variable, falling back to
// defaultValue if unset or unparsable.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
