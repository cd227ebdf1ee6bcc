package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// GetString reads an environment variable, returning fallback when the
// variable is unset or blank.
func GetString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// GetInt reads an environment variable as an integer. Unset, blank or
// unparsable values yield the fallback.
func GetInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid value for %s: %v", key, err)
		return fallback
	}
	return parsed
}
