package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env returns the named environment variable, or fallback when it is
// unset or empty. Surrounding whitespace is stripped.
func Env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// EnvInt parses the named environment variable as an integer. Unset,
// empty, or unparseable values yield fallback.
func EnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvDuration parses the named environment variable with
// time.ParseDuration ("30s", "5m"). Unset, empty, or unparseable values
// yield fallback.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// SecretFromFile reads a secret value from a mounted file, as used by
// Docker secrets and Kubernetes secret volumes. Returns "" when the
// path is empty or unreadable so callers can treat the secret as absent.
func SecretFromFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
