// Package config provides configuration loading from environment variables.
package config

import (
	"time"

	"infergate/internal/apperrors"
	"infergate/internal/storepath"
)

// ServiceConfig holds configuration for the gateway service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	Region       string // AWS region for the store and inference backend
	EndpointName string // async inference endpoint to invoke

	Bucket        string // object store bucket shared with the backend
	InputPrefix   string
	OutputPrefix  string
	FailurePrefix string

	InvocationTimeout time.Duration // max time the backend may spend on one job
	RequestTTL        time.Duration // how long the backend keeps the queued request
	CheckInterval     time.Duration // suggested wait between result probes

	CallbackURL        string // lifecycle event destination, empty = disabled
	CallbackSigningKey string
}

// LoadServiceConfig loads gateway configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              Env("PORT", "8080"),
		MetricsPort:       Env("METRICS_PORT", "9090"),
		APIKey:            SecretFromFile(Env("API_KEY_FILE", "")),
		ShutdownDrainWait: EnvDuration("SHUTDOWN_DRAIN_WAIT", 5*time.Second),

		Region:       Env("AWS_REGION", "us-east-1"),
		EndpointName: Env("ENDPOINT_NAME", ""),

		Bucket:        Env("STORE_BUCKET", ""),
		InputPrefix:   Env("STORE_INPUT_PREFIX", "inputs"),
		OutputPrefix:  Env("STORE_OUTPUT_PREFIX", "outputs"),
		FailurePrefix: Env("STORE_FAILURE_PREFIX", "failures"),

		InvocationTimeout: EnvDuration("INVOCATION_TIMEOUT", time.Hour),
		RequestTTL:        EnvDuration("REQUEST_TTL", 6*time.Hour),
		CheckInterval:     EnvDuration("CHECK_INTERVAL", 30*time.Second),

		CallbackURL:        Env("CALLBACK_URL", ""),
		CallbackSigningKey: SecretFromFile(Env("CALLBACK_SIGNING_KEY_FILE", "")),
	}
}

// Layout returns the object store layout derived from this config.
func (c *ServiceConfig) Layout() storepath.Layout {
	return storepath.Layout{
		Bucket:        c.Bucket,
		InputPrefix:   c.InputPrefix,
		OutputPrefix:  c.OutputPrefix,
		FailurePrefix: c.FailurePrefix,
	}
}

// Validate checks that required settings are present and coherent.
func (c *ServiceConfig) Validate() error {
	if c.EndpointName == "" {
		return apperrors.Config("CONFIGURATION_ERROR", "ENDPOINT_NAME is required")
	}
	if err := c.Layout().Validate(); err != nil {
		return err
	}
	if c.CheckInterval <= 0 {
		return apperrors.Config("CONFIGURATION_ERROR", "CHECK_INTERVAL must be positive")
	}
	if c.InvocationTimeout <= 0 || c.RequestTTL < c.InvocationTimeout {
		return apperrors.Config("CONFIGURATION_ERROR", "REQUEST_TTL must be at least INVOCATION_TIMEOUT")
	}
	return nil
}
