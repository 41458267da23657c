package telemetry

import (
	"fmt"
	"os"
	"strings"
)

// Config holds telemetry provider configuration.
type Config struct {
	// ServiceName identifies the service in telemetry data
	ServiceName string `json:"service_name"`

	// ServiceVersion identifies the service version in telemetry data
	ServiceVersion string `json:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled"`

	// Exporters specifies which exporters to use (prometheus, stdout)
	Exporters []string `json:"exporters"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "prolly",
		ServiceVersion: "development",
		Enabled:        false,
		Exporters:      []string{"prometheus"},
	}
}

// LoadFromEnv loads configuration from environment variables,
// overriding defaults.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("PROLLY_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}
	if val := os.Getenv("PROLLY_TELEMETRY_ENABLED"); val != "" {
		c.Enabled = val == "1" || strings.EqualFold(val, "true")
	}
	if val := os.Getenv("PROLLY_TELEMETRY_EXPORTERS"); val != "" {
		c.Exporters = strings.Split(val, ",")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name must not be empty")
	}
	for _, e := range c.Exporters {
		switch e {
		case "prometheus", "stdout":
		default:
			return fmt.Errorf("unsupported exporter %q", e)
		}
	}
	return nil
}
