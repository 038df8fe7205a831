package config

import (
	"time"
)

// SDKPlaneConfig configures the read-only SDK REST API server.
type SDKPlaneConfig struct {
	Port              string        `envconfig:"PORT" default:"8081"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"2s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"65536" validate:"min=1"` // 64KB
}

// Validate performs validation on the SDKPlaneConfig.
func (c *SDKPlaneConfig) Validate() error {
	// Validate port
	if err := validatePort(c.Port, "sdk plane"); err != nil {
		return err
	}

	// Validate host
	if err := validateHost(c.Host, "sdk plane"); err != nil {
		return err
	}

	return nil
}
