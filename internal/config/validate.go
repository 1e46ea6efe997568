package config

import (
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Provider {
	case ProviderNative, ProviderMagick:
	default:
		return fmt.Errorf("pipeline.provider must be %q or %q, got %q", ProviderNative, ProviderMagick, c.Pipeline.Provider)
	}
	if c.Pipeline.Workers > 64 {
		return fmt.Errorf("pipeline.workers must be 64 or fewer, got %d", c.Pipeline.Workers)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
