package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Paystack.Validate(c.Environment); err != nil {
		return fmt.Errorf("paystack config: %w", err)
	}

	if err := c.Security.Validate(c.Environment); err != nil {
		return fmt.Errorf("security config: %w", err)
	}

	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}

// Validate refuses to start without a webhook secret outside development.
// Running unsigned-webhook verification in production would let anyone grant
// themselves credits; a misconfigured secret must be a startup failure, not a
// runtime bypass.
func (c *PaystackConfig) Validate(environment string) error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}
	if c.WebhookSecret == "" && environment != "development" {
		return fmt.Errorf("webhook secret is required outside development")
	}
	return nil
}

func (c *SecurityConfig) Validate(environment string) error {
	if c.AdminJWTSecret == "" && environment != "development" {
		return fmt.Errorf("admin JWT secret is required outside development")
	}
	return nil
}
