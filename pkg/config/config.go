// Package config handles application configuration.
//
// It provides:
//   - Flag parsing with CLI arguments
//   - Environment variable support (with CLI override)
//   - Configuration validation
//   - Precedence: CLI flags > environment variables > defaults
//
// Supported environment variables:
//   - HOMECONTROL_EMAIL: Account email for interactive login
//   - HOMECONTROL_PASSWORD: Account password for interactive login
//   - HOMECONTROL_ACCESS_TOKEN: Pre-obtained access token (bypasses login)
//   - HOMECONTROL_ACCESS_TOKEN_TTL: Lifetime of the supplied token (seconds)
//   - HOMECONTROL_POLL_INTERVAL: Device status poll interval (seconds)
//   - HOMECONTROL_DEVICES: Comma-separated module ID allow-list
//   - HOMECONTROL_PORT: HTTP server port for /metrics and /health
//   - HOMECONTROL_REQUEST_TIMEOUT: Timeout for API requests (seconds)
//   - HOMECONTROL_LOG_LEVEL: Logging level (debug, info, warn, error)
//   - HOMECONTROL_LOG_FORMAT: Logging format (json, text)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Config holds the application configuration
type Config struct {
	// Account credentials for the simulated interactive login
	Email    string
	Password string

	// Manual token override (bypasses the login choreography)
	AccessToken    string
	AccessTokenTTL int

	// Polling configuration
	PollInterval int
	Devices      string

	// One-shot command harness (mutually exclusive with polling mode)
	Device  string
	Command string

	// Server configuration
	Port int

	// Device API configuration
	RequestTimeout int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load parses environment variables and command-line flags and returns a Config
// Precedence: CLI flags > environment variables > defaults
func Load() *Config {
	return LoadWithArgs(os.Args[1:])
}

// LoadWithArgs loads configuration with explicit arguments (useful for testing)
func LoadWithArgs(args []string) *Config {
	cfg := &Config{}

	// Read environment variables
	envEmail := os.Getenv("HOMECONTROL_EMAIL")
	envPassword := os.Getenv("HOMECONTROL_PASSWORD")
	envAccessToken := os.Getenv("HOMECONTROL_ACCESS_TOKEN")
	envAccessTokenTTL := os.Getenv("HOMECONTROL_ACCESS_TOKEN_TTL")
	envPollInterval := os.Getenv("HOMECONTROL_POLL_INTERVAL")
	envDevices := os.Getenv("HOMECONTROL_DEVICES")
	envPort := os.Getenv("HOMECONTROL_PORT")
	envRequestTimeout := os.Getenv("HOMECONTROL_REQUEST_TIMEOUT")
	envLogLevel := os.Getenv("HOMECONTROL_LOG_LEVEL")
	envLogFormat := os.Getenv("HOMECONTROL_LOG_FORMAT")

	if envLogLevel == "" {
		envLogLevel = "info"
	}
	if envLogFormat == "" {
		envLogFormat = "text"
	}

	// Create a new FlagSet for this invocation (allows multiple calls in tests)
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	// Parse command-line flags (these override env vars)
	fs.StringVar(&cfg.Email, "email", envEmail, "Account email for login (env: HOMECONTROL_EMAIL)")
	fs.StringVar(&cfg.Password, "password", envPassword, "Account password for login (env: HOMECONTROL_PASSWORD)")
	fs.StringVar(&cfg.AccessToken, "access-token", envAccessToken, "Pre-obtained access token, bypasses login (env: HOMECONTROL_ACCESS_TOKEN)")
	fs.IntVar(&cfg.AccessTokenTTL, "access-token-ttl", parseEnvInt(envAccessTokenTTL, 3600), "Lifetime of the supplied access token in seconds (env: HOMECONTROL_ACCESS_TOKEN_TTL)")

	fs.IntVar(&cfg.PollInterval, "poll-interval", parseEnvInt(envPollInterval, 30), "Device status poll interval in seconds (env: HOMECONTROL_POLL_INTERVAL)")
	fs.StringVar(&cfg.Devices, "devices", envDevices, "Comma-separated module ID allow-list, overrides auto-discovery (env: HOMECONTROL_DEVICES)")

	fs.StringVar(&cfg.Device, "device", "", "Module ID for a one-shot command (disables polling mode)")
	fs.StringVar(&cfg.Command, "command", "", "One-shot command: on, off, status or brightness=N")

	fs.IntVar(&cfg.Port, "port", parseEnvInt(envPort, 9503), "HTTP server listen port (env: HOMECONTROL_PORT)")
	fs.IntVar(&cfg.RequestTimeout, "request-timeout", parseEnvInt(envRequestTimeout, 15), "Maximum time in seconds to wait for API responses (env: HOMECONTROL_REQUEST_TIMEOUT)")

	fs.StringVar(&cfg.LogLevel, "log-level", envLogLevel, "Logging verbosity: debug, info, warn, error (env: HOMECONTROL_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", envLogFormat, "Logging format: json or text (env: HOMECONTROL_LOG_FORMAT)")

	// Parse args - in production this will be os.Args, in tests can be empty or custom
	// FlagSet is configured with ContinueOnError, so parse errors are handled gracefully
	_ = fs.Parse(args)

	return cfg
}

// parseEnvInt parses an environment variable as an integer, returning default if invalid
func parseEnvInt(envValue string, defaultValue int) int {
	if envValue == "" {
		return defaultValue
	}
	var result int
	_, err := fmt.Sscanf(envValue, "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

// DeviceAllowList returns the configured module ID allow-list, nil when
// auto-discovery should be used.
func (c *Config) DeviceAllowList() []string {
	if c.Devices == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(c.Devices, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasCredentials reports whether both email and password are configured.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.HasCredentials() && c.AccessToken == "" {
		return fmt.Errorf("credentials are required: set -email and -password, or -access-token")
	}

	if (c.Email == "") != (c.Password == "") {
		return fmt.Errorf("email and password must be provided together")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}

	if c.PollInterval < 1 {
		return fmt.Errorf("invalid poll-interval: %d (must be at least 1 second)", c.PollInterval)
	}

	if c.RequestTimeout < 1 {
		return fmt.Errorf("invalid request-timeout: %d (must be at least 1 second)", c.RequestTimeout)
	}

	if c.AccessTokenTTL < 1 {
		return fmt.Errorf("invalid access-token-ttl: %d (must be at least 1 second)", c.AccessTokenTTL)
	}

	if (c.Device == "") != (c.Command == "") {
		return fmt.Errorf("-device and -command must be provided together")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log-level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log-format: %s (must be 'json' or 'text')", c.LogFormat)
	}

	return nil
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Email: %s, Port: %d, PollInterval: %ds, RequestTimeout: %ds, LogLevel: %s}",
		maskEmail(c.Email), c.Port, c.PollInterval, c.RequestTimeout, c.LogLevel)
}

// maskEmail hides the local part of an email address for logging
func maskEmail(email string) string {
	i := strings.Index(email, "@")
	if i <= 0 {
		return "<unset>"
	}
	return email[:1] + "***" + email[i:]
}
