package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/models"
	"leadrelay/internal/security"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingPrimaryURL = models.ConfigError{Message: "missing primary endpoint URL (primary.url) in live mode"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads a JSON or YAML file (chosen by extension), fills defaults,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	return Finalize(&config)
}

// Default returns a configuration built only from defaults and the
// environment. Used when no config file is given.
func Default() (*models.Config, error) {
	return Finalize(&models.Config{})
}

// Finalize applies defaults and environment overrides to c and validates it.
func Finalize(c *models.Config) (*models.Config, error) {
	applyDefaults(c)
	applyEnvironmentOverrides(c)

	if err := validate(c); err != nil {
		return nil, err
	}
	if err := validateSecurity(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyDefaults(c *models.Config) {
	if c.Mode == "" {
		c.Mode = models.ModeLive
	}
	if len(c.ChannelOrder) == 0 {
		c.ChannelOrder = []string{constants.ChannelPrimary, constants.ChannelSecondary}
	}
	if c.Primary.TimeoutSec <= 0 {
		c.Primary.TimeoutSec = constants.DefaultPrimaryTimeoutSec
	}
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = constants.DefaultTelegramAPIBaseURL
	}
	if c.Telegram.TimeoutSec <= 0 {
		c.Telegram.TimeoutSec = constants.DefaultTelegramTimeoutSec
	}
	if c.Retry.DelayMs <= 0 {
		c.Retry.DelayMs = constants.DefaultRetryDelayMs
	}
	if c.Stub.LatencyMs < 0 {
		c.Stub.LatencyMs = 0
	} else if c.Stub.LatencyMs == 0 {
		c.Stub.LatencyMs = constants.DefaultStubLatencyMs
	}
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = constants.DefaultRateLimit
	}
	if c.Server.RateWindowSec <= 0 {
		c.Server.RateWindowSec = constants.DefaultRateWindowSec
	}
	if c.Timezone == "" {
		c.Timezone = constants.DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "leadrelay"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if mode := os.Getenv("LEADRELAY_MODE"); mode != "" {
		c.Mode = mode
	}
	if u := os.Getenv("LEADRELAY_PRIMARY_URL"); u != "" {
		c.Primary.URL = u
	}
	if chatID := os.Getenv("LEADRELAY_TELEGRAM_CHAT_ID"); chatID != "" {
		c.Telegram.ChatID = chatID
	}
	if path := os.Getenv("LEADRELAY_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}

	// SECURITY: secrets are only ever read from the environment
	c.Telegram.BotToken = os.Getenv("LEADRELAY_TELEGRAM_BOT_TOKEN")
	c.Primary.Secret = os.Getenv("LEADRELAY_PRIMARY_SECRET")
	c.Server.AdminToken = os.Getenv("LEADRELAY_ADMIN_TOKEN")
	if os.Getenv("LEADRELAY_ENABLE_ENCRYPTION") == "true" {
		c.Database.EncryptionSecret = os.Getenv("LEADRELAY_ENCRYPTION_SECRET")
	}
}

func validate(c *models.Config) error {
	switch c.Mode {
	case models.ModeLive:
		if c.Primary.URL == "" {
			return ErrMissingPrimaryURL
		}
	case models.ModeStub:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown mode %q (expected %q or %q)", c.Mode, models.ModeLive, models.ModeStub)}
	}

	if c.Primary.URL != "" {
		if err := validateHTTPURL(c.Primary.URL); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid primary.url: %v", err)}
		}
	}
	if err := validateHTTPURL(c.Telegram.APIBaseURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid telegram.api_base_url: %v", err)}
	}

	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	seen := make(map[string]bool, len(c.ChannelOrder))
	for _, ch := range c.ChannelOrder {
		if ch != constants.ChannelPrimary && ch != constants.ChannelSecondary {
			return models.ConfigError{Message: fmt.Sprintf("unknown channel %q in channel_order", ch)}
		}
		if seen[ch] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate channel %q in channel_order", ch)}
		}
		seen[ch] = true
	}

	if c.Retry.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retry.Schedule); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid retry.schedule %q: %v", c.Retry.Schedule, err)}
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid timezone %q: %v", c.Timezone, err)}
	}

	if c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing.sample_rate must be between 0 and 1"}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("LEADRELAY_ENV") == "production"

	if os.Getenv("LEADRELAY_ENABLE_ENCRYPTION") == "true" && len(c.Database.EncryptionSecret) < 32 {
		return models.ConfigError{Message: "LEADRELAY_ENCRYPTION_SECRET must be at least 32 characters long when encryption is enabled"}
	}

	if isProduction {
		if c.Mode == models.ModeLive && c.Telegram.BotToken == "" {
			return models.ConfigError{Message: "secondary channel bot token is required in production (set LEADRELAY_TELEGRAM_BOT_TOKEN environment variable)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Mode == models.ModeLive && c.Telegram.BotToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: LEADRELAY_TELEGRAM_BOT_TOKEN not set. The secondary channel will fail every attempt.\n")
	}

	return nil
}
