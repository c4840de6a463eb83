package models

// Config holds the application configuration
type Config struct {
	Mode         string           `json:"mode" yaml:"mode"`
	Primary      PrimaryConfig    `json:"primary" yaml:"primary"`
	Telegram     TelegramConfig   `json:"telegram" yaml:"telegram"`
	ChannelOrder []string         `json:"channel_order" yaml:"channel_order"`
	Retry        RetryConfig      `json:"retry" yaml:"retry"`
	Stub         StubConfig       `json:"stub" yaml:"stub"`
	Database     DatabaseConfig   `json:"database" yaml:"database"`
	Server       ServerConfig     `json:"server" yaml:"server"`
	Tracing      TracingConfig    `json:"tracing" yaml:"tracing"`
	Validation   ValidationConfig `json:"validation" yaml:"validation"`
	Timezone     string           `json:"timezone" yaml:"timezone"`
	LogLevel     string           `json:"log_level" yaml:"log_level"`
}

const (
	ModeLive = "live"
	ModeStub = "stub"
)

// PrimaryConfig configures the primary HTTP delivery endpoint
type PrimaryConfig struct {
	URL        string `json:"url" yaml:"url"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
	// Secret signs outgoing requests; env only.
	Secret string `json:"-" yaml:"-"`
}

// TelegramConfig configures the secondary bot API channel
type TelegramConfig struct {
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`
	ChatID     string `json:"chat_id" yaml:"chat_id"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
	// BotToken is read from the environment only.
	BotToken string `json:"-" yaml:"-"`
}

// RetryConfig holds pending-queue retry settings
type RetryConfig struct {
	DelayMs  int    `json:"delay_ms" yaml:"delay_ms"`
	Schedule string `json:"schedule" yaml:"schedule"`
}

// StubConfig configures the offline/demo dispatcher
type StubConfig struct {
	LatencyMs int `json:"latency_ms" yaml:"latency_ms"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
	// EncryptionSecret enables AES-GCM encryption of stored values; env only.
	EncryptionSecret string `json:"-" yaml:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      int      `json:"rate_limit" yaml:"rate_limit"`
	RateWindowSec  int      `json:"rate_window_sec" yaml:"rate_window_sec"`
	TrustForwarded bool     `json:"trust_forwarded" yaml:"trust_forwarded"`
	// AdminToken guards the operator routes; env only.
	AdminToken string `json:"-" yaml:"-"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

// ValidationConfig lists form fields that must be present per form type
type ValidationConfig struct {
	RequiredFields map[string][]string `json:"required_fields" yaml:"required_fields"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
