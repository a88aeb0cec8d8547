package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LLMProvider names a supported hosted LLM provider.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// Config is the whole application configuration. It is read once at startup
// and passed explicitly to the components that need it; nothing mutates it
// at runtime.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Frameworks FrameworksConfig `mapstructure:"frameworks" yaml:"frameworks"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMModelConfig defines the configuration for a single hosted model.
type LLMModelConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LLMConfig holds the per-provider model settings used by the client
// factories. Keys come from the environment, never from the config file.
type LLMConfig struct {
	OpenAI LLMModelConfig `mapstructure:"openai" yaml:"openai"`
	Gemini LLMModelConfig `mapstructure:"gemini" yaml:"gemini"`
}

// ForProvider returns the model config for the named provider.
func (c LLMConfig) ForProvider(p LLMProvider) (LLMModelConfig, error) {
	switch p {
	case ProviderOpenAI:
		return c.OpenAI, nil
	case ProviderGemini:
		return c.Gemini, nil
	default:
		return LLMModelConfig{}, fmt.Errorf("unknown LLM provider %q, supported: [%s %s]", p, ProviderOpenAI, ProviderGemini)
	}
}

// QueueConfig selects how background tasks run. When Enabled is false tasks
// execute inline in the request process; the flag is read at startup and
// never flipped afterwards.
type QueueConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	Workers   int  `mapstructure:"workers" yaml:"workers"`
	QueueSize int  `mapstructure:"queue_size" yaml:"queue_size"`
}

// BrowserConfig holds settings for the headless browser sessions handed to
// the browser-driven actions.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// DatabaseConfig holds the execution store connection details. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// FrameworksConfig points at the predefined framework catalog.
type FrameworksConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.listen_addr", ":8087")
	v.SetDefault("server.request_timeout", "120s")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "agentgate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.openai.provider", "openai")
	v.SetDefault("llm.openai.model", "gpt-5.1")
	v.SetDefault("llm.openai.api_timeout", "5m")
	v.SetDefault("llm.openai.temperature", 0.0)
	v.SetDefault("llm.openai.requests_per_minute", 60)
	v.SetDefault("llm.gemini.provider", "gemini")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.gemini.api_timeout", "5m")
	v.SetDefault("llm.gemini.temperature", 0.0)
	v.SetDefault("llm.gemini.requests_per_minute", 60)

	// -- Queue --
	// Disabled by default, background tasks run inline.
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.queue_size", 256)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Frameworks --
	v.SetDefault("frameworks.dir", "./frameworks")
}

// NewConfigFromViper builds and validates a Config from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Credentials only ever come from the environment.
	v.BindEnv("llm.openai.api_key", "AGENTGATE_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("llm.gemini.api_key", "AGENTGATE_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("database.url", "AGENTGATE_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Queue.Enabled {
		if c.Queue.Workers <= 0 {
			return fmt.Errorf("queue.workers must be a positive integer")
		}
		if c.Queue.QueueSize <= 0 {
			return fmt.Errorf("queue.queue_size must be a positive integer")
		}
	}
	return nil
}
