// Package config loads service configuration from an optional YAML file and
// INSIGHT_-prefixed environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	DeepInfra DeepInfraConfig `yaml:"deepinfra" mapstructure:"deepinfra"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	AnalyzePerMinute int      `yaml:"analyze_per_minute" mapstructure:"analyze_per_minute"`
	ChatPerMinute    int      `yaml:"chat_per_minute" mapstructure:"chat_per_minute"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CacheConfig configures the analysis cache lifecycle.
type CacheConfig struct {
	TTLHours          int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	SweepIntervalMins int `yaml:"sweep_interval_mins" mapstructure:"sweep_interval_mins"`
	BuildTimeoutSecs  int `yaml:"build_timeout_secs" mapstructure:"build_timeout_secs"`
}

// TTL returns the entry time-to-live; zero disables eviction.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SweepInterval returns how often the janitor scans for expired entries.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// BuildTimeout bounds one fetch+extract build.
func (c CacheConfig) BuildTimeout() time.Duration {
	return time.Duration(c.BuildTimeoutSecs) * time.Second
}

// ScrapeConfig configures the content fetch strategies. Exclude patterns
// keep asset URLs out of the fetch chain; empty means the built-in set.
type ScrapeConfig struct {
	ReaderBaseURL string   `yaml:"reader_base_url" mapstructure:"reader_base_url"`
	ReaderKey     string   `yaml:"reader_key" mapstructure:"reader_key"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyKB     int      `yaml:"max_body_kb" mapstructure:"max_body_kb"`
	Exclude       []string `yaml:"exclude" mapstructure:"exclude"`
}

// IndexConfig configures chunking and retrieval.
type IndexConfig struct {
	ChunkSize    int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	TopK         int `yaml:"top_k" mapstructure:"top_k"`
}

// ExtractConfig configures insight extraction.
type ExtractConfig struct {
	Workers         int `yaml:"workers" mapstructure:"workers"`
	MaxQuestions    int `yaml:"max_questions" mapstructure:"max_questions"`
	TaskTimeoutSecs int `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
}

// ChatConfig configures the conversation engine.
type ChatConfig struct {
	HistoryWindow int `yaml:"history_window" mapstructure:"history_window"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DeepInfraConfig holds the embedding service settings. An empty key leaves
// embeddings off and retrieval falls back to lexical scoring.
type DeepInfraConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// StoreConfig configures the optional analysis archive.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	WarmStart   bool   `yaml:"warm_start" mapstructure:"warm_start"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Enabled reports whether an archive backend is configured.
func (c StoreConfig) Enabled() bool {
	return c.Driver != ""
}

// NotionConfig holds the optional analysis publisher settings.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// Enabled reports whether the publisher is configured.
func (c NotionConfig) Enabled() bool {
	return c.Token != "" && c.DatabaseID != ""
}

// MonitorConfig configures the background alert checker. An empty webhook
// URL disables delivery; triggered alerts are still logged.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostBudgetUSD        float64 `yaml:"cost_budget_usd" mapstructure:"cost_budget_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// CheckInterval returns how often thresholds are evaluated.
func (c MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSecs) * time.Second
}

// Load reads configuration from path when given, otherwise from an optional
// config.yaml in the working directory. INSIGHT_ environment variables
// override file values either way.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.analyze_per_minute", 10)
	v.SetDefault("server.chat_per_minute", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.sweep_interval_mins", 10)
	v.SetDefault("cache.build_timeout_secs", 180)
	v.SetDefault("scrape.reader_base_url", "https://r.jina.ai")
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.max_body_kb", 512)
	v.SetDefault("index.chunk_size", 2000)
	v.SetDefault("index.chunk_overlap", 200)
	v.SetDefault("index.top_k", 5)
	v.SetDefault("extract.workers", 4)
	v.SetDefault("extract.max_questions", 5)
	v.SetDefault("extract.task_timeout_secs", 45)
	v.SetDefault("chat.history_window", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("deepinfra.base_url", "https://api.deepinfra.com/v1/openai")
	v.SetDefault("deepinfra.model", "BAAI/bge-m3")
	v.SetDefault("deepinfra.batch_size", 16)
	v.SetDefault("store.driver", "")
	v.SetDefault("store.path", "insight.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.check_interval_secs", 300)

	// Read config file (optional unless a path was given; a missing explicit
	// file surfaces as a path error, not ConfigFileNotFoundError)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode. Modes: serve,
// analyze, export.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireLLM := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.AnalyzePerMinute <= 0 || c.Server.ChatPerMinute <= 0 {
			problems = append(problems, "server rate limits must be > 0")
		}
		requireLLM()
	case "analyze":
		requireLLM()
	case "export":
		if !c.Store.Enabled() {
			problems = append(problems, "store.driver is required for export")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Extract.Workers <= 0 || c.Extract.Workers > 32 {
		problems = append(problems, "extract.workers must be between 1 and 32")
	}
	if c.Index.TopK <= 0 || c.Index.TopK > 9 {
		problems = append(problems, "index.top_k must be between 1 and 9")
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		problems = append(problems, "index.chunk_overlap must be smaller than index.chunk_size")
	}
	if c.Store.Enabled() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
