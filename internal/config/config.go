// Package config loads application configuration from config.yaml and
// B2B_-prefixed environment variables.
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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	SMTP     SMTPConfig     `yaml:"smtp" mapstructure:"smtp"`
	IMAP     IMAPConfig     `yaml:"imap" mapstructure:"imap"`
	Hunter   HunterConfig   `yaml:"hunter" mapstructure:"hunter"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Verify   VerifyConfig   `yaml:"verify" mapstructure:"verify"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Send     SendConfig     `yaml:"send" mapstructure:"send"`
	Bounce   BounceConfig   `yaml:"bounce" mapstructure:"bounce"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SMTPConfig holds mail-submission credentials.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// Validate checks that dispatch can authenticate at all. This is the only
// fatal configuration error: it is detected before a send run starts.
func (c SMTPConfig) Validate() error {
	if c.User == "" || c.Password == "" {
		return eris.New("config: smtp user and password are required")
	}
	return nil
}

// IMAPConfig holds mailbox-scan credentials.
type IMAPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Folder   string `yaml:"folder" mapstructure:"folder"`
}

// Validate checks that the bounce scan can authenticate.
func (c IMAPConfig) Validate() error {
	if c.User == "" || c.Password == "" {
		return eris.New("config: imap user and password are required")
	}
	return nil
}

// HunterConfig holds the third-party verification API settings. An empty key
// disables verification entirely.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SearchConfig configures the web search used for domain resolution.
type SearchConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// CrawlConfig configures the page crawl of the web discoverer.
type CrawlConfig struct {
	MaxPages          int     `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ResolverConfig configures the domain guess fallback.
type ResolverConfig struct {
	GuessTLDs []string `yaml:"guess_tlds" mapstructure:"guess_tlds"`
}

// VerifyConfig configures the candidate verifier.
type VerifyConfig struct {
	SMTPProbe        bool   `yaml:"smtp_probe" mapstructure:"smtp_probe"`
	ProbeTimeoutSecs int    `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	ProbeHelloDomain string `yaml:"probe_hello_domain" mapstructure:"probe_hello_domain"`
	ProbeFrom        string `yaml:"probe_from" mapstructure:"probe_from"`
}

// PipelineConfig configures discovery orchestration.
type PipelineConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// SendConfig holds the dispatch throttle parameters.
type SendConfig struct {
	MinDelaySecs float64 `yaml:"min_delay_secs" mapstructure:"min_delay_secs"`
	MaxDelaySecs float64 `yaml:"max_delay_secs" mapstructure:"max_delay_secs"`
	MaxPerRun    int     `yaml:"max_per_run" mapstructure:"max_per_run"`
}

// MinDelay returns the configured lower delay bound.
func (c SendConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySecs * float64(time.Second))
}

// MaxDelay returns the configured upper delay bound.
func (c SendConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySecs * float64(time.Second))
}

// BounceConfig configures the bounce scan window.
type BounceConfig struct {
	SinceDays int `yaml:"since_days" mapstructure:"since_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("B2B")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "b2bcamp.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.folder", "INBOX")

	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("search.base_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.timeout_secs", 10)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.retries", 2)

	v.SetDefault("crawl.max_pages", 10)
	v.SetDefault("crawl.timeout_secs", 8)
	v.SetDefault("crawl.requests_per_second", 2.0)

	v.SetDefault("resolver.guess_tlds", []string{".fr", ".com", ".eu", ".io", ".net"})

	v.SetDefault("verify.smtp_probe", true)
	v.SetDefault("verify.probe_timeout_secs", 10)
	v.SetDefault("verify.probe_hello_domain", "mail.example.com")
	v.SetDefault("verify.probe_from", "check@example.com")

	v.SetDefault("pipeline.max_concurrent_companies", 4)

	v.SetDefault("send.min_delay_secs", 5)
	v.SetDefault("send.max_delay_secs", 15)
	v.SetDefault("send.max_per_run", 50)

	v.SetDefault("bounce.since_days", 7)
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
