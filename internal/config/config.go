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
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Crawl  CrawlConfig  `yaml:"crawl" mapstructure:"crawl"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Alert  AlertConfig  `yaml:"alert" mapstructure:"alert"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates region inputs, resume stores and outputs.
type DataConfig struct {
	InputDir     string `yaml:"input_dir" mapstructure:"input_dir"`
	ResultsDir   string `yaml:"results_dir" mapstructure:"results_dir"`
	ResumeSuffix string `yaml:"resume_suffix" mapstructure:"resume_suffix"`
}

// SearchConfig holds ValueSERP credentials and the fixed locale.
type SearchConfig struct {
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	SearchType   string  `yaml:"search_type" mapstructure:"search_type"`
	GoogleDomain string  `yaml:"google_domain" mapstructure:"google_domain"`
	GL           string  `yaml:"gl" mapstructure:"gl"`
	HL           string  `yaml:"hl" mapstructure:"hl"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CrawlConfig configures queries and pagination thresholds.
type CrawlConfig struct {
	Queries          []string      `yaml:"queries" mapstructure:"queries"`
	Zoom             int           `yaml:"zoom" mapstructure:"zoom"`
	PageSize         int           `yaml:"page_size" mapstructure:"page_size"`
	DupIDLimit       int           `yaml:"dup_id_limit" mapstructure:"dup_id_limit"`
	FullDupPageLimit int           `yaml:"full_dup_page_limit" mapstructure:"full_dup_page_limit"`
	PageDelay        time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
}

// ExportConfig selects the database the export command loads into.
type ExportConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AlertConfig configures the halt notification webhook.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookKey string `yaml:"webhook_key" mapstructure:"webhook_key"`
	Recipient  string `yaml:"recipient" mapstructure:"recipient"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.input_dir", "data")
	v.SetDefault("data.results_dir", "results")
	v.SetDefault("data.resume_suffix", ".backup")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "https://api.valueserp.com")
	v.SetDefault("search.search_type", "places")
	v.SetDefault("search.google_domain", "google.com.br")
	v.SetDefault("search.gl", "br")
	v.SetDefault("search.hl", "pt-br")
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.rate_limit", 0)
	v.SetDefault("crawl.queries", []string{"celular", "iphone"})
	v.SetDefault("crawl.zoom", 15)
	v.SetDefault("crawl.page_size", 20)
	v.SetDefault("crawl.dup_id_limit", 19)
	v.SetDefault("crawl.full_dup_page_limit", 3)
	v.SetDefault("crawl.page_delay", time.Second)
	v.SetDefault("export.driver", "sqlite")
	v.SetDefault("export.database_url", "places.db")
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.webhook_key", "")
	v.SetDefault("alert.recipient", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the fields a command needs. Mode is one of "crawl",
// "status", "export" or "config".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireData := func() {
		if c.Data.InputDir == "" {
			errs = append(errs, "data.input_dir is required")
		}
		if c.Data.ResultsDir == "" {
			errs = append(errs, "data.results_dir is required")
		}
	}

	switch mode {
	case "crawl":
		requireData()
		if c.Data.ResumeSuffix == "" {
			errs = append(errs, "data.resume_suffix is required")
		}
		if c.Search.APIKey == "" {
			errs = append(errs, "search.api_key is required")
		}
		if len(c.Crawl.Queries) == 0 {
			errs = append(errs, "crawl.queries must not be empty")
		}
		if c.Crawl.Zoom < 1 || c.Crawl.Zoom > 21 {
			errs = append(errs, "crawl.zoom must be between 1 and 21")
		}
		if c.Crawl.PageSize < 1 {
			errs = append(errs, "crawl.page_size must be > 0")
		}
		if c.Crawl.DupIDLimit < 0 {
			errs = append(errs, "crawl.dup_id_limit must be >= 0")
		}
		if c.Crawl.FullDupPageLimit < 1 {
			errs = append(errs, "crawl.full_dup_page_limit must be > 0")
		}
		if c.Crawl.PageDelay < 0 {
			errs = append(errs, "crawl.page_delay must be >= 0")
		}
		if c.Search.RateLimit < 0 {
			errs = append(errs, "search.rate_limit must be >= 0")
		}
	case "status":
		requireData()
	case "export":
		requireData()
		switch c.Export.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "export.driver must be sqlite or postgres")
		}
		if c.Export.DatabaseURL == "" {
			errs = append(errs, "export.database_url is required")
		}
	case "config":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	out.Crawl.Queries = append([]string(nil), c.Crawl.Queries...)
	out.Search.APIKey = mask(c.Search.APIKey)
	out.Alert.WebhookKey = mask(c.Alert.WebhookKey)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
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
