package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Register RegisterConfig `yaml:"register" mapstructure:"register"`
	Products EndpointConfig `yaml:"products" mapstructure:"products"`
	Details  EndpointConfig `yaml:"details" mapstructure:"details"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Bronze   BronzeConfig   `yaml:"bronze" mapstructure:"bronze"`
	QA       QAConfig       `yaml:"qa" mapstructure:"qa"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the structured sink backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegisterConfig configures provider discovery.
type RegisterConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Industry         string `yaml:"industry" mapstructure:"industry"`
	FilterIndustry   string `yaml:"filter_industry" mapstructure:"filter_industry"`
	Version          int    `yaml:"version" mapstructure:"version"`
	FallbackVersions []int  `yaml:"fallback_versions" mapstructure:"fallback_versions"`
}

// Versions returns the register version candidates, preferred first.
func (r RegisterConfig) Versions() []int {
	out := []int{r.Version}
	for _, v := range r.FallbackVersions {
		if v != r.Version {
			out = append(out, v)
		}
	}
	return out
}

// EndpointConfig configures one provider endpoint family: its path and the
// ordered API version candidates (preferred first).
type EndpointConfig struct {
	Path             string `yaml:"path" mapstructure:"path"`
	Version          int    `yaml:"version" mapstructure:"version"`
	FallbackVersions []int  `yaml:"fallback_versions" mapstructure:"fallback_versions"`
}

// Versions returns the candidate list with the preferred version first and
// duplicates removed.
func (e EndpointConfig) Versions() []int {
	out := []int{e.Version}
	for _, v := range e.FallbackVersions {
		if v != e.Version {
			out = append(out, v)
		}
	}
	return out
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs float64 `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerHost float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// CrawlConfig configures the paginated crawl phase.
type CrawlConfig struct {
	MaxPagesPerProvider int  `yaml:"max_pages_per_provider" mapstructure:"max_pages_per_provider"`
	ProviderLimit       int  `yaml:"provider_limit" mapstructure:"provider_limit"`
	Concurrency         int  `yaml:"concurrency" mapstructure:"concurrency"`
	FetchDetails        bool `yaml:"fetch_details" mapstructure:"fetch_details"`
}

// BronzeConfig configures the byte-oriented file sink.
type BronzeConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// QAConfig holds the gate thresholds and external-test settings.
type QAConfig struct {
	MinProvidersOK    int     `yaml:"min_providers_ok" mapstructure:"min_providers_ok"`
	MinProducts       int     `yaml:"min_products" mapstructure:"min_products"`
	MinRateChanges    int     `yaml:"min_rate_changes" mapstructure:"min_rate_changes"`
	MaxFreshnessHours float64 `yaml:"max_freshness_hours" mapstructure:"max_freshness_hours"`
	FailOnDrift       bool    `yaml:"fail_on_drift" mapstructure:"fail_on_drift"`
	RunTransformTests bool    `yaml:"run_transform_tests" mapstructure:"run_transform_tests"`
	TransformTestCmd  string  `yaml:"transform_test_cmd" mapstructure:"transform_test_cmd"`
	TestTimeoutSecs   int     `yaml:"test_timeout_secs" mapstructure:"test_timeout_secs"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("register.base_url", "https://api.register.example.com")
	v.SetDefault("register.industry", "all")
	v.SetDefault("register.filter_industry", "banking")
	v.SetDefault("register.version", 2)
	v.SetDefault("register.fallback_versions", []int{1})

	v.SetDefault("products.path", "/banking/products")
	v.SetDefault("products.version", 4)
	v.SetDefault("products.fallback_versions", []int{3, 2, 1})

	v.SetDefault("details.path", "/banking/products/{productId}")
	v.SetDefault("details.version", 6)
	v.SetDefault("details.fallback_versions", []int{5, 4, 3, 2, 1})

	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_secs", 0.5)
	v.SetDefault("http.user_agent", "catalog-ingest/1.0")
	v.SetDefault("http.rate_per_host", 10)
	v.SetDefault("http.rate_burst", 10)

	v.SetDefault("crawl.max_pages_per_provider", 200)
	v.SetDefault("crawl.provider_limit", 0)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.fetch_details", false)

	v.SetDefault("bronze.dir", "data/bronze")

	v.SetDefault("qa.min_providers_ok", 1)
	v.SetDefault("qa.min_products", 1)
	v.SetDefault("qa.min_rate_changes", 0)
	v.SetDefault("qa.max_freshness_hours", 36.0)
	v.SetDefault("qa.fail_on_drift", false)
	v.SetDefault("qa.run_transform_tests", false)
	v.SetDefault("qa.transform_test_cmd", "dbt test")
	v.SetDefault("qa.test_timeout_secs", 900)

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
