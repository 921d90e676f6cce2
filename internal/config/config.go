package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CELLAR"

	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "cellar.db"
	defaultLogLevel          = "info"
	defaultHookIssuer        = "cellar-content"
	defaultHookAudience      = "cellar-api"
	defaultHookTTLMinutes    = 60
	defaultPrimaryLocale     = "sl"
	defaultSecondaryLocale   = "en"
	defaultPollIntervalMS    = 1000
	defaultMaxAttempts       = 5
	defaultRetryDelaySeconds = 30
	defaultPerStrategyLimit  = 6
	defaultMaxTotal          = 12
	defaultBatchSize         = 10
	defaultPriceMinPct       = 0.8
	defaultPriceMaxPct       = 1.2
)

// AppConfig captures runtime configuration for the API server, the worker and
// the batch commands.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	HookSigningSecret string
	HookIssuer        string
	HookAudience      string
	HookTokenTTL      time.Duration

	PrimaryLocale   string
	SecondaryLocale string

	WorkerPollInterval time.Duration
	WorkerMaxAttempts  int
	WorkerRetryDelay   time.Duration

	Related RelatedConfig
}

// RelatedConfig holds the limits of the related-item engine.
type RelatedConfig struct {
	PerStrategyLimit int
	MaxTotal         int
	BatchSize        int
	PriceMinPct      float64
	PriceMaxPct      float64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("hooks.issuer", defaultHookIssuer)
	configViper.SetDefault("hooks.audience", defaultHookAudience)
	configViper.SetDefault("hooks.token_ttl_minutes", defaultHookTTLMinutes)

	configViper.SetDefault("locale.primary", defaultPrimaryLocale)
	configViper.SetDefault("locale.secondary", defaultSecondaryLocale)

	configViper.SetDefault("worker.poll_interval_ms", defaultPollIntervalMS)
	configViper.SetDefault("worker.max_attempts", defaultMaxAttempts)
	configViper.SetDefault("worker.retry_delay_seconds", defaultRetryDelaySeconds)

	configViper.SetDefault("related.per_strategy_limit", defaultPerStrategyLimit)
	configViper.SetDefault("related.max_total", defaultMaxTotal)
	configViper.SetDefault("related.batch_size", defaultBatchSize)
	configViper.SetDefault("related.price_min_pct", defaultPriceMinPct)
	configViper.SetDefault("related.price_max_pct", defaultPriceMaxPct)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),

		HookSigningSecret: configViper.GetString("hooks.signing_secret"),
		HookIssuer:        configViper.GetString("hooks.issuer"),
		HookAudience:      configViper.GetString("hooks.audience"),
		HookTokenTTL:      time.Duration(configViper.GetInt("hooks.token_ttl_minutes")) * time.Minute,

		PrimaryLocale:   strings.TrimSpace(configViper.GetString("locale.primary")),
		SecondaryLocale: strings.TrimSpace(configViper.GetString("locale.secondary")),

		WorkerPollInterval: time.Duration(configViper.GetInt("worker.poll_interval_ms")) * time.Millisecond,
		WorkerMaxAttempts:  configViper.GetInt("worker.max_attempts"),
		WorkerRetryDelay:   time.Duration(configViper.GetInt("worker.retry_delay_seconds")) * time.Second,

		Related: RelatedConfig{
			PerStrategyLimit: configViper.GetInt("related.per_strategy_limit"),
			MaxTotal:         configViper.GetInt("related.max_total"),
			BatchSize:        configViper.GetInt("related.batch_size"),
			PriceMinPct:      configViper.GetFloat64("related.price_min_pct"),
			PriceMaxPct:      configViper.GetFloat64("related.price_max_pct"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HookSigningSecret) == "" {
		return fmt.Errorf("hooks.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HookIssuer) == "" {
		return fmt.Errorf("hooks.issuer is required")
	}
	if strings.TrimSpace(c.HookAudience) == "" {
		return fmt.Errorf("hooks.audience is required")
	}
	if c.HookTokenTTL <= 0 {
		return fmt.Errorf("hooks.token_ttl_minutes must be positive")
	}
	if c.PrimaryLocale == "" || c.SecondaryLocale == "" {
		return fmt.Errorf("locale.primary and locale.secondary are required")
	}
	if strings.EqualFold(c.PrimaryLocale, c.SecondaryLocale) {
		return fmt.Errorf("locale.secondary must differ from locale.primary")
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval_ms must be positive")
	}
	if c.WorkerMaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}
	if c.WorkerRetryDelay < 0 {
		return fmt.Errorf("worker.retry_delay_seconds must not be negative")
	}
	return c.Related.validate()
}

func (r RelatedConfig) validate() error {
	if r.PerStrategyLimit <= 0 {
		return fmt.Errorf("related.per_strategy_limit must be positive")
	}
	if r.MaxTotal <= 0 {
		return fmt.Errorf("related.max_total must be positive")
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("related.batch_size must be positive")
	}
	if r.PriceMinPct <= 0 || r.PriceMinPct > 1 {
		return fmt.Errorf("related.price_min_pct must be in (0, 1], got %v", r.PriceMinPct)
	}
	if r.PriceMaxPct < 1 {
		return fmt.Errorf("related.price_max_pct must be at least 1, got %v", r.PriceMaxPct)
	}
	return nil
}
