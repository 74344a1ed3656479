package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/icp-resolver/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Scorer  ScorerConfig  `yaml:"scorer" mapstructure:"scorer"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Refdata RefdataConfig `yaml:"refdata" mapstructure:"refdata"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // none, sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// IngestConfig configures how extracts are fetched.
type IngestConfig struct {
	TempDir         string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	HTTPTimeoutSecs int     `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	FTPTimeoutSecs  int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// ScorerConfig holds the ICP factor weights and heuristics. Weights must sum
// to 1.0. Empty keyword lists fall back to the built-in defaults.
type ScorerConfig struct {
	ResimercialWeight  float64 `yaml:"resimercial_weight" mapstructure:"resimercial_weight"`
	CertBreadthWeight  float64 `yaml:"cert_breadth_weight" mapstructure:"cert_breadth_weight"`
	TradeBreadthWeight float64 `yaml:"trade_breadth_weight" mapstructure:"trade_breadth_weight"`
	OMWeight           float64 `yaml:"om_weight" mapstructure:"om_weight"`

	CertSaturation  int `yaml:"cert_saturation" mapstructure:"cert_saturation"`
	TradeSaturation int `yaml:"trade_saturation" mapstructure:"trade_saturation"`
	OMSaturation    int `yaml:"om_saturation" mapstructure:"om_saturation"`

	CommercialKeywords  []string            `yaml:"commercial_keywords" mapstructure:"commercial_keywords"`
	ResidentialKeywords []string            `yaml:"residential_keywords" mapstructure:"residential_keywords"`
	OMKeywords          []string            `yaml:"om_keywords" mapstructure:"om_keywords"`
	TradeKeywords       map[string][]string `yaml:"trade_keywords" mapstructure:"trade_keywords"`
}

// ExportConfig configures the CSV views.
type ExportConfig struct {
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
	Views     []string `yaml:"views" mapstructure:"views"`
	MinTier   string   `yaml:"min_tier" mapstructure:"min_tier"`
	Prefix    string   `yaml:"prefix" mapstructure:"prefix"`
}

// RefdataConfig points at optional YAML reference tables.
type RefdataConfig struct {
	OriginsPath       string `yaml:"origins_path" mapstructure:"origins_path"`
	StatePriorityPath string `yaml:"state_priority_path" mapstructure:"state_priority_path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	ScoreWorkers int `yaml:"score_workers" mapstructure:"score_workers"`
}

// ServerConfig configures the HTTP tool surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
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
	v.SetEnvPrefix("ICP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "icp-resolver.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("batch.score_workers", 4)
	v.SetDefault("ingest.temp_dir", "/tmp/icp-resolver")
	v.SetDefault("ingest.http_timeout_secs", 60)
	v.SetDefault("ingest.rate_limit", 2.0)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.ftp_timeout_secs", 30)
	v.SetDefault("ingest.user_agent", "icp-resolver/1.0")
	v.SetDefault("scorer.resimercial_weight", 0.35)
	v.SetDefault("scorer.cert_breadth_weight", 0.25)
	v.SetDefault("scorer.trade_breadth_weight", 0.25)
	v.SetDefault("scorer.om_weight", 0.15)
	v.SetDefault("scorer.cert_saturation", 3)
	v.SetDefault("scorer.trade_saturation", 3)
	v.SetDefault("scorer.om_saturation", 2)
	v.SetDefault("export.output_dir", "output")
	v.SetDefault("export.views", []string{"grandmaster", "crossover", "scored", "srec"})

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

// knownViews are the export views the exporter can render.
var knownViews = map[string]bool{
	"grandmaster": true,
	"crossover":   true,
	"scored":      true,
	"srec":        true,
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve":
		if len(c.Export.Views) == 0 {
			errs = append(errs, "export.views must name at least one view")
		}
		for _, v := range c.Export.Views {
			if !knownViews[v] {
				errs = append(errs, fmt.Sprintf("export.views: unknown view %q", v))
			}
		}
		if c.Export.OutputDir == "" {
			errs = append(errs, "export.output_dir is required")
		}
		if c.Export.MinTier != "" {
			if _, ok := model.ParseTier(c.Export.MinTier); !ok {
				errs = append(errs, fmt.Sprintf("export.min_tier: unknown tier %q", c.Export.MinTier))
			}
		}
		errs = append(errs, c.validateStore(false)...)
	case "runs":
		errs = append(errs, c.validateStore(true)...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateStore(false)...)
	case "normalize":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.ScoreWorkers < 1 || c.Batch.ScoreWorkers > 64 {
		errs = append(errs, "batch.score_workers must be between 1 and 64")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(required bool) []string {
	var errs []string
	switch c.Store.Driver {
	case "", "none":
		if required {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver: unknown driver %q", c.Store.Driver))
	}
	return errs
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
