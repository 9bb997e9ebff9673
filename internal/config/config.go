// Package config loads application configuration from config.yaml and
// FACULTY_-prefixed environment variables, and wires the global logger.
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
	Store        StoreConfig      `yaml:"store" mapstructure:"store"`
	OpenAlex     OpenAlexConfig   `yaml:"openalex" mapstructure:"openalex"`
	Brave        BraveConfig      `yaml:"brave" mapstructure:"brave"`
	ORCID        ORCIDConfig      `yaml:"orcid" mapstructure:"orcid"`
	Scrape       ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Pipeline     PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server       ServerConfig     `yaml:"server" mapstructure:"server"`
	Log          LogConfig        `yaml:"log" mapstructure:"log"`
	Institutions InstitutionsFile `yaml:"institutions" mapstructure:"institutions"`
}

// StoreConfig configures the checkpoint backend.
type StoreConfig struct {
	// Driver is sqlite, postgres, or file.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the sqlite database file or the checkpoint directory for the
	// file driver.
	Path string `yaml:"path" mapstructure:"path"`
}

// OpenAlexConfig holds OpenAlex API settings. ContactEmail is required:
// OpenAlex routes identified clients to its polite pool.
type OpenAlexConfig struct {
	ContactEmail string `yaml:"contact_email" mapstructure:"contact_email"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	PageSize     int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages     int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// BraveConfig holds Brave search API settings.
type BraveConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ORCIDConfig holds ORCID public API settings.
type ORCIDConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ScrapeConfig configures the HTTP scraping client.
type ScrapeConfig struct {
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	HostRPS       float64 `yaml:"host_rps" mapstructure:"host_rps"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RespectRobots bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxBodyKB     int     `yaml:"max_body_kb" mapstructure:"max_body_kb"`
}

// Timeout returns the scrape timeout as a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PipelineConfig tunes phase behavior.
type PipelineConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	MaxFaculty        int     `yaml:"max_faculty" mapstructure:"max_faculty"`
	MinHIndex         int     `yaml:"min_h_index" mapstructure:"min_h_index"`
	MinWorks          int     `yaml:"min_works" mapstructure:"min_works"`
	MaxAffiliations   int     `yaml:"max_affiliations" mapstructure:"max_affiliations"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	MaxContactPages   int     `yaml:"max_contact_pages" mapstructure:"max_contact_pages"`
	HighValueHIndex   int     `yaml:"high_value_h_index" mapstructure:"high_value_h_index"`
	MediumValueHIndex int     `yaml:"medium_value_h_index" mapstructure:"medium_value_h_index"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml from the working directory (optional) and applies
// FACULTY_-prefixed environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FACULTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "faculty.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.page_size", 200)
	v.SetDefault("openalex.max_pages", 100)
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("brave.rps", 1.6)
	v.SetDefault("orcid.base_url", "https://pub.orcid.org/v3.0")
	v.SetDefault("orcid.rps", 5.0)
	v.SetDefault("scrape.user_agent", "faculty-pipeline/1.0")
	v.SetDefault("scrape.host_rps", 3.0)
	v.SetDefault("scrape.timeout_secs", 20)
	v.SetDefault("scrape.respect_robots", true)
	v.SetDefault("scrape.max_body_kb", 4096)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.min_h_index", 10)
	v.SetDefault("pipeline.min_works", 30)
	v.SetDefault("pipeline.max_affiliations", 15)
	v.SetDefault("pipeline.fuzzy_threshold", 0.85)
	v.SetDefault("pipeline.max_contact_pages", 7)
	v.SetDefault("pipeline.high_value_h_index", 40)
	v.SetDefault("pipeline.medium_value_h_index", 20)

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

// InitLogger builds the global zap logger from config.
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
