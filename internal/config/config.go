package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	Steam     SteamConfig     `yaml:"steam" mapstructure:"steam"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReferenceConfig locates the developer-to-country dataset.
type ReferenceConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	HasHeader bool   `yaml:"has_header" mapstructure:"has_header"`
}

// MatcherConfig tunes name resolution.
type MatcherConfig struct {
	MinScore             float64  `yaml:"min_score" mapstructure:"min_score"`
	ExtraLegalSuffixes   []string `yaml:"extra_legal_suffixes" mapstructure:"extra_legal_suffixes"`
	ExtraGenericTrailing []string `yaml:"extra_generic_trailing" mapstructure:"extra_generic_trailing"`
}

// SteamConfig holds Steam Web API and store API settings.
type SteamConfig struct {
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	APIBaseURL    string  `yaml:"api_base_url" mapstructure:"api_base_url"`
	StoreBaseURL  string  `yaml:"store_base_url" mapstructure:"store_base_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	CooldownSecs  int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// CacheConfig configures where fetched store documents are persisted.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("DEVMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("steam.api_key", "DEVMAP_STEAM_API_KEY", "STEAM_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind steam api key")
	}

	// Defaults
	v.SetDefault("reference.path", "assets/businesses_with_iso2.csv")
	v.SetDefault("reference.has_header", false)
	v.SetDefault("matcher.min_score", 0.5)
	v.SetDefault("matcher.extra_legal_suffixes", []string{})
	v.SetDefault("matcher.extra_generic_trailing", []string{})
	v.SetDefault("steam.api_base_url", "https://api.steampowered.com/")
	v.SetDefault("steam.store_base_url", "https://store.steampowered.com/api/")
	v.SetDefault("steam.timeout_secs", 30)
	v.SetDefault("steam.max_retries", 3)
	v.SetDefault("steam.cooldown_secs", 60)
	v.SetDefault("steam.max_concurrent", 4)
	v.SetDefault("steam.rate_per_sec", 5.0)
	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.dir", ".cache/steam")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks that the settings a command mode depends on are present.
// Modes: "serve", "library", "resolve", "audit".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Matcher.MinScore <= 0 || c.Matcher.MinScore > 1 {
		errs = append(errs, fmt.Sprintf("matcher.min_score must be in (0, 1], got %g", c.Matcher.MinScore))
	}
	if c.Reference.Path == "" {
		errs = append(errs, "reference.path is required")
	}

	switch mode {
	case "serve", "library":
		switch c.Cache.Driver {
		case "file", "sqlite":
		case "postgres":
			if c.Cache.DatabaseURL == "" {
				errs = append(errs, "cache.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("unsupported cache.driver %q", c.Cache.Driver))
		}
		if c.Steam.MaxConcurrent < 1 || c.Steam.MaxConcurrent > 32 {
			errs = append(errs, "steam.max_concurrent must be between 1 and 32")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "library" && c.Steam.APIKey == "" {
			errs = append(errs, "steam.api_key is required (STEAM_API_KEY)")
		}
	case "resolve", "audit":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
