package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/gwr-cli/internal/gwr"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Render RenderConfig `yaml:"render" mapstructure:"render"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input shapefile.
type DataConfig struct {
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	File    string `yaml:"file" mapstructure:"file"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// ModelConfig configures the regression and bandwidth search.
type ModelConfig struct {
	Dependent     string   `yaml:"dependent" mapstructure:"dependent"`
	Independent   []string `yaml:"independent" mapstructure:"independent"`
	Kernel        string   `yaml:"kernel" mapstructure:"kernel"`
	Fixed         bool     `yaml:"fixed" mapstructure:"fixed"`
	Criterion     string   `yaml:"criterion" mapstructure:"criterion"`
	Search        string   `yaml:"search" mapstructure:"search"`
	BWMin         float64  `yaml:"bw_min" mapstructure:"bw_min"`
	BWMax         float64  `yaml:"bw_max" mapstructure:"bw_max"`
	Interval      float64  `yaml:"interval" mapstructure:"interval"`
	Tolerance     float64  `yaml:"tolerance" mapstructure:"tolerance"`
	MaxIter       int      `yaml:"max_iter" mapstructure:"max_iter"`
	Spherical     bool     `yaml:"spherical" mapstructure:"spherical"`
	RankDeficient string   `yaml:"rank_deficient" mapstructure:"rank_deficient"`
	Alpha         float64  `yaml:"alpha" mapstructure:"alpha"`
}

// RenderConfig configures map rendering.
type RenderConfig struct {
	OutputDir string  `yaml:"output_dir" mapstructure:"output_dir"`
	WidthIn   float64 `yaml:"width_in" mapstructure:"width_in"`
	HeightIn  float64 `yaml:"height_in" mapstructure:"height_in"`
	DPI       int     `yaml:"dpi" mapstructure:"dpi"`
}

// FetchConfig configures remote dataset downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the map server.
type ServerConfig struct {
	Port         int `yaml:"port" mapstructure:"port"`
	CacheEntries int `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultIndependent lists the socioeconomic predictors in coefficient order.
var DefaultIndependent = []string{"income_pc", "poverty", "unemployed", "without_hs", "harship_in"}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GWR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.base_dir", "")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.file", "airbnb_Chicago 2015.shp")
	v.SetDefault("data.url", "")
	v.SetDefault("model.dependent", "num_crimes")
	v.SetDefault("model.independent", DefaultIndependent)
	v.SetDefault("model.kernel", "bisquare")
	v.SetDefault("model.fixed", false)
	v.SetDefault("model.criterion", "AICc")
	v.SetDefault("model.search", "golden_section")
	v.SetDefault("model.bw_min", 0.0)
	v.SetDefault("model.bw_max", 0.0)
	v.SetDefault("model.interval", 0.0)
	v.SetDefault("model.tolerance", 1.0e-6)
	v.SetDefault("model.max_iter", 200)
	v.SetDefault("model.spherical", false)
	v.SetDefault("model.rank_deficient", "error")
	v.SetDefault("model.alpha", 0.05)
	v.SetDefault("render.output_dir", "maps")
	v.SetDefault("render.width_in", 10.0)
	v.SetDefault("render.height_in", 8.0)
	v.SetDefault("render.dpi", 96)
	v.SetDefault("fetch.user_agent", "gwr-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_entries", 32)
	v.SetDefault("server.cache_ttl_secs", 900)
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

	// A comma-separated env value arrives as a single element.
	if len(cfg.Model.Independent) == 1 && strings.Contains(cfg.Model.Independent[0], ",") {
		cfg.Model.Independent = splitList(cfg.Model.Independent[0])
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode:
// "run", "bandwidth", "serve", "fetch" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "bandwidth", "serve":
		errs = append(errs, c.validateModel()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "fetch":
		if c.Data.URL == "" {
			errs = append(errs, "data.url is required")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if !slices.Contains([]string{"none", "sqlite", "postgres"}, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateModel() []string {
	var errs []string
	m := c.Model
	if m.Dependent == "" {
		errs = append(errs, "model.dependent is required")
	}
	if len(m.Independent) == 0 {
		errs = append(errs, "model.independent must list at least one column")
	}
	// Names are accepted in any case and stored in canonical form.
	if k, err := gwr.ParseKernel(m.Kernel); err != nil {
		errs = append(errs, fmt.Sprintf("unknown kernel %q", m.Kernel))
	} else {
		c.Model.Kernel = string(k)
	}
	if cr, err := gwr.ParseCriterion(m.Criterion); err != nil {
		errs = append(errs, fmt.Sprintf("unknown criterion %q", m.Criterion))
	} else {
		c.Model.Criterion = string(cr)
	}
	search, err := gwr.ParseSearchMethod(m.Search)
	if err != nil {
		errs = append(errs, fmt.Sprintf("unknown search method %q", m.Search))
	} else {
		c.Model.Search = string(search)
	}
	if !slices.Contains([]string{"error", "pinv"}, m.RankDeficient) {
		errs = append(errs, fmt.Sprintf("unknown rank_deficient policy %q", m.RankDeficient))
	}
	if m.BWMin < 0 || m.BWMax < 0 {
		errs = append(errs, "model.bw_min and model.bw_max must be >= 0")
	}
	if m.BWMin > 0 && m.BWMax > 0 && m.BWMin > m.BWMax {
		errs = append(errs, fmt.Sprintf("model.bw_min %g exceeds model.bw_max %g", m.BWMin, m.BWMax))
	}
	if search == gwr.Interval && m.Interval <= 0 {
		errs = append(errs, "model.interval must be > 0 for interval search")
	}
	if m.Alpha <= 0 || m.Alpha >= 1 {
		errs = append(errs, "model.alpha must be between 0 and 1")
	}
	return errs
}

// DataPath resolves the input shapefile. Relative paths are anchored at
// data.base_dir, or at the directory of the running executable when unset.
func (c *Config) DataPath() (string, error) {
	p := filepath.Join(c.Data.Dir, c.Data.File)
	if filepath.IsAbs(p) {
		return p, nil
	}
	base := c.Data.BaseDir
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", eris.Wrap(err, "config: locate executable")
		}
		base = filepath.Dir(exe)
	}
	return filepath.Join(base, p), nil
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
