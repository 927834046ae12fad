package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/densitymap/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB     int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit       float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // analyses per second, 0 = unlimited
	RateBurst       int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	TempDir         string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	ShutdownSecs    int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	ReadTimeoutSecs int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
}

// AnalysisConfig configures point generation and density aggregation.
type AnalysisConfig struct {
	SampleSize    int          `yaml:"sample_size" mapstructure:"sample_size"`
	Seed          uint64       `yaml:"seed" mapstructure:"seed"`
	DefaultBounds model.Bounds `yaml:"default_bounds" mapstructure:"default_bounds"`
	AreaDivisor   float64      `yaml:"area_divisor" mapstructure:"area_divisor"`
	DensityScale  float64      `yaml:"density_scale" mapstructure:"density_scale"`
	TopN          int          `yaml:"top_n" mapstructure:"top_n"`
	PreviewRows   int          `yaml:"preview_rows" mapstructure:"preview_rows"`
	Index         string       `yaml:"index" mapstructure:"index"`
	Charset       string       `yaml:"charset" mapstructure:"charset"` // DBF code page override
}

// MapConfig configures the rendered Leaflet map.
type MapConfig struct {
	Title           string  `yaml:"title" mapstructure:"title"`
	CenterLat       float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon       float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom            int     `yaml:"zoom" mapstructure:"zoom"`
	TileURL         string  `yaml:"tile_url" mapstructure:"tile_url"`
	TileAttribution string  `yaml:"tile_attribution" mapstructure:"tile_attribution"`
	TooltipLabel    string  `yaml:"tooltip_label" mapstructure:"tooltip_label"`
	LeafletURL      string  `yaml:"leaflet_url" mapstructure:"leaflet_url"`
	ClusterURL      string  `yaml:"cluster_url" mapstructure:"cluster_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// an optional config.yaml in the working directory; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("DENSITYMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.temp_dir", "")
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("server.read_timeout_secs", 60)
	v.SetDefault("analysis.sample_size", 100)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.default_bounds.minx", -80.0)
	v.SetDefault("analysis.default_bounds.miny", -5.0)
	v.SetDefault("analysis.default_bounds.maxx", -66.0)
	v.SetDefault("analysis.default_bounds.maxy", 13.0)
	v.SetDefault("analysis.area_divisor", 1e6)
	v.SetDefault("analysis.density_scale", 1000.0)
	v.SetDefault("analysis.top_n", 5)
	v.SetDefault("analysis.preview_rows", 5)
	v.SetDefault("analysis.index", "none")
	v.SetDefault("analysis.charset", "")
	v.SetDefault("map.title", "Mapa temático: Densidad de puntos")
	v.SetDefault("map.center_lat", 5.0)
	v.SetDefault("map.center_lon", -74.0)
	v.SetDefault("map.zoom", 5)
	v.SetDefault("map.tile_url", "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png")
	v.SetDefault("map.tile_attribution", `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`)
	v.SetDefault("map.tooltip_label", "Densidad")
	v.SetDefault("map.leaflet_url", "https://unpkg.com/leaflet@1.9.4/dist")
	v.SetDefault("map.cluster_url", "https://unpkg.com/leaflet.markercluster@1.5.3/dist")

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

// Validate checks the settings a command needs. mode is "analyze" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "analyze":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxUploadMB <= 0 {
			problems = append(problems, "server.max_upload_mb must be > 0")
		}
		if c.Server.RateLimit < 0 {
			problems = append(problems, "server.rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be >= 1 when rate_limit is set")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	a := c.Analysis
	if a.SampleSize < 0 {
		problems = append(problems, "analysis.sample_size must be >= 0")
	}
	if !(a.AreaDivisor > 0) {
		problems = append(problems, "analysis.area_divisor must be > 0")
	}
	if !(a.DensityScale > 0) {
		problems = append(problems, "analysis.density_scale must be > 0")
	}
	if a.TopN < 0 || a.PreviewRows < 0 {
		problems = append(problems, "analysis.top_n and analysis.preview_rows must be >= 0")
	}
	if !a.DefaultBounds.Valid() {
		problems = append(problems, "analysis.default_bounds must be finite with min <= max")
	}
	switch a.Index {
	case "", "none", "rtree":
	default:
		problems = append(problems, fmt.Sprintf("analysis.index must be none or rtree, got %q", a.Index))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
