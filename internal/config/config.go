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
	Artifacts   ArtifactsConfig   `yaml:"artifacts" mapstructure:"artifacts"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Randomness  RandomnessConfig  `yaml:"randomness" mapstructure:"randomness"`
	Computation ComputationConfig `yaml:"computation" mapstructure:"computation"`
	Analysis    AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// ArtifactsConfig configures where provenance-wrapped results land.
type ArtifactsConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// CatalogConfig configures the sqlite audit catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RandomnessConfig configures the process-wide randomness policy.
type RandomnessConfig struct {
	// Mode is the default randomness mode at startup: forbidden, seeded or
	// unrestricted. Forbidden is the most restrictive and the default.
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// ComputationConfig configures the computation-status policy.
type ComputationConfig struct {
	// Strict turns any simulated sub-result into a fatal error.
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// AnalysisConfig configures the bootstrap analysis stage.
type AnalysisConfig struct {
	MinSamples int `yaml:"min_samples" mapstructure:"min_samples"`
	Iterations int `yaml:"iterations" mapstructure:"iterations"`
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
	v.SetEnvPrefix("REPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("artifacts.root", "./artifacts")
	v.SetDefault("catalog.path", "./artifacts/audit.db")
	v.SetDefault("randomness.mode", "forbidden")
	v.SetDefault("computation.strict", false)
	v.SetDefault("analysis.min_samples", 8)
	v.SetDefault("analysis.iterations", 1000)
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
