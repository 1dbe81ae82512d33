// Package config provides configuration loading for schelling.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/schelling/internal/population"
)

// Population kinds.
const (
	KindLikesSame   = "likes-same"
	KindLikesOthers = "likes-others"
	KindAges        = "ages"
	KindClustered   = "clustered"
)

// Config contains all schelling configuration settings.
type Config struct {
	Grid       GridConfig       `json:"grid" yaml:"grid"`
	Population PopulationConfig `json:"population" yaml:"population"`
	Run        RunConfig        `json:"run" yaml:"run"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	API        APIConfig        `json:"api" yaml:"api"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// GridConfig sets the torus size and how far agents look.
type GridConfig struct {
	Dimension  int `json:"dimension" yaml:"dimension"`
	ViewRadius int `json:"view_radius" yaml:"view_radius"`
}

// PopulationConfig describes how the grid is filled before the first tick.
type PopulationConfig struct {
	// Kind is one of "likes-same", "likes-others", "ages" or "clustered".
	Kind       string  `json:"kind" yaml:"kind"`
	Preference float64 `json:"preference" yaml:"preference"`

	// Two-type populations.
	TypeA  string  `json:"type_a" yaml:"type_a"`
	TypeB  string  `json:"type_b" yaml:"type_b"`
	SplitA float64 `json:"split_a" yaml:"split_a"`
	SplitB float64 `json:"split_b" yaml:"split_b"`

	// Age populations.
	Populated  float64 `json:"populated" yaml:"populated"`
	AgeAverage float64 `json:"age_average" yaml:"age_average"`
	AgeMin     float64 `json:"age_min" yaml:"age_min"`
	AgeMax     float64 `json:"age_max" yaml:"age_max"`
	AgeSpread  float64 `json:"age_spread" yaml:"age_spread"`

	// Clustered populations.
	NoiseScale float64 `json:"noise_scale" yaml:"noise_scale"`
	NoiseBias  float64 `json:"noise_bias" yaml:"noise_bias"`
}

// RunConfig controls the run loop.
type RunConfig struct {
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`
	// Seed drives population and movement randomness. 0 picks a random seed.
	Seed     int64         `json:"seed" yaml:"seed"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	// RandomOrgKey, when set, draws random seeds from random.org.
	RandomOrgKey string `json:"-" yaml:"random_org_key,omitempty"`
}

// StorageConfig locates the run database.
type StorageConfig struct {
	DB string `json:"db" yaml:"db"`
}

// APIConfig configures the observation server.
type APIConfig struct {
	Port     int    `json:"port" yaml:"port"`
	AdminKey string `json:"-" yaml:"admin_key,omitempty"`
	// Browser origins allowed to call the API cross-site.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// LoggingConfig configures log verbosity: "info" (default), "debug" or "trace".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the classic X/O setup on a 50x50 torus.
func Default() *Config {
	split := population.DefaultSplitConfig(50)
	ages := population.DefaultAgeConfig(50)
	cluster := population.DefaultClusterConfig(50)
	return &Config{
		Grid: GridConfig{
			Dimension:  50,
			ViewRadius: split.ViewRadius,
		},
		Population: PopulationConfig{
			Kind:       KindLikesSame,
			Preference: split.Preference,
			TypeA:      split.TypeA,
			TypeB:      split.TypeB,
			SplitA:     split.SplitA,
			SplitB:     split.SplitB,
			Populated:  ages.Populated,
			AgeAverage: ages.Average,
			AgeMin:     ages.Min,
			AgeMax:     ages.Max,
			AgeSpread:  ages.Spread,
			NoiseScale: cluster.Scale,
			NoiseBias:  cluster.Bias,
		},
		Run: RunConfig{
			MaxTicks: 30,
			Interval: 200 * time.Millisecond,
		},
		Storage: StorageConfig{
			DB: "schelling.db",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults, overlaid with path when it is non-empty, then
// with environment variables.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Unset keys
// keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.API.AdminKey = os.ExpandEnv(config.API.AdminKey)
	config.Run.RandomOrgKey = os.ExpandEnv(config.Run.RandomOrgKey)
	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Grid.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Grid.Dimension)
	}
	if c.Grid.ViewRadius < 0 {
		return fmt.Errorf("view_radius must be non-negative, got %d", c.Grid.ViewRadius)
	}
	if c.Population.Preference < 0 || c.Population.Preference > 1 {
		return fmt.Errorf("preference must be between 0 and 1, got %f", c.Population.Preference)
	}
	if c.Run.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be non-negative, got %d", c.Run.MaxTicks)
	}
	if c.Run.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %v", c.Run.Interval)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.API.Port)
	}

	var err error
	switch c.Population.Kind {
	case KindLikesSame, KindLikesOthers:
		err = c.Split().Validate()
	case KindAges:
		err = c.Ages().Validate()
	case KindClustered:
		err = c.Clustered().Validate()
	default:
		return fmt.Errorf("invalid population kind: %s (valid: %s, %s, %s, %s)",
			c.Population.Kind, KindLikesSame, KindLikesOthers, KindAges, KindClustered)
	}
	if err != nil {
		return fmt.Errorf("population: %w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// Split returns the two-type population settings.
func (c *Config) Split() population.SplitConfig {
	p := c.Population
	return population.SplitConfig{
		Dimension:  c.Grid.Dimension,
		Preference: p.Preference,
		TypeA:      p.TypeA,
		TypeB:      p.TypeB,
		SplitA:     p.SplitA,
		SplitB:     p.SplitB,
		ViewRadius: c.Grid.ViewRadius,
	}
}

// Ages returns the age population settings.
func (c *Config) Ages() population.AgeConfig {
	p := c.Population
	return population.AgeConfig{
		Dimension:  c.Grid.Dimension,
		Populated:  p.Populated,
		Preference: p.Preference,
		Average:    p.AgeAverage,
		Min:        p.AgeMin,
		Max:        p.AgeMax,
		Spread:     p.AgeSpread,
		ViewRadius: c.Grid.ViewRadius,
	}
}

// Clustered returns the noise-clustered population settings.
func (c *Config) Clustered() population.ClusterConfig {
	cfg := population.DefaultClusterConfig(c.Grid.Dimension)
	cfg.SplitConfig = c.Split()
	cfg.Scale = c.Population.NoiseScale
	cfg.Bias = c.Population.NoiseBias
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SCHELLING_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Run.Seed = n
		}
	}
	if v := os.Getenv("SCHELLING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Grid.Dimension = n
		}
	}
	if v := os.Getenv("SCHELLING_MAX_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.MaxTicks = n
		}
	}
	if v := os.Getenv("SCHELLING_DB"); v != "" {
		config.Storage.DB = v
	}
	if v := os.Getenv("SCHELLING_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SCHELLING_ADMIN_KEY"); v != "" {
		config.API.AdminKey = v
	}
	if v := os.Getenv("SCHELLING_CORS_ORIGINS"); v != "" {
		config.API.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.API.CORSOrigins = append(config.API.CORSOrigins, origin)
			}
		}
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		config.Run.RandomOrgKey = v
	}
}
