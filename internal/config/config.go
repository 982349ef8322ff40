// Package config loads service settings from defaults, an optional config.yaml,
// a .env file and FISHMATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Brownie44l1/fishmate-api/internal/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "FISHMATE"

type Settings struct {
	Server   Server   `mapstructure:"server"`
	Model    Model    `mapstructure:"model"`
	Mock     Mock     `mapstructure:"mock"`
	Zones    Zones    `mapstructure:"zones"`
	Datasets Datasets `mapstructure:"datasets"`
	Log      Log      `mapstructure:"log"`
}

type Server struct {
	Port        string   `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type Model struct {
	Path           string   `mapstructure:"path"`
	MetadataPath   string   `mapstructure:"metadata_path"`
	RuntimeLibrary string   `mapstructure:"runtime_library"`
	ImageSize      int      `mapstructure:"image_size"`
	MaxPixels      int      `mapstructure:"max_pixels"`
	TopK           int      `mapstructure:"top_k"`
	Labels         []string `mapstructure:"labels"`
}

type Mock struct {
	Latency time.Duration       `mapstructure:"latency"`
	Species []model.MockSpecies `mapstructure:"species"`
}

type Zones struct {
	DefaultK     int `mapstructure:"default_k"`
	Seed         int `mapstructure:"seed"`
	NInit        int `mapstructure:"n_init"`
	MaxIter      int `mapstructure:"max_iter"`
	HeatmapLimit int `mapstructure:"heatmap_limit"`
}

type Datasets struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads settings. configFile may be empty, in which case config.yaml is
// looked up in the working directory and ./config; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// PORT is what most hosting platforms set.
	if port := os.Getenv("PORT"); port != "" && !v.InConfig("server.port") && os.Getenv(envPrefix+"_SERVER_PORT") == "" {
		v.Set("server.port", port)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Validate rejects settings the service cannot run with.
func (s *Settings) Validate() error {
	if s.Model.ImageSize <= 0 {
		return fmt.Errorf("model.image_size must be positive, got %d", s.Model.ImageSize)
	}
	if s.Model.TopK <= 0 {
		return fmt.Errorf("model.top_k must be positive, got %d", s.Model.TopK)
	}
	if s.Model.MaxPixels <= 0 {
		return fmt.Errorf("model.max_pixels must be positive, got %d", s.Model.MaxPixels)
	}
	if s.Datasets.MaxEntries <= 0 {
		return fmt.Errorf("datasets.max_entries must be positive, got %d", s.Datasets.MaxEntries)
	}
	if s.Zones.DefaultK <= 0 {
		return fmt.Errorf("zones.default_k must be positive, got %d", s.Zones.DefaultK)
	}
	for _, sp := range s.Mock.Species {
		if sp.Name == "" {
			return errors.New("mock.species entries need a name")
		}
		if sp.Min < 0 || sp.Max > 1 || sp.Min > sp.Max {
			return fmt.Errorf("mock species %q: range [%v, %v] must lie within [0, 1]", sp.Name, sp.Min, sp.Max)
		}
	}
	return nil
}
