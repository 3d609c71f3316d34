package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds accepted by the loader.
const (
	SourceCSV    = "csv"
	SourceGCS    = "gcs"
	SourceSQLite = "sqlite"
)

// Config is the full service configuration. Values come from the YAML
// file (if present), then XPJ_* environment variables, then flags set
// by the CLI layer.
type Config struct {
	Server   Server   `yaml:"server"`
	Source   Source   `yaml:"source"`
	Windows  Windows  `yaml:"windows"`
	Pipeline Pipeline `yaml:"pipeline"`
	Checks   Checks   `yaml:"checks"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Source selects where the raw event table comes from.
type Source struct {
	Kind            string `yaml:"kind"`
	Path            string `yaml:"path"`             // csv and sqlite
	Bucket          string `yaml:"bucket"`           // gcs
	Object          string `yaml:"object"`           // gcs
	CredentialsFile string `yaml:"credentials_file"` // gcs, optional
}

// Windows carries the attribution windows. They are deliberately an
// external parameter: observed deployments ran anywhere from 81 minutes
// to a day for product attribution and 210 minutes to a day for search.
type Windows struct {
	Product Duration `yaml:"product"`
	Search  Duration `yaml:"search"`
}

type Pipeline struct {
	Mode            string `yaml:"mode"` // "standard" or "sequential"
	ExcludeCheckout bool   `yaml:"exclude_checkout"`
	SameDay         bool   `yaml:"same_day"`
}

type Checks struct {
	Alpha             float64 `yaml:"alpha"`
	Power             float64 `yaml:"power"`
	GofEffectSize     float64 `yaml:"gof_effect_size"`
	TwoPropEffectSize float64 `yaml:"two_prop_effect_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{Port: 8080},
		Source: Source{Kind: SourceCSV, Path: "./data/experiments_dataset.csv"},
		Windows: Windows{
			Product: Duration(4 * time.Hour),
			Search:  Duration(8 * time.Hour),
		},
		Pipeline: Pipeline{Mode: "standard"},
		Checks: Checks{
			Alpha:             0.05,
			Power:             0.8,
			GofEffectSize:     0.1,
			TwoPropEffectSize: 0.2,
		},
	}
}

// Load reads the YAML file at path into the defaults and applies
// environment overrides. An empty path skips the file entirely; a
// missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("XPJ_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("XPJ_SOURCE"); v != "" {
		c.Source.Kind = v
	}
	if v := os.Getenv("XPJ_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("XPJ_GCS_BUCKET"); v != "" {
		c.Source.Bucket = v
	}
	if v := os.Getenv("XPJ_GCS_OBJECT"); v != "" {
		c.Source.Object = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Source.CredentialsFile == "" {
		c.Source.CredentialsFile = v
	}
	if v := os.Getenv("XPJ_PRODUCT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Windows.Product = Duration(d)
		}
	}
	if v := os.Getenv("XPJ_SEARCH_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Windows.Search = Duration(d)
		}
	}
}

func (c *Config) validate() error {
	switch c.Source.Kind {
	case SourceCSV, SourceGCS, SourceSQLite:
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	switch c.Pipeline.Mode {
	case "standard", "sequential":
	default:
		return fmt.Errorf("unknown pipeline mode %q", c.Pipeline.Mode)
	}
	if c.Windows.Product <= 0 || c.Windows.Search <= 0 {
		return fmt.Errorf("attribution windows must be positive")
	}
	return nil
}
