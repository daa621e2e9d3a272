// Package config loads the hsmdemo configuration.
//
// Precedence is environment > file > defaults. The file is YAML; every
// field can be overridden by an HSMDEMO_ prefixed environment variable.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/internal/monostable"
	"github.com/librescoot/librehsm/internal/pelican"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HSMDEMO_"

// Config is the complete demo configuration
type Config struct {
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsAddr   string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	QueueCapacity int    `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
	MaxRedirects  int    `yaml:"max_redirects" env:"MAX_REDIRECTS"`

	Pelican    Pelican    `yaml:"pelican" envPrefix:"PELICAN_"`
	Monostable Monostable `yaml:"monostable" envPrefix:"MONOSTABLE_"`
}

// Pelican configures the crossing demo
type Pelican struct {
	CarsGreenMin time.Duration `yaml:"cars_green_min" env:"CARS_GREEN_MIN"`
	CarsYellow   time.Duration `yaml:"cars_yellow" env:"CARS_YELLOW"`
	PedsWalk     time.Duration `yaml:"peds_walk" env:"PEDS_WALK"`
	PedsFlash    time.Duration `yaml:"peds_flash" env:"PEDS_FLASH"`
	OffFlash     time.Duration `yaml:"off_flash" env:"OFF_FLASH"`
	Flashes      int           `yaml:"flashes" env:"FLASHES"`
}

// Monostable configures the switch bank demo
type Monostable struct {
	Switches int           `yaml:"switches" env:"SWITCHES"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Refresh  time.Duration `yaml:"refresh" env:"REFRESH"`
}

// Default returns the built-in configuration
func Default() Config {
	t := pelican.DefaultTiming()
	return Config{
		LogLevel:      "info",
		QueueCapacity: librehsm.DefaultQueueCapacity,
		MaxRedirects:  librehsm.DefaultMaxRedirects,
		Pelican: Pelican{
			CarsGreenMin: t.CarsGreenMin,
			CarsYellow:   t.CarsYellow,
			PedsWalk:     t.PedsWalk,
			PedsFlash:    t.PedsFlash,
			OffFlash:     t.OffFlash,
			Flashes:      t.Flashes,
		},
		Monostable: Monostable{
			Switches: 5,
			Timeout:  monostable.DefaultTimeout,
			Refresh:  100 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// not empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity))
	}
	if c.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("max_redirects must not be negative, got %d", c.MaxRedirects))
	}
	if err := c.Pelican.Timing().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pelican: %w", err))
	}
	if c.Monostable.Switches < 1 || c.Monostable.Switches > 9 {
		errs = append(errs, fmt.Errorf("monostable: switches must be between 1 and 9, got %d", c.Monostable.Switches))
	}
	if c.Monostable.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("monostable: timeout must be positive, got %s", c.Monostable.Timeout))
	}
	if c.Monostable.Refresh <= 0 {
		errs = append(errs, fmt.Errorf("monostable: refresh must be positive, got %s", c.Monostable.Refresh))
	}

	return errors.Join(errs...)
}

// Level parses LogLevel
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// MachineOptions returns the engine options shared by every demo machine
func (c Config) MachineOptions() []librehsm.MachineOption {
	return []librehsm.MachineOption{
		librehsm.WithQueueCapacity(c.QueueCapacity),
		librehsm.WithMaxRedirects(c.MaxRedirects),
	}
}

// Timing converts the section to crossing timeouts
func (p Pelican) Timing() pelican.Timing {
	return pelican.Timing{
		CarsGreenMin: p.CarsGreenMin,
		CarsYellow:   p.CarsYellow,
		PedsWalk:     p.PedsWalk,
		PedsFlash:    p.PedsFlash,
		OffFlash:     p.OffFlash,
		Flashes:      p.Flashes,
	}
}
