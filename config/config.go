// Package config loads the configuration from a TOML or YAML file, .env files and VKCTX_* environment variables,
// in that order of precedence from lowest to highest.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/export"
	"github.com/Saphs/vulkan-go-context/memory"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VKCTX_"

// EnvFiles are loaded into the environment before overrides are read. Missing files are skipped.
var EnvFiles = []string{".env"}

// Configuration is the complete configuration.
type Configuration struct {
	App        AppConfiguration        `toml:"app" yaml:"app"`
	Driver     string                  `toml:"driver" yaml:"driver"`
	Validation ValidationConfiguration `toml:"validation" yaml:"validation"`
	Log        LogConfiguration        `toml:"log" yaml:"log"`
	Fill       FillConfiguration       `toml:"fill" yaml:"fill"`
	Window     WindowConfiguration     `toml:"window" yaml:"window"`
}

// AppConfiguration names the application towards the driver.
type AppConfiguration struct {
	Name string `toml:"name" yaml:"name"`
}

// ValidationConfiguration enables instance layers.
type ValidationConfiguration struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	Layers  []string `toml:"layers" yaml:"layers"`
}

// LogConfiguration is used to set up logging.
type LogConfiguration struct {
	// Level is any level logrus can parse
	Level string `toml:"level" yaml:"level"`
	// Format is either text or json
	Format       string `toml:"format" yaml:"format"`
	ReportCaller bool   `toml:"report_caller" yaml:"report_caller"`
}

// FillConfiguration configures the one-shot fill.
type FillConfiguration struct {
	Width  int   `toml:"width" yaml:"width"`
	Height int   `toml:"height" yaml:"height"`
	Red    uint8 `toml:"red" yaml:"red"`
	Green  uint8 `toml:"green" yaml:"green"`
	Blue   uint8 `toml:"blue" yaml:"blue"`
	Alpha  uint8 `toml:"alpha" yaml:"alpha"`
	// Location is device-local or host-visible
	Location    string   `toml:"location" yaml:"location"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
	WaitRetries int      `toml:"wait_retries" yaml:"wait_retries"`
	// Output is the export file, empty disables the export
	Output string `toml:"output" yaml:"output"`
}

// WindowConfiguration configures the windows of the multi-window engine.
type WindowConfiguration struct {
	Title          string `toml:"title" yaml:"title"`
	Width          int    `toml:"width" yaml:"width"`
	Height         int    `toml:"height" yaml:"height"`
	Secondary      bool   `toml:"secondary" yaml:"secondary"`
	SecondaryTitle string `toml:"secondary_title" yaml:"secondary_title"`
}

// Duration is a time.Duration written as a string like "1.5s" in configuration files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built in configuration.
func Default() Configuration {
	return Configuration{
		App:    AppConfiguration{Name: "vulkan-go-context"},
		Driver: "vulkan",
		Validation: ValidationConfiguration{
			Enabled: false,
			Layers:  append([]string(nil), device.DefaultValidationLayers...),
		},
		Log: LogConfiguration{Level: "info", Format: "text"},
		Fill: FillConfiguration{
			Width:       4,
			Height:      4,
			Red:         70,
			Green:       63,
			Blue:        158,
			Alpha:       255,
			Location:    memory.HostVisibleCoherent.String(),
			Timeout:     Duration{2 * time.Second},
			WaitRetries: 3,
			Output:      "fill.png",
		},
		Window: WindowConfiguration{
			Title:          "Primary Window",
			Width:          800,
			Height:         600,
			Secondary:      true,
			SecondaryTitle: "Secondary Window",
		},
	}
}

// Load builds the configuration from the defaults, the file at path (skipped when path is empty), the env files
// and the environment, and validates the result.
func Load(path string) (Configuration, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := loadEnvFiles(); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decodeFile(path string, cfg *Configuration) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read configuration")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(raw, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		return errors.Errorf("configuration %s: unsupported extension %q", path, ext)
	}
	return errors.Wrapf(err, "decode configuration %s", path)
}

func loadEnvFiles() error {
	var files []string
	for _, f := range EnvFiles {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return errors.Wrap(err, "load env files")
		}
	}
	envy.Reload()
	return nil
}

func applyEnv(cfg *Configuration) error {
	str := func(key string, dst *string) {
		if v := envy.Get(EnvPrefix+key, ""); v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = errors.Wrapf(err, "environment %s%s", EnvPrefix, key)
		}
	}
	integer := func(key string, dst *int) {
		if v := envy.Get(EnvPrefix+key, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := envy.Get(EnvPrefix+key, ""); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = b
		}
	}

	str("APP_NAME", &cfg.App.Name)
	str("DRIVER", &cfg.Driver)
	boolean("VALIDATION", &cfg.Validation.Enabled)
	if v := envy.Get(EnvPrefix+"VALIDATION_LAYERS", ""); v != "" {
		cfg.Validation.Layers = splitList(v)
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	boolean("LOG_REPORT_CALLER", &cfg.Log.ReportCaller)
	integer("FILL_WIDTH", &cfg.Fill.Width)
	integer("FILL_HEIGHT", &cfg.Fill.Height)
	str("FILL_LOCATION", &cfg.Fill.Location)
	if v := envy.Get(EnvPrefix+"FILL_TIMEOUT", ""); v != "" {
		if err := cfg.Fill.Timeout.UnmarshalText([]byte(v)); err != nil {
			fail("FILL_TIMEOUT", err)
		}
	}
	integer("FILL_WAIT_RETRIES", &cfg.Fill.WaitRetries)
	str("FILL_OUTPUT", &cfg.Fill.Output)
	str("WINDOW_TITLE", &cfg.Window.Title)
	boolean("WINDOW_SECONDARY", &cfg.Window.Secondary)
	return firstErr
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every value that cannot be checked by type alone.
func (c Configuration) Validate() error {
	if c.Driver == "" {
		return errors.New("driver must be set")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Errorf("log format %q: want text or json", c.Log.Format)
	}
	if c.Fill.Width <= 0 || c.Fill.Height <= 0 {
		return errors.Errorf("fill size %dx%d must be positive", c.Fill.Width, c.Fill.Height)
	}
	if _, err := memory.ParseLocation(c.Fill.Location); err != nil {
		return errors.Wrap(err, "fill location")
	}
	if c.Fill.Timeout.Duration <= 0 {
		return errors.Errorf("fill timeout %v must be positive", c.Fill.Timeout)
	}
	if c.Fill.WaitRetries < 0 {
		return errors.Errorf("fill wait retries %d must not be negative", c.Fill.WaitRetries)
	}
	if c.Fill.Output != "" {
		if _, err := export.FormatFromPath(c.Fill.Output); err != nil {
			return errors.Wrap(err, "fill output")
		}
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return errors.Errorf("window size %dx%d must not be negative", c.Window.Width, c.Window.Height)
	}
	return nil
}
