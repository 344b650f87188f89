package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Application ApplicationSection `toml:"application"`
	Renderer    RendererSection    `toml:"renderer"`
}

type ApplicationSection struct {
	Name           string `toml:"name"`
	Width          uint32 `toml:"width"`
	Height         uint32 `toml:"height"`
	LogLevel       string `toml:"log_level"`
	FramesInFlight uint32 `toml:"frames_in_flight"`
}

// RendererSection holds the settings the testbed graph reacts to. Changing
// any of them at runtime marks the affected passes dirty.
type RendererSection struct {
	ClearColor    [4]float64 `toml:"clear_color"`
	DepthClear    float32    `toml:"depth_clear"`
	ShadowMapSize uint32     `toml:"shadow_map_size"`
	Bloom         bool       `toml:"bloom"`
	UI            bool       `toml:"ui"`
	HDRFormat     string     `toml:"hdr_format"`
}

var validHDRFormats = []string{"rgba16float", "rgba32float"}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationSection{
			Name:           "anima",
			Width:          1280,
			Height:         720,
			LogLevel:       "info",
			FramesInFlight: 2,
		},
		Renderer: RendererSection{
			ClearColor:    [4]float64{0.1, 0.1, 0.1, 1.0},
			DepthClear:    1.0,
			ShadowMapSize: 2048,
			Bloom:         true,
			UI:            true,
			HDRFormat:     "rgba16float",
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults. A missing
// file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()
	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a TOML document on top of the defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(r); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("%w: line %d column %d: %v", ErrInvalidConfig, row, col, decodeErr)
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidConfig, c.Application.Width, c.Application.Height)
	}
	if c.Application.FramesInFlight == 0 || c.Application.FramesInFlight > 4 {
		return fmt.Errorf("%w: frames_in_flight must be in [1, 4], got %d", ErrInvalidConfig, c.Application.FramesInFlight)
	}
	if _, err := log.ParseLevel(c.Application.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.Application.LogLevel)
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: clear_color[%d] = %v out of [0, 1]", ErrInvalidConfig, i, v)
		}
	}
	if c.Renderer.DepthClear < 0 || c.Renderer.DepthClear > 1 {
		return fmt.Errorf("%w: depth_clear = %v out of [0, 1]", ErrInvalidConfig, c.Renderer.DepthClear)
	}
	if c.Renderer.ShadowMapSize == 0 || c.Renderer.ShadowMapSize&(c.Renderer.ShadowMapSize-1) != 0 {
		return fmt.Errorf("%w: shadow_map_size must be a power of two, got %d", ErrInvalidConfig, c.Renderer.ShadowMapSize)
	}
	format := strings.ToLower(c.Renderer.HDRFormat)
	valid := false
	for _, f := range validHDRFormats {
		if f == format {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: hdr_format %q (want one of %s)", ErrInvalidConfig, c.Renderer.HDRFormat, strings.Join(validHDRFormats, ", "))
	}
	c.Renderer.HDRFormat = format
	return nil
}
