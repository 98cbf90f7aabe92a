package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sw3d/render"
	"sw3d/render/vk"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 800
	DefaultTitle  = "sw3d"
)

// Config is the application configuration, loadable from YAML.
type Config struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Title     string `yaml:"title"`
	Debug     bool   `yaml:"debug"`
	LogPrefix string `yaml:"logPrefix,omitempty"`
	// TexturePath is the image the demo cube is drawn with.
	TexturePath string `yaml:"texturePath,omitempty"`
	// AcquireTimeout bounds fence and image waits. Zero uses the renderer
	// default.
	AcquireTimeout time.Duration `yaml:"acquireTimeout,omitempty"`
	// MaxFrames stops the loop after that many frames. Zero runs until the
	// window closes.
	MaxFrames uint64 `yaml:"maxFrames,omitempty"`

	GPU vk.Config `yaml:"gpu"`
}

func DefaultConfig() Config {
	return Config{
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		Title:          DefaultTitle,
		LogPrefix:      DefaultTitle,
		TexturePath:    "tex.png",
		AcquireTimeout: render.DefaultAcquireTimeout,
		GPU:            vk.DefaultConfig(),
	}
}

func (c *Config) normalize() {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = render.DefaultAcquireTimeout
	}
	if c.GPU.AppName == "" {
		c.GPU.AppName = c.Title
	}
}

// LoadConfig starts from DefaultConfig, overlays the YAML file at path when
// path is not empty, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.normalize()
	if _, err := vk.ParsePresentMode(cfg.GPU.PresentMode); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if _, ok := os.LookupEnv("VK_VALIDATION"); ok {
		c.GPU.Validation = vk.ValidationFromEnv()
	}
	if v := os.Getenv("SW3D_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SW3D_DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v := os.Getenv("SW3D_FRAMES_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SW3D_FRAMES_IN_FLIGHT: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("SW3D_FRAMES_IN_FLIGHT: must be at least 1, got %d", n)
		}
		c.GPU.FramesInFlight = n
	}
	if v := os.Getenv("SW3D_PRESENT_MODE"); v != "" {
		c.GPU.PresentMode = v
	}
	if v := os.Getenv("SW3D_SHADER_DIR"); v != "" {
		c.GPU.ShaderDir = v
	}
	return nil
}
