package vk

import (
	"fmt"
	"os"
	"strings"

	"github.com/vulkan-go/vulkan"
)

const (
	DefaultFramesInFlight = 2
	DefaultShaderDir      = "shaders"
	DefaultAppName        = "sw3d"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
	deviceExtensions = []string{"VK_KHR_swapchain"}
)

// Config selects how the device and swapchain are built.
type Config struct {
	AppName    string `yaml:"appName,omitempty"`
	Validation bool   `yaml:"validation"`
	// PresentMode is fifo, mailbox or immediate. Unavailable modes fall
	// back to fifo.
	PresentMode    string `yaml:"presentMode,omitempty"`
	ShaderDir      string `yaml:"shaderDir,omitempty"`
	FramesInFlight int    `yaml:"framesInFlight,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		AppName:        DefaultAppName,
		Validation:     ValidationFromEnv(),
		PresentMode:    "fifo",
		ShaderDir:      DefaultShaderDir,
		FramesInFlight: DefaultFramesInFlight,
	}
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.PresentMode == "" {
		c.PresentMode = "fifo"
	}
	if c.ShaderDir == "" {
		c.ShaderDir = DefaultShaderDir
	}
	if c.FramesInFlight < 1 {
		c.FramesInFlight = DefaultFramesInFlight
	}
	return c
}

// ValidationFromEnv reads VK_VALIDATION. Validation is on unless the
// variable says otherwise.
func ValidationFromEnv() bool {
	val := os.Getenv("VK_VALIDATION")
	if val == "" {
		return true
	}
	switch val {
	case "0", "false", "False", "FALSE":
		return false
	default:
		return true
	}
}

func ParsePresentMode(name string) (vulkan.PresentMode, error) {
	switch strings.ToLower(name) {
	case "", "fifo":
		return vulkan.PresentModeFifo, nil
	case "mailbox":
		return vulkan.PresentModeMailbox, nil
	case "immediate":
		return vulkan.PresentModeImmediate, nil
	}
	return vulkan.PresentModeFifo, fmt.Errorf("unknown present mode %q", name)
}
