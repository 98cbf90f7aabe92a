package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sw3d/render"
	"sw3d/render/vk"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SW3D_DEBUG", "SW3D_FRAMES_IN_FLIGHT", "SW3D_PRESENT_MODE", "SW3D_SHADER_DIR"} {
		t.Setenv(key, "")
	}
	t.Setenv("VK_VALIDATION", "0")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, cfg.Width)
	assert.Equal(t, DefaultHeight, cfg.Height)
	assert.Equal(t, DefaultTitle, cfg.Title)
	assert.Equal(t, render.DefaultAcquireTimeout, cfg.AcquireTimeout)
	assert.Equal(t, vk.DefaultFramesInFlight, cfg.GPU.FramesInFlight)
	assert.Equal(t, vk.DefaultShaderDir, cfg.GPU.ShaderDir)
	assert.False(t, cfg.GPU.Validation)
	assert.Zero(t, cfg.MaxFrames)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sw3d.yaml")
	data := `
width: 1280
height: 720
title: cube
debug: true
texturePath: assets/crate.png
acquireTimeout: 250ms
maxFrames: 10
gpu:
  presentMode: mailbox
  shaderDir: build/shaders
  framesInFlight: 3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, "cube", cfg.Title)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "assets/crate.png", cfg.TexturePath)
	assert.Equal(t, 250*time.Millisecond, cfg.AcquireTimeout)
	assert.Equal(t, uint64(10), cfg.MaxFrames)
	assert.Equal(t, "mailbox", cfg.GPU.PresentMode)
	assert.Equal(t, "build/shaders", cfg.GPU.ShaderDir)
	assert.Equal(t, 3, cfg.GPU.FramesInFlight)
	// keys missing from the file keep their defaults
	assert.Equal(t, DefaultTitle, cfg.LogPrefix)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VK_VALIDATION", "1")
	t.Setenv("SW3D_DEBUG", "true")
	t.Setenv("SW3D_FRAMES_IN_FLIGHT", "4")
	t.Setenv("SW3D_PRESENT_MODE", "immediate")
	t.Setenv("SW3D_SHADER_DIR", "/opt/sw3d/shaders")

	path := filepath.Join(t.TempDir(), "sw3d.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gpu:\n  framesInFlight: 3\n  validation: false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.GPU.Validation)
	assert.Equal(t, 4, cfg.GPU.FramesInFlight)
	assert.Equal(t, "immediate", cfg.GPU.PresentMode)
	assert.Equal(t, "/opt/sw3d/shaders", cfg.GPU.ShaderDir)
}

func TestLoadConfig_Normalize(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sw3d.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: -5\ntitle: \"\"\nacquireTimeout: 0s\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, cfg.Width)
	assert.Equal(t, DefaultTitle, cfg.Title)
	assert.Equal(t, render.DefaultAcquireTimeout, cfg.AcquireTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing file", wantErr: "read config"},
		{name: "bad yaml", file: "width: [1, 2\n", wantErr: "parse config"},
		{name: "bad debug", file: "{}", env: map[string]string{"SW3D_DEBUG": "sometimes"}, wantErr: "SW3D_DEBUG"},
		{name: "bad frames", file: "{}", env: map[string]string{"SW3D_FRAMES_IN_FLIGHT": "two"}, wantErr: "SW3D_FRAMES_IN_FLIGHT"},
		{name: "zero frames", file: "{}", env: map[string]string{"SW3D_FRAMES_IN_FLIGHT": "0"}, wantErr: "at least 1"},
		{name: "bad present mode", file: "gpu:\n  presentMode: vsync\n", wantErr: "unknown present mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(dir, "absent.yaml")
			if tt.file != "" {
				path = filepath.Join(dir, tt.name+".yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o644))
			}
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
