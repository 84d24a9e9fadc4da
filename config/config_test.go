package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnvFiles(t *testing.T) {
	old := EnvFiles
	EnvFiles = nil
	t.Cleanup(func() { EnvFiles = old })
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "vulkan", cfg.Driver)
	assert.Equal(t, 2*time.Second, cfg.Fill.Timeout.Duration)
	assert.Equal(t, []string{"VK_LAYER_KHRONOS_validation"}, cfg.Validation.Layers)
}

func TestLoadTOML(t *testing.T) {
	noEnvFiles(t)
	path := writeFile(t, "vkctx.toml", `
driver = "soft"

[app]
name = "toml-app"

[log]
level = "debug"
format = "json"

[fill]
width = 8
height = 2
red = 1
location = "device-local"
timeout = "250ms"
wait_retries = 0
output = "out.rgba.lz4"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.Driver)
	assert.Equal(t, "toml-app", cfg.App.Name)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Fill.Width)
	assert.Equal(t, uint8(1), cfg.Fill.Red)
	assert.Equal(t, uint8(63), cfg.Fill.Green, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Fill.Timeout.Duration)
	assert.Equal(t, 0, cfg.Fill.WaitRetries)
	assert.Equal(t, "Primary Window", cfg.Window.Title)
}

func TestLoadYAML(t *testing.T) {
	noEnvFiles(t)
	path := writeFile(t, "vkctx.yml", `
driver: soft
validation:
  enabled: true
  layers: [VK_LAYER_LUNARG_api_dump]
fill:
  timeout: 1s
window:
  secondary: false
  secondary_title: other
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Validation.Enabled)
	assert.Equal(t, []string{"VK_LAYER_LUNARG_api_dump"}, cfg.Validation.Layers)
	assert.Equal(t, time.Second, cfg.Fill.Timeout.Duration)
	assert.False(t, cfg.Window.Secondary)
	assert.Equal(t, "other", cfg.Window.SecondaryTitle)
}

func TestEnvOverrides(t *testing.T) {
	noEnvFiles(t)
	t.Setenv("VKCTX_DRIVER", "soft")
	t.Setenv("VKCTX_FILL_WIDTH", "16")
	t.Setenv("VKCTX_FILL_TIMEOUT", "3s")
	t.Setenv("VKCTX_VALIDATION_LAYERS", "A, B,")
	t.Setenv("VKCTX_WINDOW_SECONDARY", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.Driver)
	assert.Equal(t, 16, cfg.Fill.Width)
	assert.Equal(t, 3*time.Second, cfg.Fill.Timeout.Duration)
	assert.Equal(t, []string{"A", "B"}, cfg.Validation.Layers)
	assert.False(t, cfg.Window.Secondary)
}

func TestEnvFile(t *testing.T) {
	env := writeFile(t, "test.env", "VKCTX_LOG_LEVEL=warn\nVKCTX_FILL_OUTPUT=fill.bmp\n")
	old := EnvFiles
	EnvFiles = []string{env, filepath.Join(t.TempDir(), "missing.env")}
	t.Cleanup(func() {
		EnvFiles = old
		os.Unsetenv("VKCTX_LOG_LEVEL")
		os.Unsetenv("VKCTX_FILL_OUTPUT")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "fill.bmp", cfg.Fill.Output)
}

func TestLoadErrors(t *testing.T) {
	noEnvFiles(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "vkctx.json", `{}`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", `driver = `))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[fill]\ntimeout = \"soon\"\n"))
	assert.Error(t, err)

	t.Setenv("VKCTX_FILL_WIDTH", "wide")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"driver", func(c *Configuration) { c.Driver = "" }},
		{"log level", func(c *Configuration) { c.Log.Level = "loud" }},
		{"log format", func(c *Configuration) { c.Log.Format = "xml" }},
		{"fill size", func(c *Configuration) { c.Fill.Width = 0 }},
		{"location", func(c *Configuration) { c.Fill.Location = "cloud" }},
		{"timeout", func(c *Configuration) { c.Fill.Timeout.Duration = 0 }},
		{"retries", func(c *Configuration) { c.Fill.WaitRetries = -1 }},
		{"output", func(c *Configuration) { c.Fill.Output = "fill.jpg" }},
		{"window size", func(c *Configuration) { c.Window.Height = -1 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		assert.Error(t, cfg.Validate(), tt.name)
	}
}
