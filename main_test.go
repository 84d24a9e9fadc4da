package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Saphs/vulkan-go-context/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func TestFillCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fill.rgba.lz4")
	require.NoError(t, execute("--driver", "soft", "--log-level", "warn",
		"fill", "--width", "2", "--height", "3", "--color", "1,2,3,4", "--location", "device-local", "--out", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	pix, w, h, err := export.ReadRaw(f)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 3, h)
	assert.Equal(t, []byte{1, 2, 3, 4}, pix[20:24])
}

func TestFillCommandFromConfig(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "fill.png")
	cfgPath := filepath.Join(dir, "vkctx.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("driver: soft\nlog:\n  level: error\nfill:\n  output: "+out+"\n"), 0o644))

	require.NoError(t, execute("--config", cfgPath, "fill"))
	_, err := os.Stat(out)
	assert.NoError(t, err)
}

func TestCommandErrors(t *testing.T) {
	assert.Error(t, execute("--driver", "metal", "fill"))
	assert.Error(t, execute("--driver", "soft", "--log-level", "loud", "devices"))
	assert.Error(t, execute("--driver", "soft", "fill", "--color", "red"))
	assert.Error(t, execute("--driver", "soft", "fill", "--out", "fill.gif"))
}

func TestDevicesCommand(t *testing.T) {
	assert.NoError(t, execute("--driver", "soft", "--log-level", "error", "devices"))
}

func TestWindowsHeadless(t *testing.T) {
	assert.NoError(t, execute("--log-level", "error", "windows", "--headless"))
}
