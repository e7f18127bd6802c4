package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDirRespectsXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG override only applies on linux")
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgconf")

	require.Equal(t, filepath.Join("/tmp/xdgconf", appName), DefaultConfigDir())
}

func TestDefaultConfigPathJoinsFileName(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG override only applies on linux")
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgconf")

	require.Equal(t, filepath.Join("/tmp/xdgconf", appName, configFileName), DefaultConfigPath())
}
