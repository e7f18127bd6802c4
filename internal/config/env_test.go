package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvRootDir, "/mnt/sync")
	t.Setenv(EnvCacheDir, "/var/cache/treesyncd")
	t.Setenv(EnvConfig, "/etc/treesyncd/config.toml")

	got := ReadEnvOverrides()

	require.Equal(t, "/mnt/sync", got.RootDir)
	require.Equal(t, "/var/cache/treesyncd", got.CacheDir)
	require.Equal(t, "/etc/treesyncd/config.toml", got.ConfigPath)
}

func TestEnvOverridesApplyOnlyNonEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Local.RootDir = "/original"

	overrides := EnvOverrides{CacheDir: "/override/cache"}
	overrides.Apply(cfg)

	require.Equal(t, "/original", cfg.Local.RootDir)
	require.Equal(t, "/override/cache", cfg.Local.CacheDir)
}
