package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "TREESYNCD_CONFIG"
	EnvRootDir  = "TREESYNCD_ROOT_DIR"
	EnvCacheDir = "TREESYNCD_CACHE_DIR"
)

// EnvOverrides holds values derived from environment variables. These are
// resolved by ReadEnvOverrides and applied by the caller, never by Load
// itself, so the four-layer precedence stays explicit at the call site.
type EnvOverrides struct {
	ConfigPath string
	RootDir    string
	CacheDir   string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Unset variables leave the corresponding field empty.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		RootDir:    os.Getenv(EnvRootDir),
		CacheDir:   os.Getenv(EnvCacheDir),
	}
}

// Apply overlays non-empty env overrides onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.RootDir != "" {
		cfg.Local.RootDir = e.RootDir
	}

	if e.CacheDir != "" {
		cfg.Local.CacheDir = e.CacheDir
	}
}
