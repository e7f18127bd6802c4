package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and are chosen to be safe, reasonable
// starting points that work without any config file.
const (
	defaultBigBatchThreshold       = 1000
	defaultBigBatchPercentage      = 50
	defaultBigBatchMinItems        = 10
	defaultMaxConcurrentUserOps    = 4
	defaultMaxConcurrentNonUserOps = 2
	defaultLocalPollInterval       = "2s"
	defaultRemotePollInterval      = "30s"
	defaultFullRescanEvery         = 12
	defaultLogLevel                = "info"
	defaultLogFormat               = "auto"
	defaultConnectTimeout          = "10s"
)

// DefaultConfig returns a Config populated with all default values. This is
// used both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Local:   defaultLocalConfig(),
		Safety:  defaultSafetyConfig(),
		Workers: defaultWorkersConfig(),
		Poll:    defaultPollConfig(),
		Logging: defaultLoggingConfig(),
		Network: defaultNetworkConfig(),
	}
}

func defaultLocalConfig() LocalConfig {
	return LocalConfig{
		RootDir:  "",
		CacheDir: DefaultCacheDir(),
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		BigBatchThreshold:  defaultBigBatchThreshold,
		BigBatchPercentage: defaultBigBatchPercentage,
		BigBatchMinItems:   defaultBigBatchMinItems,
	}
}

func defaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		MaxConcurrentUserOpTasks:    defaultMaxConcurrentUserOps,
		MaxConcurrentNonUserOpTasks: defaultMaxConcurrentNonUserOps,
	}
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		LocalPollInterval:  defaultLocalPollInterval,
		RemotePollInterval: defaultRemotePollInterval,
		FullRescanEvery:    defaultFullRescanEvery,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
	}
}
