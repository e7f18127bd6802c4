// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for treesyncd.
package config

// Config is the top-level configuration structure for one sync instance:
// one local POSIX root reconciled against one GDrive root.
type Config struct {
	Local   LocalConfig   `toml:"local"`
	Safety  SafetyConfig  `toml:"safety"`
	Workers WorkersConfig `toml:"workers"`
	Poll    PollConfig    `toml:"poll"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// LocalConfig locates the filesystem root and cache state for this instance.
type LocalConfig struct {
	RootDir  string `toml:"root_dir"`
	CacheDir string `toml:"cache_dir"`
}

// SafetyConfig controls protective thresholds, used by internal/safety's
// big-batch guard before a drag/deletion gesture is allowed to enqueue.
type SafetyConfig struct {
	BigBatchThreshold  int `toml:"big_batch_threshold"`
	BigBatchPercentage int `toml:"big_batch_percentage"`
	BigBatchMinItems   int `toml:"big_batch_min_items"`
}

// WorkersConfig sizes the executor's two worker pools: op tasks bound to
// user-visible priorities, and everything else.
type WorkersConfig struct {
	MaxConcurrentUserOpTasks    int `toml:"max_concurrent_user_op_tasks"`
	MaxConcurrentNonUserOpTasks int `toml:"max_concurrent_non_user_op_tasks"`
}

// PollConfig controls how often each side is rescanned in the absence of a
// push notification (fsnotify locally, a GDrive changes-feed poll remotely).
type PollConfig struct {
	LocalPollInterval  string `toml:"local_poll_interval"`
	RemotePollInterval string `toml:"remote_poll_interval"`
	FullRescanEvery    int    `toml:"full_rescan_every"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the remote backend client's behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
}
