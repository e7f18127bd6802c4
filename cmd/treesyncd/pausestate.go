package main

import (
	"os"
	"path/filepath"
)

const pausedMarkerName = "paused"

// pausedMarkerPath returns the path of the marker file whose mere existence
// means the daemon's op-graph dispatch is paused. A plain marker file
// (rather than a config.toml key) keeps `pause`/`resume` fast and
// lock-free — they don't need to parse or rewrite the TOML file just to
// flip one bit.
func pausedMarkerPath(cacheDir string) string {
	return filepath.Join(cacheDir, pausedMarkerName)
}

// isPausedOnDisk reports whether the marker file exists.
func isPausedOnDisk(cacheDir string) bool {
	_, err := os.Stat(pausedMarkerPath(cacheDir))
	return err == nil
}

// setPausedOnDisk creates or removes the marker file.
func setPausedOnDisk(cacheDir string, paused bool) error {
	path := pausedMarkerPath(cacheDir)

	if !paused {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if err := os.MkdirAll(cacheDir, pidDirPermissions); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, pidFilePermissions)
	if err != nil {
		return err
	}

	return f.Close()
}
