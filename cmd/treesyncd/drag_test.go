package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
)

func TestDeviceFromFlag(t *testing.T) {
	cases := []struct {
		in   string
		want node.DeviceUID
	}{
		{"remote", node.DeviceGDrive},
		{"local", node.DeviceLocalDisk},
		{"", node.DeviceLocalDisk},
		{"bogus", node.DeviceLocalDisk},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, deviceFromFlag(c.in), "input %q", c.in)
	}
}

func TestParseDirConflictPolicy(t *testing.T) {
	cases := []struct {
		in   string
		want planner.DirConflictPolicy
	}{
		{"skip", planner.DirSkip},
		{"replace", planner.DirReplace},
		{"rename", planner.DirRename},
		{"merge", planner.DirMerge},
		{"prompt", planner.DirPrompt},
	}

	for _, c := range cases {
		got, err := parseDirConflictPolicy(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}

	_, err := parseDirConflictPolicy("bogus")
	require.Error(t, err)
}

func TestParseFileConflictPolicy(t *testing.T) {
	cases := []struct {
		in   string
		want planner.FileConflictPolicy
	}{
		{"skip", planner.FileSkip},
		{"replace-always", planner.FileReplaceAlways},
		{"replace-if-older", planner.FileReplaceIfOlderAndDifferent},
		{"rename-always", planner.FileRenameAlways},
		{"rename-if-older", planner.FileRenameIfOlderAndDifferent},
		{"rename-if-different", planner.FileRenameIfDifferent},
		{"prompt", planner.FilePrompt},
	}

	for _, c := range cases {
		got, err := parseFileConflictPolicy(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}

	_, err := parseFileConflictPolicy("bogus")
	require.Error(t, err)
}

func TestParseReplaceDirWithFilePolicy(t *testing.T) {
	cases := []struct {
		in   string
		want planner.ReplaceDirWithFilePolicy
	}{
		{"fail", planner.ReplaceDirWithFileFail},
		{"prompt", planner.ReplaceDirWithFilePrompt},
		{"follow-file-policy", planner.ReplaceDirWithFileFollowFilePolicy},
	}

	for _, c := range cases {
		got, err := parseReplaceDirWithFilePolicy(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}

	_, err := parseReplaceDirWithFilePolicy("bogus")
	require.Error(t, err)
}
