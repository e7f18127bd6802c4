package diffview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/node"
)

func file(name string, content node.ContentUID) node.Node {
	return &node.LocalFileNode{BaseNode: node.BaseNode{Name: name, Kind: node.KindLocalFile, ContentUID: content, IsLive: true}}
}

func dir(name string) node.Node {
	return &node.LocalDirNode{BaseNode: node.BaseNode{Name: name, Kind: node.KindLocalDir, IsLive: true}}
}

func equalByValue(a, b node.ContentUID) bool {
	if a == node.NullContentUID || b == node.NullContentUID {
		return false
	}
	return a == b
}

func TestDiff_ClassifiesEveryCase(t *testing.T) {
	local := []node.Node{
		file("same.txt", 1),
		file("changed.txt", 2),
		file("local-only.txt", 3),
		dir("shared-dir"),
	}
	remote := []node.Node{
		file("same.txt", 1),
		file("changed.txt", 99),
		file("remote-only.txt", 4),
		dir("shared-dir"),
	}

	entries := Diff(local, remote, equalByValue)
	require.Len(t, entries, 5)

	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	assert.Equal(t, Unchanged, byName["same.txt"].Status)
	assert.Equal(t, Differs, byName["changed.txt"].Status)
	assert.Equal(t, LocalOnly, byName["local-only.txt"].Status)
	assert.Equal(t, RemoteOnly, byName["remote-only.txt"].Status)
	assert.Equal(t, Unchanged, byName["shared-dir"].Status)

	// Stable, name-sorted order.
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"changed.txt", "local-only.txt", "remote-only.txt", "same.txt", "shared-dir"}, names)
}

func TestDiff_FileVsDirNameCollisionDiffers(t *testing.T) {
	entries := Diff([]node.Node{file("x", 1)}, []node.Node{dir("x")}, equalByValue)
	require.Len(t, entries, 1)
	assert.Equal(t, Differs, entries[0].Status)
}

func TestSummarize_CountsEachStatus(t *testing.T) {
	entries := Diff(
		[]node.Node{file("a", 1), file("b", 2)},
		[]node.Node{file("a", 1), file("c", 3)},
		equalByValue,
	)

	s := Summarize(entries)
	assert.Equal(t, Summary{Unchanged: 1, LocalOnly: 1, RemoteOnly: 1}, s)
}
