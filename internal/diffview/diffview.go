// Package diffview computes a read-only, name-matched comparison between a
// local and a remote directory's children, for display by the CLI. It does
// not plan or execute anything — internal/planner owns that — it only
// classifies what a drag between the two sides would find.
package diffview

import (
	"sort"

	"github.com/tonimelisma/treesync/internal/node"
)

// Status classifies one matched (or unmatched) name between the two sides.
type Status int

const (
	// Unchanged means both sides have a live node with the same name and
	// equal content (files) or both are directories (dirs are never
	// compared by content, only presence).
	Unchanged Status = iota
	// LocalOnly means the name exists only on the local side.
	LocalOnly
	// RemoteOnly means the name exists only on the remote side.
	RemoteOnly
	// Differs means both sides have a live node with the name, but they
	// are not equal — different content for files, or a file/dir kind
	// mismatch.
	Differs
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case LocalOnly:
		return "local-only"
	case RemoteOnly:
		return "remote-only"
	case Differs:
		return "differs"
	default:
		return "unknown"
	}
}

// Entry is one name's comparison result. Local and/or Remote is nil when
// Status is LocalOnly/RemoteOnly.
type Entry struct {
	Name   string
	Local  node.Node
	Remote node.Node
	Status Status
}

// ContentEqual reports whether two content references represent identical
// bytes. Satisfied by contentmeta.Equal.
type ContentEqual func(a, b node.ContentUID) bool

// Diff matches localChildren and remoteChildren by name and classifies each
// pairing. The result is sorted by name for stable display.
func Diff(localChildren, remoteChildren []node.Node, contentEqual ContentEqual) []Entry {
	byName := make(map[string]*Entry)

	order := make([]string, 0, len(localChildren)+len(remoteChildren))
	get := func(name string) *Entry {
		e, ok := byName[name]
		if !ok {
			e = &Entry{Name: name}
			byName[name] = e
			order = append(order, name)
		}
		return e
	}

	for _, n := range localChildren {
		get(n.GetName()).Local = n
	}

	for _, n := range remoteChildren {
		get(n.GetName()).Remote = n
	}

	entries := make([]Entry, 0, len(byName))
	for _, name := range order {
		e := byName[name]
		e.Status = classify(*e, contentEqual)
		entries = append(entries, *e)
	}

	sortEntries(entries)

	return entries
}

func classify(e Entry, contentEqual ContentEqual) Status {
	switch {
	case e.Local == nil:
		return RemoteOnly
	case e.Remote == nil:
		return LocalOnly
	case e.Local.IsDir() != e.Remote.IsDir():
		return Differs
	case e.Local.IsDir():
		return Unchanged
	default:
		localUID, remoteUID := node.NullContentUID, node.NullContentUID
		node.MutateBase(e.Local, func(b *node.BaseNode) { localUID = b.ContentUID })
		node.MutateBase(e.Remote, func(b *node.BaseNode) { remoteUID = b.ContentUID })

		if contentEqual(localUID, remoteUID) {
			return Unchanged
		}

		return Differs
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// Summary counts entries by status, for a one-line report.
type Summary struct {
	Unchanged, LocalOnly, RemoteOnly, Differs int
}

// Summarize tallies entries into a Summary.
func Summarize(entries []Entry) Summary {
	var s Summary

	for _, e := range entries {
		switch e.Status {
		case Unchanged:
			s.Unchanged++
		case LocalOnly:
			s.LocalOnly++
		case RemoteOnly:
			s.RemoteOnly++
		case Differs:
			s.Differs++
		}
	}

	return s
}
