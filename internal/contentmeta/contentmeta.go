// Package contentmeta interns (size, md5, sha256) triples into a compact
// ContentUID, so nodes that reference identical content — the common case
// after a CP — share one row instead of duplicating hash strings.
package contentmeta

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/storage"
)

// Meta is the (size, md5, sha256) triple a ContentUID stands in for.
type Meta struct {
	Size   int64
	MD5    string
	SHA256 string
}

// Manager interns Meta values into ContentUIDs, backed by SQLite.
type Manager struct {
	mu      sync.Mutex
	byMeta  map[Meta]node.ContentUID
	byUID   map[node.ContentUID]Meta
	nextUID node.ContentUID

	db *sql.DB

	stmtInsert *sql.Stmt
}

// New loads every interned Meta into memory.
func New(ctx context.Context, db *storage.DB) (*Manager, error) {
	m := &Manager{
		byMeta: make(map[Meta]node.ContentUID),
		byUID:  make(map[node.ContentUID]Meta),
		db:     db.Conn,
	}

	if err := storage.PrepareAll(ctx, m.db, []storage.StmtDef{
		{Dest: &m.stmtInsert, SQL: `INSERT INTO content_meta (content_uid, size, md5, sha256) VALUES (?, ?, ?, ?)`, Name: "insertContentMeta"},
	}); err != nil {
		return nil, err
	}

	if err := m.load(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, `SELECT content_uid, size, md5, sha256 FROM content_meta`)
	if err != nil {
		return fmt.Errorf("query content_meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			uid  uint64
			meta Meta
		)

		if err := rows.Scan(&uid, &meta.Size, &meta.MD5, &meta.SHA256); err != nil {
			return fmt.Errorf("scan content_meta row: %w", err)
		}

		m.byMeta[meta] = node.ContentUID(uid)
		m.byUID[node.ContentUID(uid)] = meta

		if node.ContentUID(uid) >= m.nextUID {
			m.nextUID = node.ContentUID(uid) + 1
		}
	}

	if m.nextUID == 0 {
		m.nextUID = 1
	}

	return rows.Err()
}

// Intern returns the ContentUID for meta, allocating and persisting a new
// one if this exact triple has never been seen.
func (m *Manager) Intern(ctx context.Context, meta Meta) (node.ContentUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uid, ok := m.byMeta[meta]; ok {
		return uid, nil
	}

	uid := m.nextUID
	m.nextUID++

	if _, err := m.stmtInsert.ExecContext(ctx, uint64(uid), meta.Size, meta.MD5, meta.SHA256); err != nil {
		return 0, fmt.Errorf("persist content_meta: %w", err)
	}

	m.byMeta[meta] = uid
	m.byUID[uid] = meta

	return uid, nil
}

// Lookup returns the Meta interned under uid.
func (m *Manager) Lookup(uid node.ContentUID) (Meta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.byUID[uid]

	return meta, ok
}

// Equal reports whether two content references name the same bytes. Two
// NullContentUID values are never considered equal — "no content" never
// matches itself as "same content".
func Equal(a, b node.ContentUID) bool {
	if a == node.NullContentUID || b == node.NullContentUID {
		return false
	}

	return a == b
}
