package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// StmtDef maps a SQL string to the prepared statement pointer it populates.
// Sub-packages build a []StmtDef and call PrepareAll once per statement
// group, mirroring the shared database but keeping the statements and their
// queries private to each domain package.
type StmtDef struct {
	Dest **sql.Stmt
	SQL  string
	Name string
}

// PrepareAll prepares a batch of statements against conn, returning on the
// first error.
func PrepareAll(ctx context.Context, conn *sql.DB, defs []StmtDef) error {
	for i := range defs {
		stmt, err := conn.PrepareContext(ctx, defs[i].SQL)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].Name, err)
		}

		*defs[i].Dest = stmt
	}

	return nil
}
