// Package ledger persists planned ops across a restart: every op is written
// before the executor runs it, so a crash mid-batch can be rehydrated into
// the operation dependency graph in the same order it was originally
// enqueued, instead of being lost.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
	"github.com/tonimelisma/treesync/internal/storage"
)

// Status mirrors an op's lifecycle state in the ledger.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusStoppedOnError Status = "STOPPED_ON_ERROR"
	StatusCompletedOK    Status = "COMPLETED_OK"
	StatusCompletedNoOp  Status = "COMPLETED_NO_OP"
)

// Ledger is the persisted op journal.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger

	stmtInsert      *sql.Stmt
	stmtInsertSide  *sql.Stmt
	stmtUpdate      *sql.Stmt
	stmtArchive     *sql.Stmt
	stmtListPending *sql.Stmt
	stmtStatusOf    *sql.Stmt
}

// sideRecord is the JSON payload stored alongside a ledger row for one side
// of a two-sided op.
type sideRecord struct {
	DeviceUID node.DeviceUID
	UID       node.UID
	Path      string
}

// New opens a Ledger against the shared database.
func New(ctx context.Context, db *storage.DB, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{db: db.Conn, logger: logger}

	if err := storage.PrepareAll(ctx, l.db, []storage.StmtDef{
		{Dest: &l.stmtInsert, SQL: `INSERT INTO op_ledger (op_uid, batch_uid, op_type, priority, status, payload, created_ts, updated_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, Name: "insertOp"},
		{Dest: &l.stmtInsertSide, SQL: `INSERT INTO op_ledger_side (op_uid, side, device_uid, node_uid, path) VALUES (?, ?, ?, ?, ?)`, Name: "insertOpSide"},
		{Dest: &l.stmtUpdate, SQL: `UPDATE op_ledger SET status = ?, updated_ts = ? WHERE op_uid = ?`, Name: "updateOpStatus"},
		{Dest: &l.stmtArchive, SQL: `UPDATE op_ledger SET status = ?, updated_ts = ? WHERE op_uid = ?`, Name: "archiveOp"},
		{Dest: &l.stmtListPending, SQL: `SELECT op_uid, batch_uid, op_type, priority FROM op_ledger WHERE status = ? ORDER BY op_uid ASC`, Name: "listPending"},
		{Dest: &l.stmtStatusOf, SQL: `SELECT status FROM op_ledger WHERE op_uid = ?`, Name: "statusOf"},
	}); err != nil {
		return nil, err
	}

	return l, nil
}

// Persist writes op as a new PENDING row plus its side payloads, inside a
// single transaction, before the executor is allowed to run it.
func (l *Ledger) Persist(ctx context.Context, op *planner.Op, priority int) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	now := nowTS()

	payload, err := json.Marshal(struct{ OpType planner.OpType }{op.Type})
	if err != nil {
		return fmt.Errorf("encode op payload: %w", err)
	}

	if _, err := tx.StmtContext(ctx, l.stmtInsert).ExecContext(ctx,
		op.OpUID, op.BatchUID, string(op.Type), priority, string(StatusPending), payload, now, now); err != nil {
		return fmt.Errorf("insert op_ledger row: %w", err)
	}

	if op.SrcNode != nil {
		if err := insertSide(ctx, tx, l.stmtInsertSide, op.OpUID, "src", op.SrcNode); err != nil {
			return err
		}
	}

	if op.DstNode != nil {
		if err := insertSide(ctx, tx, l.stmtInsertSide, op.OpUID, "dst", op.DstNode); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	return nil
}

func insertSide(ctx context.Context, tx *sql.Tx, stmt *sql.Stmt, opUID uint64, side string, n node.Node) error {
	path := ""
	if paths := n.GetPathList(); len(paths) > 0 {
		path = paths[0]
	}

	if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, opUID, side, n.GetDeviceUID(), uint64(n.GetUID()), path); err != nil {
		return fmt.Errorf("insert op_ledger_side (%s): %w", side, err)
	}

	return nil
}

// MarkStoppedOnError leaves the row in the ledger (it is NOT popped from
// the op graph) but flips its status so a restart knows this op previously
// failed and is blocking the rest of its batch.
func (l *Ledger) MarkStoppedOnError(ctx context.Context, opUID uint64) error {
	_, err := l.stmtUpdate.ExecContext(ctx, string(StatusStoppedOnError), nowTS(), opUID)
	if err != nil {
		return fmt.Errorf("mark op stopped on error: %w", err)
	}

	return nil
}

// Archive moves op from pending to a terminal status after it completes
// (successfully or as a verified no-op).
func (l *Ledger) Archive(ctx context.Context, opUID uint64, noOp bool) error {
	status := StatusCompletedOK
	if noOp {
		status = StatusCompletedNoOp
	}

	if _, err := l.stmtArchive.ExecContext(ctx, string(status), nowTS(), opUID); err != nil {
		return fmt.Errorf("archive op: %w", err)
	}

	return nil
}

// ArchiveBatchFailed marks every op in opUIDs STOPPED_ON_ERROR. The given
// message is logged, not stored in the rows.
func (l *Ledger) ArchiveBatchFailed(ctx context.Context, opUIDs []uint64, msg string) error {
	l.logger.Warn("archiving failed batch", slog.Any("op_uids", opUIDs), slog.String("reason", msg))

	for _, uid := range opUIDs {
		if err := l.MarkStoppedOnError(ctx, uid); err != nil {
			return err
		}
	}

	return nil
}

// PendingRow is one rehydrated pending op's bookkeeping fields; the caller
// (executor startup) re-resolves SrcNode/DstNode from the tree-stores using
// the side rows before re-enqueuing into the op graph.
type PendingRow struct {
	OpUID    uint64
	BatchUID string
	OpType   planner.OpType
	Priority int
}

// LoadPending returns every PENDING op row in op_uid order, for startup
// rehydration into the op graph.
func (l *Ledger) LoadPending(ctx context.Context) ([]PendingRow, error) {
	rows, err := l.stmtListPending.QueryContext(ctx, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending ops: %w", err)
	}
	defer rows.Close()

	var out []PendingRow

	for rows.Next() {
		var (
			r      PendingRow
			opType string
		)

		if err := rows.Scan(&r.OpUID, &r.BatchUID, &opType, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan pending op row: %w", err)
		}

		r.OpType = planner.OpType(opType)
		out = append(out, r)
	}

	return out, rows.Err()
}

// StatusOf returns the current status of opUID, for callers (the CLI's
// one-shot batch drain, `ops` command) that need to poll a specific op
// rather than scan every pending row.
func (l *Ledger) StatusOf(ctx context.Context, opUID uint64) (Status, error) {
	var status string

	err := l.stmtStatusOf.QueryRowContext(ctx, opUID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("query op status: %w", err)
	}

	return Status(status), nil
}

// SidesFor returns the persisted src/dst references for opUID.
func (l *Ledger) SidesFor(ctx context.Context, opUID uint64) (src, dst *sideRecord, err error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT side, device_uid, node_uid, path FROM op_ledger_side WHERE op_uid = ?`, opUID)
	if err != nil {
		return nil, nil, fmt.Errorf("query op_ledger_side: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			side       string
			deviceUID  uint32
			uid        uint64
			path       string
		)

		if err := rows.Scan(&side, &deviceUID, &uid, &path); err != nil {
			return nil, nil, fmt.Errorf("scan op_ledger_side row: %w", err)
		}

		rec := &sideRecord{DeviceUID: node.DeviceUID(deviceUID), UID: node.UID(uid), Path: path}

		switch side {
		case "src":
			src = rec
		case "dst":
			dst = rec
		}
	}

	return src, dst, rows.Err()
}

func nowTS() int64 { return time.Now().UnixNano() }
