package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

const (
	ledgerTable = "outstanding_documents"
	// ledgerLockKey is the pg_advisory_lock key guarding the ledger table.
	ledgerLockKey int64 = 0x4f504e4c
)

const createLedgerTable = `CREATE TABLE IF NOT EXISTS outstanding_documents (
    document_url TEXT PRIMARY KEY,
    attempts     INT NOT NULL DEFAULT 0,
    position     INT NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresLedgerStore persists the outstanding ledger into Postgres.
type PostgresLedgerStore struct {
	db *sql.DB
}

var _ ports.LedgerStore = (*PostgresLedgerStore)(nil)

// NewPostgresLedgerStore wires a sql.DB implementation.
func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// EnsureSchema creates the ledger table when missing.
func (s *PostgresLedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createLedgerTable); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Acquire pins a connection and holds a session-level advisory lock on it
// until Release.
func (s *PostgresLedgerStore) Acquire(ctx context.Context) (ports.LedgerHandle, error) {
	if s.db == nil {
		return nil, errors.New("postgres ledger: no database configured")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", ledgerLockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return &postgresLedgerHandle{conn: conn}, nil
}

type postgresLedgerHandle struct {
	conn *sql.Conn
}

func (h *postgresLedgerHandle) Load(ctx context.Context) (domain.Ledger, error) {
	query, args, err := psql.Select("document_url", "attempts").
		From(ledgerTable).
		OrderBy("position").
		ToSql()
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("build select: %w", err)
	}

	rows, err := h.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("query ledger: %w", err)
	}

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.URL, &e.Attempts); err != nil {
			_ = rows.Close()
			return domain.Ledger{}, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return domain.Ledger{}, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return domain.Ledger{}, fmt.Errorf("close rows: %w", closeErr)
	}

	return domain.NewLedger(entries...), nil
}

// Save replaces the table contents with ledger in one transaction.
func (h *postgresLedgerHandle) Save(ctx context.Context, ledger domain.Ledger) error {
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := replaceLedger(ctx, tx, ledger); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

func replaceLedger(ctx context.Context, tx *sql.Tx, ledger domain.Ledger) error {
	query, args, err := psql.Delete(ledgerTable).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	if ledger.Len() == 0 {
		return nil
	}

	insert := psql.Insert(ledgerTable).Columns("document_url", "attempts", "position", "updated_at")
	for i, e := range ledger.Entries() {
		insert = insert.Values(e.URL, e.Attempts, i, sq.Expr("NOW()"))
	}
	query, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}

// Release unlocks on a fresh context so a cancelled run still frees the lock.
func (h *postgresLedgerHandle) Release() error {
	_, unlockErr := h.conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", ledgerLockKey)
	closeErr := h.conn.Close()
	if unlockErr != nil {
		unlockErr = fmt.Errorf("advisory unlock: %w", unlockErr)
	}
	if closeErr != nil {
		closeErr = fmt.Errorf("release connection: %w", closeErr)
	}
	return errors.Join(unlockErr, closeErr)
}
