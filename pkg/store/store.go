// Package store persists the operation ledger in a relational
// database so a restarted process can rehydrate its full state.
// It supports both Postgres and SQLite via standard drivers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

// Store is the persistence contract for operation records.
type Store interface {
	Init(ctx context.Context) error
	SaveOperation(ctx context.Context, op approval.Operation) error
	AddApproval(ctx context.Context, opID uint64, seq int, reviewer string, at time.Time) error
	SetExecuted(ctx context.Context, opID uint64) error
	GetOperation(ctx context.Context, id uint64) (approval.Operation, error)
	ListOperations(ctx context.Context) ([]approval.Operation, error)
	Close() error
}

// dialect carries the backend-specific SQL surface. Queries are
// written with ? placeholders and rebound for backends that number
// their parameters.
type dialect struct {
	name   string
	schema string
	rebind func(query string) string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY,
	target TEXT NOT NULL,
	value TEXT NOT NULL,
	payload BLOB,
	modifies_system INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	registered_at TEXT NOT NULL,
	executed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS operation_approvals (
	operation_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	reviewer TEXT NOT NULL,
	approved_at TEXT NOT NULL,
	PRIMARY KEY (operation_id, seq),
	UNIQUE (operation_id, reviewer)
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS operations (
	id BIGINT PRIMARY KEY,
	target TEXT NOT NULL,
	value TEXT NOT NULL,
	payload BYTEA,
	modifies_system BOOLEAN NOT NULL DEFAULT FALSE,
	content_hash TEXT NOT NULL,
	registered_at TEXT NOT NULL,
	executed BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS operation_approvals (
	operation_id BIGINT NOT NULL,
	seq INTEGER NOT NULL,
	reviewer TEXT NOT NULL,
	approved_at TEXT NOT NULL,
	PRIMARY KEY (operation_id, seq),
	UNIQUE (operation_id, reviewer)
);
`

var (
	dialectSQLite = dialect{
		name:   "sqlite",
		schema: sqliteSchema,
		rebind: func(q string) string { return q },
	}
	dialectPostgres = dialect{
		name:   "postgres",
		schema: postgresSchema,
		rebind: rebindNumbered,
	}
)

// rebindNumbered rewrites ? placeholders to $1..$n.
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store using database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLStore wraps an existing database handle. dialectName must be
// "sqlite" or "postgres".
func NewSQLStore(db *sql.DB, dialectName string) (*SQLStore, error) {
	switch dialectName {
	case dialectSQLite.name:
		return &SQLStore{db: db, dialect: dialectSQLite}, nil
	case dialectPostgres.name:
		return &SQLStore{db: db, dialect: dialectPostgres}, nil
	default:
		return nil, fmt.Errorf("store: unknown dialect %q", dialectName)
	}
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	return &SQLStore{db: db, dialect: dialectSQLite}, nil
}

// OpenPostgres connects to a Postgres database.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return &SQLStore{db: db, dialect: dialectPostgres}, nil
}

// Dialect returns the backend name, "sqlite" or "postgres".
func (s *SQLStore) Dialect() string { return s.dialect.name }

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveOperation inserts a freshly registered operation. Approvals and
// the executed flag are written by their own mutations.
func (s *SQLStore) SaveOperation(ctx context.Context, op approval.Operation) error {
	query := s.dialect.rebind(`
		INSERT INTO operations (id, target, value, payload, modifies_system, content_hash, registered_at, executed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	value := "0"
	if op.Value != nil {
		value = op.Value.String()
	}
	_, err := s.db.ExecContext(ctx, query,
		int64(op.ID), op.Target, value, op.Payload, op.ModifiesSystem,
		op.ContentHash, op.RegisteredAt.UTC().Format(time.RFC3339Nano), op.Executed,
	)
	if err != nil {
		return fmt.Errorf("store: insert operation %d: %w", op.ID, err)
	}
	return nil
}

// AddApproval records one granted approval. seq is the position of
// the approval within the operation, starting at 1.
func (s *SQLStore) AddApproval(ctx context.Context, opID uint64, seq int, reviewer string, at time.Time) error {
	query := s.dialect.rebind(`
		INSERT INTO operation_approvals (operation_id, seq, reviewer, approved_at)
		VALUES (?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		int64(opID), seq, reviewer, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: insert approval %s for operation %d: %w", reviewer, opID, err)
	}
	return nil
}

// SetExecuted flips the executed flag of an operation.
func (s *SQLStore) SetExecuted(ctx context.Context, opID uint64) error {
	query := s.dialect.rebind(`UPDATE operations SET executed = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, true, int64(opID))
	if err != nil {
		return fmt.Errorf("store: mark operation %d executed: %w", opID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: check rows affected: %w", err)
	}
	if rows == 0 {
		return approval.ErrNotFound
	}
	return nil
}

// GetOperation loads one operation with its approvals in grant order.
func (s *SQLStore) GetOperation(ctx context.Context, id uint64) (approval.Operation, error) {
	query := s.dialect.rebind(`
		SELECT id, target, value, payload, modifies_system, content_hash, registered_at, executed
		FROM operations
		WHERE id = ?
	`)
	row := s.db.QueryRowContext(ctx, query, int64(id))
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return approval.Operation{}, approval.ErrNotFound
		}
		return approval.Operation{}, err
	}

	approvalsQuery := s.dialect.rebind(`
		SELECT reviewer FROM operation_approvals WHERE operation_id = ? ORDER BY seq
	`)
	rows, err := s.db.QueryContext(ctx, approvalsQuery, int64(id))
	if err != nil {
		return approval.Operation{}, fmt.Errorf("store: load approvals for operation %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var reviewer string
		if err := rows.Scan(&reviewer); err != nil {
			return approval.Operation{}, err
		}
		op.Approvals = append(op.Approvals, reviewer)
	}
	if err := rows.Err(); err != nil {
		return approval.Operation{}, err
	}
	op.ApprovalCount = len(op.Approvals)
	return op, nil
}

// ListOperations loads every operation ordered by id, each with its
// approvals in grant order.
func (s *SQLStore) ListOperations(ctx context.Context) ([]approval.Operation, error) {
	query := `
		SELECT id, target, value, payload, modifies_system, content_hash, registered_at, executed
		FROM operations
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ops := make([]approval.Operation, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		index[op.ID] = len(ops)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	approvalsQuery := `
		SELECT operation_id, reviewer FROM operation_approvals ORDER BY operation_id, seq
	`
	arows, err := s.db.QueryContext(ctx, approvalsQuery)
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer func() { _ = arows.Close() }()

	for arows.Next() {
		var opID int64
		var reviewer string
		if err := arows.Scan(&opID, &reviewer); err != nil {
			return nil, err
		}
		i, ok := index[uint64(opID)]
		if !ok {
			return nil, fmt.Errorf("store: approval references unknown operation %d", opID)
		}
		ops[i].Approvals = append(ops[i].Approvals, reviewer)
	}
	if err := arows.Err(); err != nil {
		return nil, err
	}

	for i := range ops {
		ops[i].ApprovalCount = len(ops[i].Approvals)
	}
	return ops, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (approval.Operation, error) {
	var (
		id             int64
		target         string
		value          string
		payload        []byte
		modifiesSystem bool
		contentHash    string
		registeredAt   string
		executed       bool
	)
	if err := row.Scan(&id, &target, &value, &payload, &modifiesSystem, &contentHash, &registeredAt, &executed); err != nil {
		return approval.Operation{}, err
	}

	parsedValue, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return approval.Operation{}, fmt.Errorf("store: operation %d: invalid value %q", id, value)
	}
	at, err := parseTime(registeredAt)
	if err != nil {
		return approval.Operation{}, fmt.Errorf("store: operation %d: %w", id, err)
	}

	return approval.Operation{
		ID:             uint64(id),
		Target:         target,
		Value:          parsedValue,
		Payload:        payload,
		ModifiesSystem: modifiesSystem,
		ContentHash:    contentHash,
		RegisteredAt:   at,
		Executed:       executed,
	}, nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
