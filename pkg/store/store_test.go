package store

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

func newMockStore(t *testing.T, dialectName string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := NewSQLStore(db, dialectName)
	if err != nil {
		t.Fatalf("unexpected dialect error: %s", err)
	}
	return st, mock
}

func TestRebindNumbered(t *testing.T) {
	got := rebindNumbered("INSERT INTO t (a, b, c) VALUES (?, ?, ?)")
	want := "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"
	if got != want {
		t.Errorf("rebind mismatch: got %q want %q", got, want)
	}
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %s", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := NewSQLStore(db, "oracle"); err == nil {
		t.Error("expected an error for an unknown dialect")
	}
}

func TestSQLStore_Init(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS operations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.Init(context.Background()); err != nil {
		t.Errorf("error was not expected while migrating: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestSQLStore_SaveOperation(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")
	registered := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	op := approval.Operation{
		ID:             1,
		Target:         "0xdead",
		Value:          big.NewInt(100),
		Payload:        []byte("wire"),
		ModifiesSystem: true,
		ContentHash:    "sha256:aa",
		RegisteredAt:   registered,
	}

	mock.ExpectExec("INSERT INTO operations").
		WithArgs(int64(1), "0xdead", "100", []byte("wire"), true, "sha256:aa",
			registered.Format(time.RFC3339Nano), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := st.SaveOperation(context.Background(), op); err != nil {
		t.Errorf("error was not expected while saving: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestSQLStore_SaveOperation_NilValue(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")
	registered := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO operations").
		WithArgs(int64(2), "0xdead", "0", []byte(nil), false, "sha256:bb",
			registered.Format(time.RFC3339Nano), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	op := approval.Operation{ID: 2, Target: "0xdead", ContentHash: "sha256:bb", RegisteredAt: registered}
	if err := st.SaveOperation(context.Background(), op); err != nil {
		t.Errorf("error was not expected while saving: %s", err)
	}
}

func TestSQLStore_AddApproval(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")
	at := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO operation_approvals").
		WithArgs(int64(1), 2, "bob", at.Format(time.RFC3339Nano)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := st.AddApproval(context.Background(), 1, 2, "bob", at); err != nil {
		t.Errorf("error was not expected while adding approval: %s", err)
	}
}

func TestSQLStore_SetExecuted(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	mock.ExpectExec("UPDATE operations SET executed").
		WithArgs(true, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SetExecuted(context.Background(), 1); err != nil {
		t.Errorf("error was not expected while marking executed: %s", err)
	}
}

func TestSQLStore_SetExecuted_Missing(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	mock.ExpectExec("UPDATE operations SET executed").
		WithArgs(true, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.SetExecuted(context.Background(), 9)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_GetOperation(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	opRows := sqlmock.NewRows([]string{
		"id", "target", "value", "payload", "modifies_system", "content_hash", "registered_at", "executed",
	}).AddRow(int64(1), "0xdead", "340282366920938463463374607431768211456", []byte("wire"),
		true, "sha256:aa", "2026-03-14T09:00:00Z", true)

	mock.ExpectQuery("SELECT id, target, value, payload, modifies_system, content_hash, registered_at, executed").
		WithArgs(int64(1)).
		WillReturnRows(opRows)

	approvalRows := sqlmock.NewRows([]string{"reviewer"}).
		AddRow("alice").
		AddRow("bob")
	mock.ExpectQuery("SELECT reviewer FROM operation_approvals").
		WithArgs(int64(1)).
		WillReturnRows(approvalRows)

	op, err := st.GetOperation(context.Background(), 1)
	if err != nil {
		t.Fatalf("error was not expected while loading: %s", err)
	}

	if op.ID != 1 || op.Target != "0xdead" || !op.ModifiesSystem || !op.Executed {
		t.Errorf("operation fields not restored: %+v", op)
	}
	if op.Value.String() != "340282366920938463463374607431768211456" {
		t.Errorf("value precision lost: %s", op.Value)
	}
	if op.ApprovalCount != 2 || len(op.Approvals) != 2 || op.Approvals[0] != "alice" || op.Approvals[1] != "bob" {
		t.Errorf("approvals not restored in order: %+v", op.Approvals)
	}
	want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if !op.RegisteredAt.Equal(want) {
		t.Errorf("registered_at mismatch: %s", op.RegisteredAt)
	}
}

func TestSQLStore_GetOperation_NotFound(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	mock.ExpectQuery("SELECT id, target, value").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "target", "value", "payload", "modifies_system", "content_hash", "registered_at", "executed",
		}))

	_, err := st.GetOperation(context.Background(), 42)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_GetOperation_BadValue(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	rows := sqlmock.NewRows([]string{
		"id", "target", "value", "payload", "modifies_system", "content_hash", "registered_at", "executed",
	}).AddRow(int64(1), "0xdead", "not-a-number", nil, false, "sha256:aa", "2026-03-14T09:00:00Z", false)

	mock.ExpectQuery("SELECT id, target, value").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	if _, err := st.GetOperation(context.Background(), 1); err == nil {
		t.Error("expected an error for a malformed value column")
	}
}

func TestSQLStore_ListOperations(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	opRows := sqlmock.NewRows([]string{
		"id", "target", "value", "payload", "modifies_system", "content_hash", "registered_at", "executed",
	}).
		AddRow(int64(1), "0xA", "100", []byte("p"), false, "sha256:aa", "2026-03-14T09:00:00Z", true).
		AddRow(int64(2), "0xB", "7", nil, true, "sha256:bb", "2026-03-14T09:01:00Z", false)
	mock.ExpectQuery("SELECT id, target, value, payload").
		WillReturnRows(opRows)

	approvalRows := sqlmock.NewRows([]string{"operation_id", "reviewer"}).
		AddRow(int64(1), "alice").
		AddRow(int64(1), "bob").
		AddRow(int64(2), "carol")
	mock.ExpectQuery("SELECT operation_id, reviewer FROM operation_approvals").
		WillReturnRows(approvalRows)

	ops, err := st.ListOperations(context.Background())
	if err != nil {
		t.Fatalf("error was not expected while listing: %s", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if ops[0].ApprovalCount != 2 || ops[1].ApprovalCount != 1 {
		t.Errorf("approval counts not rebuilt: %d, %d", ops[0].ApprovalCount, ops[1].ApprovalCount)
	}
	if ops[1].Approvals[0] != "carol" {
		t.Errorf("approvals attached to wrong operation: %+v", ops[1].Approvals)
	}
}

func TestSQLStore_ListOperations_OrphanApproval(t *testing.T) {
	st, mock := newMockStore(t, "sqlite")

	mock.ExpectQuery("SELECT id, target, value, payload").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "target", "value", "payload", "modifies_system", "content_hash", "registered_at", "executed",
		}))
	mock.ExpectQuery("SELECT operation_id, reviewer FROM operation_approvals").
		WillReturnRows(sqlmock.NewRows([]string{"operation_id", "reviewer"}).AddRow(int64(5), "alice"))

	if _, err := st.ListOperations(context.Background()); err == nil {
		t.Error("expected an error for an approval without its operation")
	}
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %s", err)
	}
	defer func() { _ = db.Close() }()

	st, err := NewSQLStore(db, "postgres")
	if err != nil {
		t.Fatalf("unexpected dialect error: %s", err)
	}

	mock.ExpectExec("UPDATE operations SET executed = $1 WHERE id = $2").
		WithArgs(true, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SetExecuted(context.Background(), 3); err != nil {
		t.Errorf("error was not expected: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}
