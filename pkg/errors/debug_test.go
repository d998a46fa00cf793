package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_notifications_idempotency_key_live",
		TableName:      "notifications",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeDuplicateKey, fmt.Errorf("insert: %w", pgErr), "create notification")

	dump := Dump(err)
	if dump.Code != CodeDuplicateKey {
		t.Fatalf("expected duplicate key code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "ux_notifications_idempotency_key_live" {
		t.Fatalf("unexpected pg fields %+v", dump)
	}
	if len(dump.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
	fields := dump.Fields()
	if fields["pg_table"] != "notifications" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
}

func TestDumpExtractsPqDetails(t *testing.T) {
	err := Wrap(CodeStorageUnavailable, &pq.Error{Code: "57P01", Message: "terminating connection"}, "claim due")

	dump := Dump(err)
	if dump.PGCode != "57P01" {
		t.Fatalf("expected pq code, got %q", dump.PGCode)
	}
	if !dump.Retryable {
		t.Fatalf("expected retryable dump")
	}
}

func TestDumpNil(t *testing.T) {
	if got := Dump(nil); got.TopMessage != "" || len(got.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", got)
	}
}
