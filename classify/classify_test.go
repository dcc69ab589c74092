package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func TestClassify_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		raw  RawFailure
		want Kind
	}{
		{"postgres nowait", RawFailure{Backend: "postgres", SQLState: "55P03"}, KindLockNotAvailable},
		{"postgres deadlock", RawFailure{Backend: "postgres", SQLState: "40P01"}, KindDeadlock},
		{"postgres statement timeout", RawFailure{Backend: "postgres", SQLState: "57014"}, KindTimeout},
		{"mysql lock wait timeout", RawFailure{Backend: "mysql", Code: 1205}, KindTimeout},
		{"mysql nowait", RawFailure{Backend: "mysql", Code: 3572}, KindLockNotAvailable},
		{"mysql deadlock", RawFailure{Backend: "mysql", Code: 1213}, KindDeadlock},
		{"oracle resource busy", RawFailure{Backend: "oracle", Code: 54}, KindLockNotAvailable},
		{"oracle wait expired", RawFailure{Backend: "oracle", Code: 30006}, KindTimeout},
		{"oracle deadlock", RawFailure{Backend: "oracle", Code: 60}, KindDeadlock},
		{"sqlserver lock timeout", RawFailure{Backend: "sqlserver", Code: 1222}, KindTimeout},
		{"sqlserver deadlock victim", RawFailure{Backend: "sqlserver", Code: 1205}, KindDeadlock},
		{"sqlite busy", RawFailure{Backend: "sqlite", Code: 5}, KindLockNotAvailable},
		{"sqlite locked", RawFailure{Backend: "sqlite", Code: 6}, KindLockNotAvailable},
		{"unrelated postgres error", RawFailure{Backend: "postgres", SQLState: "23505"}, KindUnclassified},
		{"unrelated mysql error", RawFailure{Backend: "mysql", Code: 1062}, KindUnclassified},
		{"wrong backend for code", RawFailure{Backend: "postgres", Code: 1205}, KindUnclassified},
		{"empty record", RawFailure{Backend: "postgres"}, KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.raw); got != tt.want {
				t.Errorf("Classify(%+v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify_IgnoresMessageText(t *testing.T) {
	// Classification is driven by structured codes only; the message is
	// free to lie.
	raw := RawFailure{
		Backend:  "postgres",
		SQLState: "55P03",
		Message:  "deadlock detected",
	}
	if got := Classify(raw); got != KindLockNotAvailable {
		t.Errorf("Classify = %v, want KindLockNotAvailable regardless of message", got)
	}
}

func TestClassify_ClientDeadline(t *testing.T) {
	raw := RawFailure{
		Backend: "postgres",
		Cause:   fmt.Errorf("query row: %w", context.DeadlineExceeded),
	}
	if got := Classify(raw); got != KindTimeout {
		t.Errorf("Classify = %v, want KindTimeout for exceeded deadline", got)
	}

	raw.Cause = context.Canceled
	if got := Classify(raw); got != KindTimeout {
		t.Errorf("Classify = %v, want KindTimeout for cancellation", got)
	}
}

func TestParse_PQError(t *testing.T) {
	err := fmt.Errorf("exec: %w", &pq.Error{
		Code:    "55P03",
		Message: "could not obtain lock on row",
	})
	f := Parse("postgres", err)
	if f.SQLState != "55P03" {
		t.Errorf("SQLState = %q, want 55P03", f.SQLState)
	}
	if Classify(f) != KindLockNotAvailable {
		t.Errorf("expected lock-not-available from wrapped pq error")
	}
}

func TestParse_MySQLError(t *testing.T) {
	err := fmt.Errorf("exec: %w", &mysql.MySQLError{
		Number:  3572,
		Message: "Statement aborted because lock(s) could not be acquired",
	})
	f := Parse("mysql", err)
	if f.Code != 3572 {
		t.Errorf("Code = %d, want 3572", f.Code)
	}
	if Classify(f) != KindLockNotAvailable {
		t.Errorf("expected lock-not-available from wrapped mysql error")
	}
}

func TestParse_MattnSQLiteError(t *testing.T) {
	err := fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	f := Parse("sqlite", err)
	if f.Code != 5 {
		t.Errorf("Code = %d, want 5", f.Code)
	}
	if Classify(f) != KindLockNotAvailable {
		t.Errorf("expected lock-not-available from SQLITE_BUSY")
	}
}

// codedErr mimics modernc.org/sqlite errors, which expose the result
// code through a method.
type codedErr struct{ code int }

func (e *codedErr) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e *codedErr) Code() int     { return e.code }

func TestParse_CodeMethodError(t *testing.T) {
	err := fmt.Errorf("query: %w", &codedErr{code: 6})
	f := Parse("sqlite", err)
	if f.Code != 6 {
		t.Errorf("Code = %d, want 6", f.Code)
	}
	if Classify(f) != KindLockNotAvailable {
		t.Errorf("expected lock-not-available from SQLITE_LOCKED")
	}
}

func TestParse_UnknownErrorStaysUnclassified(t *testing.T) {
	cause := errors.New("connection reset by peer")
	f := Parse("postgres", cause)
	if f.SQLState != "" || f.Code != 0 {
		t.Errorf("unexpected structured fields: %+v", f)
	}
	if !errors.Is(f.Cause, cause) {
		t.Error("cause must be preserved for diagnosability")
	}
	if Classify(f) != KindUnclassified {
		t.Error("unrelated failures must stay unclassified")
	}
}
