package dblock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestApplyClause_Suffix(t *testing.T) {
	stmt := Statement{Query: "SELECT id, value FROM a WHERE id = $1"}
	c := LockClause{Mode: ModePessimisticWrite, Suffix: "FOR UPDATE NOWAIT"}
	got := applyClause(stmt, c)
	want := "SELECT id, value FROM a WHERE id = $1 FOR UPDATE NOWAIT"
	if got != want {
		t.Errorf("applyClause = %q, want %q", got, want)
	}
}

func TestApplyClause_HintSplice(t *testing.T) {
	stmt := Statement{Query: "SELECT id FROM a " + HintSlot + " WHERE id = @p1"}
	c := LockClause{Mode: ModePessimisticWrite, Hint: "UPDLOCK, ROWLOCK, NOWAIT"}
	got := applyClause(stmt, c)
	want := "SELECT id FROM a WITH (UPDLOCK, ROWLOCK, NOWAIT) WHERE id = @p1"
	if got != want {
		t.Errorf("applyClause = %q, want %q", got, want)
	}
}

func TestApplyClause_StripsUnusedMarker(t *testing.T) {
	stmt := Statement{Query: "SELECT id FROM a " + HintSlot + " WHERE id = $1"}
	c := LockClause{Mode: ModePessimisticWrite, Suffix: "FOR UPDATE"}
	got := applyClause(stmt, c)
	want := "SELECT id FROM a  WHERE id = $1 FOR UPDATE"
	if got != want {
		t.Errorf("applyClause = %q, want %q", got, want)
	}
}

func TestRunWithDeadline_TimesOut(t *testing.T) {
	const wait = 100 * time.Millisecond

	ctxCh := make(chan context.Context, 1)
	start := time.Now()
	_, err := runWithDeadline(context.Background(), wait, func(ctx context.Context) (*Row, error) {
		ctxCh <- ctx
		// A runner that never yields until cancelled, like a driver
		// waiting on a held row lock.
		<-ctx.Done()
		return nil, ctx.Err()
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got: %v", err)
	}
	if elapsed < wait || elapsed > wait+200*time.Millisecond {
		t.Errorf("deadline fired after %v, requested %v", elapsed, wait)
	}
	// The in-flight statement's context must be cancelled so the
	// connection is left reusable.
	select {
	case ctx := <-ctxCh:
		select {
		case <-ctx.Done():
		default:
			t.Error("statement context was not cancelled")
		}
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}
}

func TestRunWithDeadline_FastResultWins(t *testing.T) {
	want := &Row{Columns: []string{"id"}, Values: []any{int64(1)}}
	row, err := runWithDeadline(context.Background(), time.Second, func(ctx context.Context) (*Row, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != want {
		t.Errorf("row = %+v", row)
	}
}

func TestRunWithDeadline_ErrorPassesThrough(t *testing.T) {
	cause := errors.New("boom")
	_, err := runWithDeadline(context.Background(), time.Second, func(ctx context.Context) (*Row, error) {
		return nil, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to pass through, got: %v", err)
	}
}

func TestRunWithDeadline_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runWithDeadline(parent, time.Minute, func(ctx context.Context) (*Row, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled from parent, got: %v", err)
	}
}
