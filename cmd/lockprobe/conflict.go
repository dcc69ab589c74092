package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/dblock"
)

var conflictFlags struct {
	driver  string
	dsn     string
	backend string
	noWait  bool
	waitMS  int
	window  time.Duration
	keep    bool
}

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Run a two-session lock conflict probe against a live database",
	Long: `conflict opens two sessions against the target database. Session A
locks a probe row with PESSIMISTIC_WRITE and keeps its transaction open.
Session B then requests the same lock and its outcome is reported: an
immediate rejection, a timeout, or blocked if it is still waiting when
the observation window closes. Session A then commits and B's final
outcome is reported.`,
	RunE: runConflict,
}

func init() {
	f := conflictCmd.Flags()
	f.StringVar(&conflictFlags.driver, "driver", "postgres", "database/sql driver name")
	f.StringVar(&conflictFlags.dsn, "dsn", "", "connection string (required)")
	f.StringVar(&conflictFlags.backend, "backend", "postgres", "backend id for capability lookup")
	f.BoolVar(&conflictFlags.noWait, "nowait", false, "session B requests NO_WAIT")
	f.IntVar(&conflictFlags.waitMS, "wait-millis", 0, "session B waits this many milliseconds")
	f.DurationVar(&conflictFlags.window, "window", 2*time.Second, "observation window before reporting blocked")
	f.BoolVar(&conflictFlags.keep, "keep", false, "keep the probe table afterwards")
	conflictCmd.MarkFlagRequired("dsn")
}

const probeTable = "dblock_probe"

func runConflict(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := cmd.Context()

	db, err := sql.Open(conflictFlags.driver, conflictFlags.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	mgr, err := dblock.New(db, conflictFlags.backend, dblock.WithLogger(log))
	if err != nil {
		return err
	}

	if err := setupProbeRow(ctx, db); err != nil {
		return err
	}
	if !conflictFlags.keep {
		defer db.Exec("DROP TABLE " + probeTable)
	}

	id := dblock.Identity{Table: probeTable, KeyColumn: "id", Key: 1}

	// Session A: take and hold the exclusive lock.
	sessionA, err := mgr.Begin(ctx)
	if err != nil {
		return err
	}
	defer sessionA.Rollback()

	outcome, err := sessionA.Lock(ctx, id, dblock.LockRequest{Mode: dblock.ModePessimisticWrite})
	if err != nil {
		return fmt.Errorf("session A lock: %w", err)
	}
	fmt.Printf("session A: %s\n", outcome)
	if outcome != dblock.OutcomeAcquired {
		return fmt.Errorf("session A could not acquire the probe lock")
	}

	req := dblock.LockRequest{Mode: dblock.ModePessimisticWrite}
	switch {
	case conflictFlags.noWait:
		req.Wait = dblock.WaitNone
	case conflictFlags.waitMS > 0:
		req.Wait = dblock.WaitWithTimeout
		req.WaitFor = time.Duration(conflictFlags.waitMS) * time.Millisecond
	}

	// Session B: contend, observed from outside so an indefinite block
	// is reportable instead of hanging the probe.
	type probeResult struct {
		outcome dblock.Outcome
		elapsed time.Duration
		err     error
	}
	results := make(chan probeResult, 1)
	go func() {
		sessionB, err := mgr.Begin(ctx)
		if err != nil {
			results <- probeResult{err: err}
			return
		}
		defer sessionB.Rollback()
		start := time.Now()
		outcome, err := sessionB.Lock(ctx, id, req)
		results <- probeResult{outcome: outcome, elapsed: time.Since(start), err: err}
	}()

	blocked := false
	select {
	case r := <-results:
		reportB(r.outcome, r.elapsed, r.err)
	case <-time.After(conflictFlags.window):
		blocked = true
		fmt.Printf("session B: %s (still waiting after %v)\n", dblock.OutcomeBlocked, conflictFlags.window)
	}

	if err := sessionA.Commit(); err != nil {
		return fmt.Errorf("session A commit: %w", err)
	}
	fmt.Println("session A: committed")

	if blocked {
		// The holder is gone; B should resolve now.
		select {
		case r := <-results:
			reportB(r.outcome, r.elapsed, r.err)
		case <-time.After(conflictFlags.window):
			return fmt.Errorf("session B still blocked after the holder committed")
		}
	}
	return nil
}

func reportB(outcome dblock.Outcome, elapsed time.Duration, err error) {
	if err != nil {
		fmt.Printf("session B: error after %v: %v\n", elapsed.Round(time.Millisecond), err)
		return
	}
	fmt.Printf("session B: %s after %v\n", outcome, elapsed.Round(time.Millisecond))
}

func setupProbeRow(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS "+probeTable+" (id INTEGER PRIMARY KEY, value VARCHAR(64))"); err != nil {
		return fmt.Errorf("create probe table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+probeTable); err != nil {
		return fmt.Errorf("reset probe table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO "+probeTable+" (id, value) VALUES (1, 'probe')"); err != nil {
		return fmt.Errorf("insert probe row: %w", err)
	}
	return nil
}
