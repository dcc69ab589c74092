package integration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a disposable postgres container and returns a
// connected handle plus a teardown func. An error usually means no
// container runtime is available; callers skip in that case.
func startPostgres(ctx context.Context) (*sql.DB, func(), error) {
	container, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("container connection string: %w", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		_ = testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	teardown := func() {
		db.Close()
		_ = testcontainers.TerminateContainer(container)
	}
	return db, teardown, nil
}

func seedSchema(db *sql.DB) error {
	stmts := []string{
		"DROP TABLE IF EXISTS a",
		"CREATE TABLE a (id INTEGER PRIMARY KEY, value TEXT)",
		"INSERT INTO a (id, value) VALUES (1, 'it'), (2, 'other')",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("seed schema: %w", err)
		}
	}
	return nil
}
