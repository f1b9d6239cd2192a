// Package testutil provides shared test infrastructure: a PostgreSQL
// container with pgvector and the project schema applied, ready for
// store, graph, and queue integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer wraps a PostgreSQL test container with a connection
// pool. The schema from db/migrations is already applied.
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, applies the
// migrations, and returns a ready pool. Cleanup is registered on t; tests
// that cannot reach a container runtime should guard with testing.Short.
func SetupTestDB(t *testing.T) *TestDBContainer {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("korpus_test"),
		postgres.WithUsername("korpus_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return &TestDBContainer{Container: pgContainer, Pool: pool, ConnStr: connStr}
}

// applyMigrations executes every up migration from db/migrations in
// filename order, each in its own transaction. Tests apply the SQL
// directly rather than through golang-migrate to keep the container
// bootstrap simple.
func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}

	dir := filepath.Join(root, "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		sql, err := os.ReadFile(path) // #nosec G304 -- paths come from the repo tree
		if err != nil {
			return fmt.Errorf("read migration %s: %w", path, err)
		}
		if len(sql) == 0 {
			continue
		}

		if err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin migration %s: %w", path, err)
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("execute migration %s: %w", path, err)
			}
			return tx.Commit(ctx)
		}(); err != nil {
			return err
		}
	}
	return nil
}

// findProjectRoot walks up from this file to the directory holding go.mod,
// so tests can locate migrations from any package.
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get current file path")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}
