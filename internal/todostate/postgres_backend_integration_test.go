package todostate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var postgresIntegrationCounter uint64

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TODOSYNC_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("TODOSYNC_POSTGRES_TEST_DSN not set; skipping postgres integration test")
	}
	return dsn
}

func postgresIntegrationTableName(prefix string) string {
	n := atomic.AddUint64(&postgresIntegrationCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, os.Getpid(), n)
}

func postgresIntegrationDropTable(t *testing.T, dsn, tableName string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Logf("cleanup: open failed: %v", err)
		return
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteSQLIdentifier(tableName)); err != nil {
		t.Logf("cleanup: drop failed: %v", err)
	}
}

func TestPostgresIntegrationStateBackendRoundTrip(t *testing.T) {
	dsn := postgresIntegrationDSN(t)

	backend, err := NewPostgresStateBackend(dsn)
	if err != nil {
		t.Fatalf("new postgres state backend: %v", err)
	}
	pg, ok := backend.(*PostgresStateBackend)
	if !ok {
		t.Fatalf("expected *PostgresStateBackend, got %T", backend)
	}
	pg.tableName = postgresIntegrationTableName("todosync_state_it")
	t.Cleanup(func() {
		_ = pg.Close()
		postgresIntegrationDropTable(t, dsn, pg.tableName)
	})

	if value, err := backend.Get("tasks"); err != nil || value != nil {
		t.Fatalf("fresh table must yield nil,nil; got %v,%v", value, err)
	}

	if err := backend.Set("tasks", []byte(`[{"id":1,"title":"a"}]`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := backend.Set("tasks", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	value, err := backend.Get("tasks")
	if err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	}
	if string(value) != "[]" {
		t.Fatalf("expected overwritten payload, got %q", value)
	}

	if err := backend.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := backend.Clear(); err != nil {
		t.Fatalf("clearing an empty namespace must not fail: %v", err)
	}
	if value, _ := backend.Get("tasks"); value != nil {
		t.Fatalf("expected empty namespace after clear")
	}
}
