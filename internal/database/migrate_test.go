package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

func readMigrations(t *testing.T, pattern string) map[string]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(migrationsDir(t), pattern))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		out[filepath.Base(f)] = string(data)
	}
	return out
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	for name := range readMigrations(t, "*.up.sql") {
		down := strings.Replace(name, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(filepath.Join(migrationsDir(t), down)); err != nil {
			t.Errorf("missing down migration for %s", name)
		}
	}
}

// TestMigrations_CreateIsIdempotent guards shop databases that already have
// the order tables.
func TestMigrations_CreateIsIdempotent(t *testing.T) {
	create := regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(\S+)`)
	for name, sql := range readMigrations(t, "*.up.sql") {
		for _, m := range create.FindAllStringSubmatch(sql, -1) {
			if !strings.EqualFold(m[1], "IF") {
				t.Errorf("%s: CREATE TABLE %s without IF NOT EXISTS", name, m[1])
			}
		}
	}
}

// TestMigrations_StatusIsFreeForm checks that no status column is an ENUM.
// Stores add their own statuses to the catalog without a schema change.
func TestMigrations_StatusIsFreeForm(t *testing.T) {
	enum := regexp.MustCompile(`(?i)\bstatus\s+ENUM\b`)
	for name, sql := range readMigrations(t, "*.up.sql") {
		if enum.MatchString(sql) {
			t.Errorf("%s: status must be a VARCHAR, not an ENUM", name)
		}
	}
}

// TestMigrations_OrderLogColumns checks that order_logs has every column the
// repository selects.
func TestMigrations_OrderLogColumns(t *testing.T) {
	columns := []string{
		"id", "order_id", "status", "title", "note", "changes", "public", "unread", "first_read",
		"automated", "send", "sent", "send_to", "send_from", "send_subject", "send_body", "send_hide_order",
		"dispatch_ticket", "dispatched_by", "dispatched_on", "dispatch_uri", "author_id", "created_at",
	}

	var table string
	for _, sql := range readMigrations(t, "*.up.sql") {
		if i := strings.Index(sql, "CREATE TABLE IF NOT EXISTS order_logs"); i >= 0 {
			table = sql[i:]
			if end := strings.Index(table, ";"); end >= 0 {
				table = table[:end]
			}
		}
	}
	if table == "" {
		t.Fatal("no migration creates order_logs")
	}

	for _, col := range columns {
		pattern := regexp.MustCompile(`(?m)^\s+` + col + `\s`)
		if !pattern.MatchString(table) {
			t.Errorf("order_logs is missing column %s", col)
		}
	}
	if !strings.Contains(table, "(order_id, status, created_at)") {
		t.Error("order_logs needs an (order_id, status, created_at) index")
	}
}
