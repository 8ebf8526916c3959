package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
)

// openTestDB returns a migrated SQLite database in a temp dir.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "ruleset.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := MigrateUp(ctx, db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	return db
}

func TestDataSource(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantPrefix string
		wantErr    bool
	}{
		{url: "sqlite://data/ruleset.db", wantDriver: "sqlite3", wantPrefix: "file:data/ruleset.db?"},
		{url: "sqlite:///var/lib/ruleset.db", wantDriver: "sqlite3", wantPrefix: "file:/var/lib/ruleset.db?"},
		{url: "postgres://u:p@localhost:5432/ruleset?sslmode=disable", wantDriver: "postgres", wantPrefix: "postgres://u:p@localhost"},
		{url: "postgresql://localhost/ruleset", wantDriver: "postgres", wantPrefix: "postgresql://"},
		{url: "mysql://localhost/ruleset", wantErr: true},
		{url: "sqlite://", wantErr: true},
		{url: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := dataSource(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("dataSource(%q) error = nil, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("dataSource(%q) error = %v", tt.url, err)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %s, want %s", driver, tt.wantDriver)
			}
			if !strings.HasPrefix(dsn, tt.wantPrefix) {
				t.Errorf("dsn = %s, want prefix %s", dsn, tt.wantPrefix)
			}
		})
	}
}

func TestDataSource_BusyTimeout(t *testing.T) {
	_, dsn, err := dataSource("sqlite://x.db")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "_busy_timeout=5000") {
		t.Errorf("dsn = %s, want default busy timeout", dsn)
	}

	_, dsn, err = dataSource("sqlite://x.db?_busy_timeout=10")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "_busy_timeout=10") || strings.Contains(dsn, "5000") {
		t.Errorf("dsn = %s, want caller busy timeout kept", dsn)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	if _, err := Open(context.Background(), "mysql://localhost/x"); err == nil {
		t.Error("Open() error = nil, want unsupported scheme error")
	}
}
