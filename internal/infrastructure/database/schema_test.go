package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-fleet/migrations" // embedded schema
)

// TestEmbeddedSchema applies and rolls back the schema shipped in the binary.
func TestEmbeddedSchema(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMigrated(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "fleetcore.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("OpenMigrated() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	for _, table := range []string{"devices", "audit_logs"} {
		var n int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&n); err != nil || n != 1 {
			t.Errorf("table %s: count=%d err=%v", table, n, err)
		}
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Pending) != 0 || len(status.Applied) == 0 {
		t.Fatalf("status = %d applied, %d pending", len(status.Applied), len(status.Pending))
	}

	for range status.Applied {
		if err := db.MigrateDown(ctx); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after full rollback error = %v", err)
	}
}
