package migrate_test

import (
	"testing"

	"pulseboard/internal/db"
	"pulseboard/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	v, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 1 {
		t.Fatalf("version = %d, want at least 1", v)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("rerun migrate: %v", err)
	}
	again, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version after rerun: %v", err)
	}
	if again != v {
		t.Fatalf("rerun changed version %d -> %d", v, again)
	}

	// schema is usable after migration
	if _, err := conn.Exec(`INSERT INTO members(id,name) VALUES ('m1','alice')`); err != nil {
		t.Fatalf("insert into migrated schema: %v", err)
	}
}
