package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/migrations/0002_add_indexes.up.sql":   migrationFile("CREATE INDEX idx ON t (a);"),
		"sql/migrations/0002_add_indexes.down.sql": migrationFile("DROP INDEX idx;"),
		"sql/migrations/0001_init.up.sql":          migrationFile("CREATE TABLE t (a INT);"),
		"sql/migrations/0001_init.down.sql":        migrationFile("DROP TABLE t;"),
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	// Отсортированы по версии.
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Fatalf("unexpected order: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "init" || migrations[1].Name != "add_indexes" {
		t.Fatalf("unexpected names: %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if !strings.Contains(migrations[0].UpSQL, "CREATE TABLE") || !strings.Contains(migrations[0].DownSQL, "DROP TABLE") {
		t.Fatalf("unexpected bodies: %q / %q", migrations[0].UpSQL, migrations[0].DownSQL)
	}
}

func TestLoadMigrationsRejectsOrphans(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": migrationFile("CREATE TABLE t (a INT);"),
	}

	if _, err := loadMigrationsFromFS(fsys); err == nil {
		t.Fatal("expected error for missing down migration")
	}
}

func TestLoadMigrationsRejectsBadNames(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/migrations/init.up.sql":        migrationFile("SELECT 1;"),
		"sql/migrations/0001_init.down.sql": migrationFile("SELECT 1;"),
	}

	if _, err := loadMigrationsFromFS(fsys); err == nil {
		t.Fatal("expected error for unversioned file name")
	}
}

func TestLoadMigrationsRejectsEmptyBody(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql":   migrationFile("   \n"),
		"sql/migrations/0001_init.down.sql": migrationFile("DROP TABLE t;"),
	}

	if _, err := loadMigrationsFromFS(fsys); err == nil {
		t.Fatal("expected error for empty migration body")
	}
}

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	prev := int64(0)
	for _, m := range migrations {
		if m.Version <= prev {
			t.Fatalf("versions must be strictly increasing, got %d after %d", m.Version, prev)
		}
		prev = m.Version
	}
}
