package shared

import (
	"testing"
	"testing/fstest"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations(migrationFiles, "sql")
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("loadMigrations Incomplete", func(t *testing.T) {
		fsys := fstest.MapFS{
			"sql/0000_create_things_up.sql": {Data: []byte("CREATE TABLE things (id TEXT);")},
			"sql/README.md":                 {Data: []byte("ignored")},
		}
		if _, err := loadMigrations(fsys, "sql"); err == nil {
			t.Error("expected error for migration without down script")
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"sessions", "predictions"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		version, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read current version: %v", err)
		}
		if version != 1 {
			t.Errorf("expected version 1, got %d", version)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}

		if _, err := db.Exec("SELECT 1 FROM predictions LIMIT 1"); err == nil {
			t.Error("predictions table should be dropped after rollback")
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations(migrationFiles, "sql")
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("splitStatements", func(t *testing.T) {
		script := "-- header\nCREATE TABLE a (id TEXT);\n\n-- trailing\nCREATE INDEX i ON a(id);\n"
		stmts := splitStatements(script)
		if len(stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
		}
		if stmts[0] != "CREATE TABLE a (id TEXT)" {
			t.Errorf("unexpected first statement %q", stmts[0])
		}
	})

	t.Run("OpenDatabase", func(t *testing.T) {
		db, err := OpenDatabase(DatabaseConfig{Path: ":memory:"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer db.Close()

		if v, err := CurrentVersion(db); err != nil || v != 1 {
			t.Errorf("expected migrated database at version 1, got %d, %v", v, err)
		}
	})
}
