package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestLoadMigrationsOrdersAndChecksums(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.up.sql":  "SELECT 2;",
		"0001_first.up.sql":   "SELECT 1;",
		"0001_first.down.sql": "SELECT 0;",
		"notes.txt":           "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) != 2 || migrations[0].version != "0001_first.up.sql" || migrations[1].version != "0002_second.up.sql" {
		t.Fatalf("unexpected migrations %+v", migrations)
	}
	if len(migrations[0].checksum) != 64 || migrations[0].checksum == migrations[1].checksum {
		t.Fatalf("unexpected checksums %q %q", migrations[0].checksum, migrations[1].checksum)
	}

	again, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("reload migrations: %v", err)
	}
	if again[0].checksum != migrations[0].checksum {
		t.Fatalf("checksum is not stable")
	}
}
