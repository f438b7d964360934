package database

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	coreconfig "github.com/m3rciful/gatekeeper/core/config"
)

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_usage.up.sql", "0003_index.up.sql"}
	got := selectApplied(files, 1, 3)
	want := []string{"0002_usage.up.sql", "0003_index.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("selectApplied = %v, want %v", got, want)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("expected nothing applied, got %v", got)
	}
}

func TestListMigrationFilesSkipsDown(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got := listMigrationFiles(dir)
	want := []string{"0001_a.up.sql", "0002_b.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("listMigrationFiles = %v, want %v", got, want)
	}
}

func TestDSNs(t *testing.T) {
	cfg := coreconfig.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "gate", SSLMode: "disable",
	}
	if got := URLDSN(cfg); got != "postgres://bot:p%40ss@db:5432/gate?sslmode=disable" {
		t.Fatalf("URLDSN = %s", got)
	}
	if got := KeywordDSN(cfg); got != "user=bot password=p@ss host=db port=5432 dbname=gate sslmode=disable" {
		t.Fatalf("KeywordDSN = %s", got)
	}
}
