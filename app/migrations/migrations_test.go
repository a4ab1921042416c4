package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			t.Fatalf("missing down migration for %s", base)
		}
	}
	if len(ups) != len(downs) {
		t.Fatalf("unbalanced migrations: %d up, %d down", len(ups), len(downs))
	}
}

func TestDownRejectsNonPositiveSteps(t *testing.T) {
	if err := Down(nil, 0); err == nil {
		t.Fatal("expected error for zero steps")
	}
}
