package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("docs")},
		"notes.sql":      {Data: []byte("SELECT 0;")},
		"abc_bad.sql":    {Data: []byte("SELECT 0;")},
	}

	migs, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 {
		t.Errorf("migrations not sorted: %+v", migs)
	}
	if migs[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL %q", migs[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadMigrations(files); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := LoadMigrations(Migrations())
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("expected embedded migrations")
	}
	sql := migs[0].SQL
	for _, want := range []string{
		"btree_gist",
		"reservations_doctor_no_overlap",
		"availability_windows_no_overlap",
		"notification_records_reminder_once",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("initial migration missing %q", want)
		}
	}
}
