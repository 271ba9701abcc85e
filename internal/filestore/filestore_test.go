package filestore

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), 1<<20, 100)
}

func TestWriteReadTextRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteText("jobs/job-1/a.sql", "SELECT 1;"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got, err := s.ReadText("jobs/job-1/a.sql")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "SELECT 1;" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestReadTextStripsBOM(t *testing.T) {
	s := newTestStore(t)
	abs := filepath.Join(s.Root, "bom.sql")
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("SELECT 1;")...)
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.ReadText("bom.sql")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "SELECT 1;" {
		t.Fatalf("expected BOM stripped, got %q", got)
	}
}

func TestReadTextMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReadText("nope.sql"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing file, got %v", err)
	}
}

func TestIsValidSQLRejectsHiddenAndBackupNames(t *testing.T) {
	s := newTestStore(t)
	cases := []string{"._resource.sql", ".hidden.sql", "backup.sql~", "~backup.sql"}
	for _, name := range cases {
		_ = s.WriteText(name, "SELECT 1;")
		if s.IsValidSQL(name) {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}

func TestIsValidSQLRequiresKeyword(t *testing.T) {
	s := newTestStore(t)
	_ = s.WriteText("notes.sql", "just some prose, no keywords here")
	if s.IsValidSQL("notes.sql") {
		t.Fatalf("expected file without SQL keywords to be rejected")
	}
	_ = s.WriteText("query.sql", "select * from widgets")
	if !s.IsValidSQL("query.sql") {
		t.Fatalf("expected file with lowercase select to be accepted")
	}
}

func TestExpandArchiveFiltersInvalidMembers(t *testing.T) {
	s := newTestStore(t)
	archiveAbs := filepath.Join(s.Root, "upload.zip")
	f, err := os.Create(archiveAbs)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	writeEntry(t, zw, "a.sql", "SELECT 1;")
	writeEntry(t, zw, "._a.sql", "SELECT 1;")
	writeEntry(t, zw, "readme.txt", "no keywords")
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	f.Close()

	_, valid, err := s.ExpandArchive("upload.zip", "jobs/job-1/sources")
	if err != nil {
		t.Fatalf("ExpandArchive: %v", err)
	}
	if len(valid) != 1 || filepath.Base(valid[0]) != "a.sql" {
		t.Fatalf("expected only a.sql to be valid, got %v", valid)
	}
}

func TestExpandArchiveRejectsTooManyEntries(t *testing.T) {
	s := newTestStore(t)
	s.MaxArchiveEntries = 1
	archiveAbs := filepath.Join(s.Root, "upload.zip")
	f, _ := os.Create(archiveAbs)
	zw := zip.NewWriter(f)
	writeEntry(t, zw, "a.sql", "SELECT 1;")
	writeEntry(t, zw, "b.sql", "SELECT 2;")
	zw.Close()
	f.Close()

	if _, _, err := s.ExpandArchive("upload.zip", "jobs/job-1/sources"); err == nil {
		t.Fatalf("expected error for archive exceeding entry cap")
	}
}

func TestExpandArchiveRejectsCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteText("bad.zip", "not a zip"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if _, _, err := s.ExpandArchive("bad.zip", "jobs/job-1/sources"); err == nil {
		t.Fatalf("expected error for corrupt archive")
	}
}

func writeEntry(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("create entry %s: %v", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write entry %s: %v", name, err)
	}
}
