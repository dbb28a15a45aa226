package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/leadgrab/leadgrab/models"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plumber paris", "plumber-paris"},
		{"Plombier Paris 11e", "plombier-paris-11e"},
		{"café & bar!!", "caf-bar-"},
		{"already-slugged", "already-slugged"},
		{"  spaces  everywhere  ", "-spaces-everywhere-"},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugIdempotent(t *testing.T) {
	inputs := []string{"plumber paris", "café & bar!!", "UPPER case", "a--b"}
	for _, in := range inputs {
		once := Slug(in)
		if twice := Slug(once); twice != once {
			t.Errorf("Slug not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

var fileNameRe = regexp.MustCompile(`^[a-z0-9-]+-\d{4}-\d{2}-\d{2}-\d{2}-\d{2}\.json$`)

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 3, 7, 14, 9, 33, 0, time.UTC)

	name := FileName("Plumber Paris", ts)
	if name != "plumber-paris-2025-03-07-14-09.json" {
		t.Errorf("FileName = %q", name)
	}
	if !fileNameRe.MatchString(name) {
		t.Errorf("FileName %q does not match the required shape", name)
	}

	for _, q := range []string{"a", "café & bar", "plumber paris", "x y z 42"} {
		if got := FileName(q, ts); !fileNameRe.MatchString(got) {
			t.Errorf("FileName(%q) = %q does not match the required shape", q, got)
		}
	}
}

func TestWriteRecords(t *testing.T) {
	dir := t.TempDir()
	img := "https://img.example.com/jean.jpg"
	records := []models.Record{
		{Name: "Jean Dupont", Phone: "01 23 45 67 89", Image: &img},
		{Name: "Café Müller", Phone: "01 98 76 54 32"},
	}

	name, err := WriteRecords(dir, "plumber paris", records, time.Date(2025, 3, 7, 14, 9, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if !fileNameRe.MatchString(name) {
		t.Errorf("output name %q does not match the required shape", name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}

	// Non-ASCII must be written literally, not \u-escaped.
	if !strings.Contains(string(raw), "Café Müller") {
		t.Error("non-ASCII characters were escaped in output")
	}
	// 2-space indentation.
	if !strings.Contains(string(raw), "\n  {") {
		t.Error("output is not 2-space indented")
	}
	// Missing image serialized as null, not omitted.
	if !strings.Contains(string(raw), `"image": null`) {
		t.Error("nil image should serialize as null")
	}

	var got []models.Record
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("output is not a JSON array of records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("round-trip returned %d records, want 2", len(got))
	}
	if got[0].Name != "Jean Dupont" || got[1].Phone != "01 98 76 54 32" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestWriteRecordsEmpty(t *testing.T) {
	dir := t.TempDir()

	name, err := WriteRecords(dir, "nothing found", nil, time.Now())
	if err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("empty run should write an empty array, got %q", raw)
	}
}

func TestWriteSnapshotOverwrites(t *testing.T) {
	dir := t.TempDir()

	if err := WriteSnapshot(dir, SnapshotFirstPage, "<html>one</html>"); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if err := WriteSnapshot(dir, SnapshotFirstPage, "<html>two</html>"); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, SnapshotFirstPage))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if string(raw) != "<html>two</html>" {
		t.Errorf("snapshot not overwritten: %q", raw)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{
		"aquery-2025-03-06-10-00.json",
		"aquery-2025-03-07-10-00.json",
		"debug_page_1.html",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("List returned %d files, want 2: %v", len(files), files)
	}
	if files[0] != "aquery-2025-03-07-10-00.json" {
		t.Errorf("List not newest-first: %v", files)
	}
}

func TestListMissingDir(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List on missing dir should not fail: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("List on missing dir returned %v", files)
	}
}
