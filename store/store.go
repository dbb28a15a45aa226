// Package store persists run output and diagnostic snapshots to the data
// directory. One JSON file per run; snapshots use fixed names and are
// overwritten on each run.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/leadgrab/leadgrab/models"
)

// Snapshot file names. Fixed so each run overwrites the previous one.
const (
	SnapshotFirstPage = "debug_page_1.html"
	SnapshotBlocked   = "blocked_page.html"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9-]+`)

// Slug lower-cases q and collapses every run of characters outside
// [a-z0-9-] into a single hyphen. Applying Slug to its own output is a
// no-op.
func Slug(q string) string {
	return nonSlugRe.ReplaceAllString(strings.ToLower(q), "-")
}

// FileName builds the run output file name: <slug>-<YYYY-MM-DD-HH-mm>.json.
func FileName(query string, t time.Time) string {
	return fmt.Sprintf("%s-%s.json", Slug(query), t.Format("2006-01-02-15-04"))
}

// WriteRecords serializes records as a JSON array to a timestamped file
// under dir and returns the file name. The array is written even when
// empty. Output is 2-space indented UTF-8 with non-ASCII characters left
// unescaped.
//
// Disk failures propagate to the caller: by the time serialization runs the
// scrape is over, so there is nothing to salvage by swallowing them.
func WriteRecords(dir, query string, records []models.Record, t time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create data dir: %w", err)
	}

	if records == nil {
		records = []models.Record{}
	}

	name := FileName(query, t)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("store: create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("store: encode records: %w", err)
	}
	return name, nil
}

// WriteSnapshot dumps raw rendered markup under a fixed name for
// diagnostics. Best-effort: the caller logs the returned error and moves on.
func WriteSnapshot(dir, name, rawHTML string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create data dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(rawHTML), 0o644); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// List returns the run output files in dir, newest first by name.
// Snapshots and anything that is not a .json file are excluded.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("store: read data dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}
