package snapshot

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "state", "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalog_ListsNewestFirst(t *testing.T) {
	c := openTestCatalog(t)

	older := testMetadata()
	older.ExportedAt = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	newer := testMetadata()
	newer.Environment = "staging"
	newer.ExportedAt = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := c.Record("/srv/snaps/a.tar.gz", older); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record("/srv/snaps/b.tar.gz", newer); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Path != "/srv/snaps/b.tar.gz" {
		t.Errorf("first entry = %q, want newest", entries[0].Path)
	}
	if !entries[0].ExportedAt.Equal(newer.ExportedAt) {
		t.Errorf("ExportedAt = %v, want %v", entries[0].ExportedAt, newer.ExportedAt)
	}
}

func TestCatalog_FiltersByEnvironment(t *testing.T) {
	c := openTestCatalog(t)

	dev := testMetadata()
	staging := testMetadata()
	staging.Environment = "staging"
	if err := c.Record("/srv/snaps/dev.tar.gz", dev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record("/srv/snaps/staging.tar.gz", staging); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := c.List("staging")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/srv/snaps/staging.tar.gz" {
		t.Fatalf("filtered entries = %+v, want only staging", entries)
	}
}

func TestCatalog_RecordUpsertsOnPath(t *testing.T) {
	c := openTestCatalog(t)

	meta := testMetadata()
	if err := c.Record("/srv/snaps/a.tar.gz", meta); err != nil {
		t.Fatalf("Record: %v", err)
	}
	meta.NodeCount = 99
	if err := c.Record("/srv/snaps/a.tar.gz", meta); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 after upsert", len(entries))
	}
	if entries[0].NodeCount != 99 {
		t.Errorf("NodeCount = %d, want 99", entries[0].NodeCount)
	}
}

func TestCatalog_DeleteRemovesEntry(t *testing.T) {
	c := openTestCatalog(t)

	if err := c.Record("/srv/snaps/a.tar.gz", testMetadata()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Delete("/srv/snaps/a.tar.gz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want none after delete", entries)
	}
}

func TestCatalog_CloseIsNilSafe(t *testing.T) {
	var c *Catalog
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil catalog: %v", err)
	}
}
