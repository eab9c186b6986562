package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLocalStoragePutGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	ctx := context.Background()
	key := ReportKey(uuid.MustParse("3f2b8c1e-0000-4000-8000-000000000001"), "md")

	stored, err := s.Put(ctx, key, "text/markdown", strings.NewReader("# Report"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if stored != key {
		t.Errorf("expected key %s, got %s", key, stored)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "# Report" {
		t.Errorf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalStorageKeysStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "root"))
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	stored, err := s.Put(context.Background(), "../../escape.md", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if stored != "escape.md" {
		t.Errorf("expected cleaned key escape.md, got %s", stored)
	}
	if _, err := os.Stat(filepath.Join(dir, "root", "escape.md")); err != nil {
		t.Errorf("expected object inside the storage root: %v", err)
	}
}

func TestReportKey(t *testing.T) {
	id := uuid.MustParse("3f2b8c1e-0000-4000-8000-000000000001")
	if got := ReportKey(id, ".json"); got != "reports/3f/3f2b8c1e-0000-4000-8000-000000000001/report.json" {
		t.Errorf("unexpected key %s", got)
	}
	if got := contentTypeFor(ReportKey(id, "md")); !strings.HasPrefix(got, "text/markdown") {
		t.Errorf("unexpected content type %s", got)
	}
}

func TestS3ObjectKeyPrefix(t *testing.T) {
	s := &S3Storage{bucket: "reports"}
	if got := s.objectKey("reports/3f/id/report.md"); got != "reports/3f/id/report.md" {
		t.Errorf("unexpected key without prefix %s", got)
	}
	s.prefix = "caselens"
	if got := s.objectKey("reports/3f/id/report.md"); got != "caselens/reports/3f/id/report.md" {
		t.Errorf("unexpected prefixed key %s", got)
	}

	if _, err := NewS3Storage(StorageConfig{Type: StorageTypeS3}); err == nil {
		t.Error("expected an error without a bucket")
	}
}
