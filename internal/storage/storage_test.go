package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestObjectNameKeepsImageExtension(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pattern := regexp.MustCompile(`^1700000000-[0-9a-f-]{36}\.png$`)
	if got := ObjectName(now, "Leaf.PNG"); !pattern.MatchString(got) {
		t.Fatalf("unexpected name: %s", got)
	}
	if got := ObjectName(now, "payload.exe"); !strings.HasSuffix(got, ".jpg") {
		t.Fatalf("expected .jpg fallback, got %s", got)
	}
}

func TestDiskStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/static/uploads", 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	url, err := store.Save(context.Background(), "leaf.jpg", "image/jpeg", []byte("pixels"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(url, "/static/uploads/") {
		t.Fatalf("unexpected url: %s", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/static/uploads/")))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "pixels" {
		t.Fatalf("unexpected content: %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.part"))
	if len(leftovers) != 0 {
		t.Fatalf("expected no partial files, got %v", leftovers)
	}
}

func TestDiskStoreRejectsOversize(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/u", 3)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if _, err := store.Save(context.Background(), "a.jpg", "image/jpeg", []byte("1234")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
