package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveResultNamesFileFromJob(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	path, err := store.SaveResult(context.Background(), "job/../1", "image/jpeg; charset=binary", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if want := filepath.Join(dir, "job____1.jpg"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) != 3 {
		t.Fatalf("read back: %v (%d bytes)", err, len(data))
	}
}

func TestSaveResultDefaultsNameToTimestamp(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	path, err := store.SaveResult(context.Background(), "", "image/png", []byte{1})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if filepath.Base(path) != "flux-20261018-093000.png" {
		t.Fatalf("unexpected name %q", filepath.Base(path))
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a/b.png", want: "a/b.png"},
		{key: "/abs/path.png", want: "abs/path.png"},
		{key: `win\style.png`, want: "win/style.png"},
		{key: "../escape.png", wantErr: true},
		{key: "..", wantErr: true},
		{key: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.key)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) = %q, want error", tc.key, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
		}
	}
}
