package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// backends opens every Store implementation in a fresh temp dir.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	sqliteStore, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	stores := map[string]Store{
		BackendMemory: NewMemoryStore(),
		BackendFile:   fileStore,
		BackendSQLite: sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_Contract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
			}

			if err := s.Set(ctx, "signup-cta", `{"id":"ab-test-signup-cta-A","text":"Sign up"}`); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, ok, err := s.Get(ctx, "signup-cta")
			if err != nil || !ok {
				t.Fatalf("Get() = ok %v, err %v", ok, err)
			}
			if got != `{"id":"ab-test-signup-cta-A","text":"Sign up"}` {
				t.Errorf("Get() = %q", got)
			}

			if err := s.Set(ctx, "signup-cta", "replaced"); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			if got, _, _ := s.Get(ctx, "signup-cta"); got != "replaced" {
				t.Errorf("Get() after overwrite = %q, want replaced", got)
			}

			if err := s.Set(ctx, "another", "x"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			if diff := cmp.Diff([]string{"another", "signup-cta"}, keys); diff != "" {
				t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
			}

			if err := s.Delete(ctx, "signup-cta"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "signup-cta"); err != nil {
				t.Errorf("Delete() of absent key error = %v", err)
			}
			if _, ok, _ := s.Get(ctx, "signup-cta"); ok {
				t.Error("Get() after Delete should be absent")
			}

			if err := s.Set(ctx, "", "blank"); err != nil {
				t.Fatalf("Set() with empty key error = %v", err)
			}
			if got, ok, err := s.Get(ctx, ""); err != nil || !ok || got != "blank" {
				t.Errorf("Get(\"\") = %q, ok %v, err %v; want blank", got, ok, err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendMemory, false},
		{BackendFile, false},
		{BackendSQLite, false},
		{"", false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(tt.backend, t.TempDir())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBackend) {
					t.Errorf("Open(%q) error = %v, want ErrUnknownBackend", tt.backend, err)
				}
				return
			}
			defer s.Close()
		})
	}
}

func TestLocation(t *testing.T) {
	dir := "/tmp/origin"
	if got := Location(BackendSQLite, dir); got != filepath.Join(dir, "storage.db") {
		t.Errorf("Location(sqlite) = %q", got)
	}
	if got := Location(BackendFile, dir); got != filepath.Join(dir, "storage.jsonl") {
		t.Errorf("Location(file) = %q", got)
	}
	if got := Location(BackendMemory, dir); got != "" {
		t.Errorf("Location(memory) = %q, want empty", got)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s, err := Open(backend, dir)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if err := s.Set(ctx, "hero", `{"id":"ab-test-hero-B","text":"Two"}`); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			reopened, err := Open(backend, dir)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer reopened.Close()

			got, ok, err := reopened.Get(ctx, "hero")
			if err != nil || !ok {
				t.Fatalf("Get() after reopen = ok %v, err %v", ok, err)
			}
			if got != `{"id":"ab-test-hero-B","text":"Two"}` {
				t.Errorf("Get() after reopen = %q", got)
			}
		})
	}
}

func TestFileStore_RejectsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.jsonl")
	content := `{"key":"good","value":"v"}
{"key":"signup-cta","value":"{\"id\":\"ab-te
{"key":"also-good","value":"w"}
not json at all
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(dir)
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("NewFileStore() error = %v, want ErrCorruptFile", err)
	}

	var corrupt *CorruptFileError
	if !errors.As(err, &corrupt) {
		t.Fatalf("NewFileStore() error = %T, want *CorruptFileError", err)
	}
	lines := make([]int, 0, len(corrupt.Lines))
	for _, l := range corrupt.Lines {
		lines = append(lines, l.Line)
	}
	if diff := cmp.Diff([]int{2, 4}, lines); diff != "" {
		t.Errorf("malformed lines mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "2, 4") {
		t.Errorf("error = %q, want line numbers", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("storage file was modified:\n%s", got)
	}

	if _, err := Open(BackendFile, dir); !errors.Is(err, ErrCorruptFile) {
		t.Errorf("Open(file) error = %v, want ErrCorruptFile", err)
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestTruncateForError(t *testing.T) {
	short := "short"
	if got := truncateForError(short); got != short {
		t.Errorf("truncateForError(short) = %q", got)
	}
	long := strings.Repeat("x", 150)
	if got := truncateForError(long); len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateForError(long) = %q", got)
	}
}
