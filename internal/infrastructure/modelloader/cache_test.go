package modelloader

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestCache(t *testing.T, sizeCap int64, unlimited bool) (*Cache, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	cache, err := NewCache(fs, "/cache", sizeCap, unlimited, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache, fs
}

func writeSourceFile(t *testing.T, fs afero.Fs, path string, size int) {
	t.Helper()
	if err := afero.WriteFile(fs, path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
}

func TestKey_StableForSameInputs(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	k1 := Key("org/repo", "model.gguf", 100, mtime)
	k2 := Key("org/repo", "model.gguf", 100, mtime)
	if k1 != k2 {
		t.Fatalf("expected identical keys for identical inputs, got %q vs %q", k1, k2)
	}
}

func TestKey_DiffersOnSize(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	k1 := Key("org/repo", "model.gguf", 100, mtime)
	k2 := Key("org/repo", "model.gguf", 200, mtime)
	if k1 == k2 {
		t.Fatal("expected different keys for different sizes")
	}
}

func TestPutThenGet(t *testing.T) {
	cache, fs := newTestCache(t, DefaultSizeCap, false)
	writeSourceFile(t, fs, "/src/model.gguf", 10)

	path, err := cache.Put("/src/model.gguf", "key-1", 10)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := cache.Get("key-1")
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if got != path {
		t.Fatalf("Get returned %q, want %q", got, path)
	}
}

func TestGet_MissReturnsFalse(t *testing.T) {
	cache, _ := newTestCache(t, DefaultSizeCap, false)
	if _, ok := cache.Get("missing"); ok {
		t.Fatal("expected miss for a key never Put")
	}
}

func TestEnforceSizeCap_EvictsOldestFirst(t *testing.T) {
	cache, fs := newTestCache(t, 150, false)
	writeSourceFile(t, fs, "/src/a.gguf", 100)
	writeSourceFile(t, fs, "/src/b.gguf", 100)

	if _, err := cache.Put("/src/a.gguf", "key-a", 100); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if _, err := cache.Put("/src/b.gguf", "key-b", 100); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if _, ok := cache.Get("key-a"); ok {
		t.Fatal("expected key-a to be evicted once the 150 byte cap is exceeded")
	}
	if _, ok := cache.Get("key-b"); !ok {
		t.Fatal("expected key-b (most recently added) to survive eviction")
	}
}

func TestUnlimited_NeverEvicts(t *testing.T) {
	cache, fs := newTestCache(t, 1, true)
	writeSourceFile(t, fs, "/src/a.gguf", 1000)
	writeSourceFile(t, fs, "/src/b.gguf", 1000)

	if _, err := cache.Put("/src/a.gguf", "key-a", 1000); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if _, err := cache.Put("/src/b.gguf", "key-b", 1000); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if _, ok := cache.Get("key-a"); !ok {
		t.Fatal("expected key-a to survive when unlimited is set, even past a tiny size cap")
	}
}

func TestStats_ReflectsPutEntries(t *testing.T) {
	cache, fs := newTestCache(t, DefaultSizeCap, false)
	writeSourceFile(t, fs, "/src/a.gguf", 50)
	if _, err := cache.Put("/src/a.gguf", "key-a", 50); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, total := cache.Stats()
	if entries != 1 || total != 50 {
		t.Fatalf("got entries=%d total=%d, want entries=1 total=50", entries, total)
	}
}

func TestLoad_DiscardsEntriesWithMissingBackingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSourceFile(t, fs, "/src/a.gguf", 10)
	cache, err := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := cache.Put("/src/a.gguf", "key-a", 10); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Simulate out-of-band deletion of the cached file, then reopen.
	entry, ok := cache.order.Get("key-a")
	if !ok {
		t.Fatal("expected entry to exist before simulated deletion")
	}
	if err := fs.Remove(entry.Path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	reopened, err := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	if err != nil {
		t.Fatalf("NewCache (reopen): %v", err)
	}
	if _, ok := reopened.Get("key-a"); ok {
		t.Fatal("expected entry with a missing backing file to be discarded on load")
	}
}
