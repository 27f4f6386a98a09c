package modelloader

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/localagent/runtime/internal/infrastructure/modelhandle"
	"github.com/localagent/runtime/internal/infrastructure/modelhandle/refengine"
)

// fakeRegistry is an in-memory Registry stand-in for a HuggingFace repo
// listing, used so loader tests never touch the network.
type fakeRegistry struct {
	files map[string][]RemoteFile // repo -> files
	data  map[string][]byte       // "repo/filename" -> content
	fs    afero.Fs
	calls int
}

func (f *fakeRegistry) ListFiles(ctx context.Context, repo string) ([]RemoteFile, error) {
	return f.files[repo], nil
}

func (f *fakeRegistry) Download(ctx context.Context, repo, filename, destPath string) error {
	f.calls++
	content := f.data[repo+"/"+filename]
	return afero.WriteFile(f.fs, destPath, content, 0o644)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Millisecond}
}

func noopEngine(path string) (modelhandle.InferenceEngine, error) {
	return refengine.New(0), nil
}

func TestLoad_Local(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/models/my-model/model-bf16.gguf", []byte("data"), 0o644)

	cache, err := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	loader := NewLoader(fs, cache, nil, fastRetry(), "/work", nil)

	loaded, err := loader.Load(context.Background(), LocalSource("/models/my-model", ""), noopEngine)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Metadata.Filename != "model-bf16.gguf" {
		t.Fatalf("got filename %q, want auto-detected bf16 file", loaded.Metadata.Filename)
	}
	if loaded.Handle == nil {
		t.Fatal("expected a non-nil handle")
	}
}

func TestLoad_Local_MissingFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache, _ := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	loader := NewLoader(fs, cache, nil, fastRetry(), "/work", nil)

	if _, err := loader.Load(context.Background(), LocalSource("/does/not/exist", ""), noopEngine); err == nil {
		t.Fatal("expected error for a missing local folder")
	}
}

func TestLoad_HuggingFace_DownloadsAndCaches(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache, _ := NewCache(fs, "/cache", DefaultSizeCap, false, nil)

	reg := &fakeRegistry{
		fs:    fs,
		files: map[string][]RemoteFile{"org/repo": {{Name: "model.gguf", Size: 4}}},
		data:  map[string][]byte{"org/repo/model.gguf": []byte("data")},
	}
	loader := NewLoader(fs, cache, reg, fastRetry(), "/work", nil)

	loaded, err := loader.Load(context.Background(), HuggingFaceSource("org/repo", "model.gguf"), noopEngine)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Metadata.CacheHit {
		t.Fatal("first load should not be a cache hit")
	}
	if reg.calls != 1 {
		t.Fatalf("expected exactly one download, got %d", reg.calls)
	}

	// Second load of the same source should hit the cache and not
	// re-download.
	loader2 := NewLoader(fs, cache, reg, fastRetry(), "/work", nil)
	loaded2, err := loader2.Load(context.Background(), HuggingFaceSource("org/repo", "model.gguf"), noopEngine)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !loaded2.Metadata.CacheHit {
		t.Fatal("expected the second load to be a cache hit")
	}
	if reg.calls != 1 {
		t.Fatalf("expected no additional downloads on cache hit, got %d total", reg.calls)
	}
}

func TestLoad_HuggingFace_NoGGUFFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache, _ := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	reg := &fakeRegistry{
		fs:    fs,
		files: map[string][]RemoteFile{"org/repo": {{Name: "README.md", Size: 1}}},
	}
	loader := NewLoader(fs, cache, reg, fastRetry(), "/work", nil)

	if _, err := loader.Load(context.Background(), HuggingFaceSource("org/repo", ""), noopEngine); err == nil {
		t.Fatal("expected error when no .gguf file exists in the repo listing")
	}
}

func TestLoad_RejectsInvalidSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache, _ := NewCache(fs, "/cache", DefaultSizeCap, false, nil)
	loader := NewLoader(fs, cache, nil, fastRetry(), "/work", nil)

	_, err := loader.Load(context.Background(), HuggingFaceSource("not-valid", ""), noopEngine)
	if err == nil {
		t.Fatal("expected validation error for a malformed repo before any registry call")
	}
}
