package modelloader

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/infrastructure/modelhandle"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// RemoteFile describes one file in a HuggingFace repo's listing.
type RemoteFile struct {
	Name string
	Size int64
}

// Registry is the remote model registry boundary (spec §6): list a repo's
// files and download one by name. HTTPRegistry is the production
// implementation; tests substitute a fake.
type Registry interface {
	ListFiles(ctx context.Context, repo string) ([]RemoteFile, error)
	Download(ctx context.Context, repo, filename, destPath string) error
}

// EngineFactory loads the underlying inference engine from a file on disk.
// Constructing the real engine from a .gguf file is the tensor library's
// job (spec §1); the loader only needs a hook to invoke it once the file is
// resolved.
type EngineFactory func(path string) (modelhandle.InferenceEngine, error)

// Metadata describes how a model was resolved.
type Metadata struct {
	Source    ModelSource
	Filename  string
	SizeBytes int64
	LoadTime  time.Duration
	CacheHit  bool
}

// LoadedModel is the loader's output: a ready handle plus the resolved path
// and resolution metadata.
type LoadedModel struct {
	Handle   *modelhandle.Handle
	Path     string
	Metadata Metadata
}

// Loader resolves a ModelSource to a loaded model, consulting the cache and
// falling back to download/local-scan as needed.
type Loader struct {
	fs       afero.Fs
	cache    *Cache
	registry Registry
	retry    RetryConfig
	workDir  string
	logger   *zap.Logger
}

// NewLoader builds a Loader. workDir is scratch space for multi-part
// downloads before they are copied into the cache.
func NewLoader(fs afero.Fs, cache *Cache, registry Registry, retry RetryConfig, workDir string, logger *zap.Logger) *Loader {
	return &Loader{fs: fs, cache: cache, registry: registry, retry: retry, workDir: workDir, logger: logger}
}

// Load resolves source to a file on disk, then constructs an engine from it
// via newEngine.
func (l *Loader) Load(ctx context.Context, source ModelSource, newEngine EngineFactory) (*LoadedModel, error) {
	start := time.Now()
	if err := source.Validate(); err != nil {
		return nil, err
	}

	path, meta, err := l.resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	meta.LoadTime = time.Since(start)

	engine, err := newEngine(path)
	if err != nil {
		return nil, pkgerrors.NewModelLoadingFailedError("failed to load model file "+path, err)
	}

	return &LoadedModel{Handle: modelhandle.New(engine), Path: path, Metadata: meta}, nil
}

func (l *Loader) resolve(ctx context.Context, source ModelSource) (string, Metadata, error) {
	switch source.Kind {
	case SourceLocal:
		return l.resolveLocal(source)
	case SourceHuggingFace:
		return l.resolveHuggingFace(ctx, source)
	default:
		return "", Metadata{}, pkgerrors.NewModelInvalidConfigError("unknown model source kind")
	}
}

func (l *Loader) resolveLocal(source ModelSource) (string, Metadata, error) {
	if exists, _ := afero.DirExists(l.fs, source.Folder); !exists {
		return "", Metadata{}, pkgerrors.NewModelNotFoundError("local folder does not exist: " + source.Folder)
	}

	filename := source.Filename
	if filename == "" {
		entries, err := afero.ReadDir(l.fs, source.Folder)
		if err != nil {
			return "", Metadata{}, pkgerrors.NewModelLoadingFailedError("failed to scan local folder", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		detected, ok := autoDetectFilename(names)
		if !ok {
			return "", Metadata{}, pkgerrors.NewModelNotFoundError("no .gguf file found in " + source.Folder)
		}
		filename = detected
	}

	path := filepath.Join(source.Folder, filename)
	info, err := l.fs.Stat(path)
	if err != nil {
		return "", Metadata{}, pkgerrors.NewModelNotFoundError("model file not found: " + path)
	}
	return path, Metadata{Source: source, Filename: filename, SizeBytes: info.Size(), CacheHit: false}, nil
}

func (l *Loader) resolveHuggingFace(ctx context.Context, source ModelSource) (string, Metadata, error) {
	files, err := Retry(ctx, l.retry, func() ([]RemoteFile, error) {
		files, err := l.registry.ListFiles(ctx, source.Repo)
		if err != nil && !isRetriable(err) {
			return nil, Permanent(err)
		}
		return files, err
	})
	if err != nil {
		return "", Metadata{}, pkgerrors.NewModelLoadingFailedError("failed to list repo files for "+source.Repo, err)
	}

	filename := source.Filename
	if filename == "" {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
		}
		detected, ok := autoDetectFilename(names)
		if !ok {
			return "", Metadata{}, pkgerrors.NewModelNotFoundError("no .gguf file found in repo " + source.Repo)
		}
		filename = detected
	}

	remoteSize := sizeOf(files, filename)

	if parts, ok := multiPartGroup(filename); ok {
		return l.resolveMultiPart(ctx, source, filename, parts, files)
	}

	key := Key(source.Repo, filename, remoteSize, time.Time{})
	if cached, ok := l.cache.Get(key); ok {
		return cached, Metadata{Source: source, Filename: filename, SizeBytes: remoteSize, CacheHit: true}, nil
	}

	destPath := filepath.Join(l.workDir, filename)
	if err := l.downloadOne(ctx, source.Repo, filename, destPath); err != nil {
		return "", Metadata{}, err
	}
	info, err := l.fs.Stat(destPath)
	if err != nil {
		return "", Metadata{}, pkgerrors.NewModelLoadingFailedError("downloaded file vanished", err)
	}

	cachedPath, err := l.cache.Put(destPath, key, info.Size())
	if err != nil {
		// Cache IO failures degrade gracefully: use the downloaded file
		// directly from its scratch location (spec §7).
		if l.logger != nil {
			l.logger.Warn("model cache put failed; continuing from scratch path", zap.Error(err))
		}
		return destPath, Metadata{Source: source, Filename: filename, SizeBytes: info.Size(), CacheHit: false}, nil
	}
	return cachedPath, Metadata{Source: source, Filename: filename, SizeBytes: info.Size(), CacheHit: false}, nil
}

func (l *Loader) resolveMultiPart(ctx context.Context, source ModelSource, filename string, parts []string, listing []RemoteFile) (string, Metadata, error) {
	assembledPath := filepath.Join(l.workDir, filename)
	var total int64
	for _, part := range parts {
		destPath := filepath.Join(l.workDir, part)
		if err := l.downloadOne(ctx, source.Repo, part, destPath); err != nil {
			return "", Metadata{}, pkgerrors.NewModelLoadingFailedError(
				fmt.Sprintf("multi-part download failed on %s", part), err)
		}
		total += sizeOf(listing, part)
	}
	if err := assembleParts(l.fs, l.workDir, parts, assembledPath); err != nil {
		return "", Metadata{}, pkgerrors.NewModelLoadingFailedError("failed to assemble multi-part model", err)
	}

	key := Key(source.Repo, filename, total, time.Time{})
	cachedPath, err := l.cache.Put(assembledPath, key, total)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("model cache put failed; continuing from scratch path", zap.Error(err))
		}
		return assembledPath, Metadata{Source: source, Filename: filename, SizeBytes: total, CacheHit: false}, nil
	}
	return cachedPath, Metadata{Source: source, Filename: filename, SizeBytes: total, CacheHit: false}, nil
}

func (l *Loader) downloadOne(ctx context.Context, repo, filename, destPath string) error {
	_, err := Retry(ctx, l.retry, func() (struct{}, error) {
		err := l.registry.Download(ctx, repo, filename, destPath)
		if err != nil && !isRetriable(err) {
			return struct{}{}, Permanent(err)
		}
		return struct{}{}, err
	})
	if err != nil {
		return pkgerrors.NewModelLoadingFailedError("failed to download "+filename, err)
	}
	return nil
}

func assembleParts(fs afero.Fs, dir string, parts []string, destPath string) error {
	out, err := fs.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	for _, part := range parts {
		data, err := afero.ReadFile(fs, filepath.Join(dir, part))
		if err != nil {
			return fmt.Errorf("part %s missing after download: %w", part, err)
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func sizeOf(files []RemoteFile, name string) int64 {
	for _, f := range files {
		if f.Name == name {
			return f.Size
		}
	}
	return 0
}
