package modelloader

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

const metadataFilename = "cache_metadata.json"

// Entry is one cached model file's bookkeeping record (spec §3 "Cache Entry").
type Entry struct {
	Key          string    `json:"key"`
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastAccessed time.Time `json:"last_accessed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cache is a content-addressed, on-disk LRU cache for model files. It is
// grounded on the same layout original_source/llama-loader/src/cache.rs
// uses: one data file per entry plus a flat JSON metadata index, with
// size-cap eviction oldest-accessed-first.
//
// Unlimited disables the size cap: SizeCap is ignored.
type Cache struct {
	fs        afero.Fs
	root      string
	sizeCap   int64 // bytes; <=0 with Unlimited=false falls back to DefaultSizeCap
	unlimited bool

	mu      sync.Mutex
	order   *lru.Cache[string, *Entry] // access-order index; Keys() oldest→newest
	logger  *zap.Logger
}

// DefaultSizeCap is spec §4.A's documented default cap: 50 GiB.
const DefaultSizeCap = 50 * 1024 * 1024 * 1024

// NewCache opens (or creates) the cache rooted at root. On init it loads
// metadata and discards entries whose backing file is missing, per spec
// §3's "cached file at path exists iff entry exists" invariant.
func NewCache(fs afero.Fs, root string, sizeCap int64, unlimited bool, logger *zap.Logger) (*Cache, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, pkgerrors.NewCacheError("failed to create cache directory", err)
	}
	if sizeCap <= 0 {
		sizeCap = DefaultSizeCap
	}
	// A bound far beyond any realistic model count; the LRU here is an
	// access-order index, not a capacity limiter — the byte-size cap below
	// is what actually bounds the cache.
	order, _ := lru.New[string, *Entry](1_000_000)

	c := &Cache{fs: fs, root: root, sizeCap: sizeCap, unlimited: unlimited, order: order, logger: logger}
	c.load()
	return c, nil
}

// Key derives a cache key from a model file's identifying metadata: the
// repo, filename, size, and mtime, so a re-uploaded file with a different
// size or mtime gets a distinct key even if the name is unchanged.
func Key(repo, filename string, size int64, mtime time.Time) string {
	h := sha256.New()
	h.Write([]byte(repo))
	h.Write([]byte("|"))
	h.Write([]byte(filename))
	h.Write([]byte("|"))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(size))
	h.Write(buf[:])
	h.Write([]byte("|"))
	binary.LittleEndian.PutUint64(buf[:], uint64(mtime.UnixNano()))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) metadataPath() string { return filepath.Join(c.root, metadataFilename) }

// load reads the metadata file, if present, discarding entries whose
// backing file is absent and resetting to empty on a corrupt file (warn,
// never fail startup — spec §4.A failure semantics).
func (c *Cache) load() {
	data, err := afero.ReadFile(c.fs, c.metadataPath())
	if err != nil {
		return // no metadata yet; empty cache
	}
	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		if c.logger != nil {
			c.logger.Warn("cache metadata is corrupt; starting empty", zap.Error(err))
		}
		return
	}
	for key, e := range entries {
		if exists, _ := afero.Exists(c.fs, e.Path); !exists {
			continue
		}
		c.order.Add(key, e)
	}
}

func (c *Cache) persist() error {
	entries := make(map[string]*Entry, c.order.Len())
	for _, key := range c.order.Keys() {
		if e, ok := c.order.Peek(key); ok {
			entries[key] = e
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, c.metadataPath(), data, 0o644)
}

// Get returns the cached path for key, touching LastAccessed. A missing
// backing file counts as a miss and discards the stale entry.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.order.Get(key) // Get promotes to most-recently-used
	if !ok {
		return "", false
	}
	if exists, _ := afero.Exists(c.fs, e.Path); !exists {
		c.order.Remove(key)
		_ = c.persist()
		return "", false
	}
	e.LastAccessed = time.Now()
	_ = c.persist()
	return e.Path, true
}

// Put copies srcPath into the cache directory under key, registers the
// entry, persists metadata, then enforces the size cap.
func (c *Cache) Put(srcPath, key string, size int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	destName := fmt.Sprintf("%s_%s", key, filepath.Base(srcPath))
	destPath := filepath.Join(c.root, destName)

	if err := copyFile(c.fs, srcPath, destPath); err != nil {
		return "", pkgerrors.NewCacheError("failed to copy model into cache", err)
	}

	now := time.Now()
	c.order.Add(key, &Entry{
		Key:          key,
		Path:         destPath,
		SizeBytes:    size,
		LastAccessed: now,
		CreatedAt:    now,
	})
	if err := c.persist(); err != nil {
		return destPath, pkgerrors.NewCacheError("failed to persist cache metadata", err)
	}
	c.enforceSizeCap()
	return destPath, c.persist()
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, 0o644)
}

// enforceSizeCap removes oldest-accessed entries until total bytes <= cap.
// Disabled entirely when unlimited is set.
func (c *Cache) enforceSizeCap() {
	if c.unlimited {
		return
	}
	var total int64
	for _, key := range c.order.Keys() {
		if e, ok := c.order.Peek(key); ok {
			total += e.SizeBytes
		}
	}
	for total > c.sizeCap && c.order.Len() > 0 {
		keys := c.order.Keys() // oldest first
		oldest := keys[0]
		e, ok := c.order.Peek(oldest)
		if !ok {
			c.order.Remove(oldest)
			continue
		}
		_ = c.fs.Remove(e.Path)
		c.order.Remove(oldest)
		total -= e.SizeBytes
	}
}

// Stats reports the cache's current size for diagnostics.
func (c *Cache) Stats() (entries int, totalBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order.Keys() {
		if e, ok := c.order.Peek(key); ok {
			entries++
			totalBytes += e.SizeBytes
		}
	}
	return entries, totalBytes
}
