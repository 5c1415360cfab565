package cachebench

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aweris/cachebench/internal/blobcache"
	"github.com/aweris/cachebench/internal/compression"
	"github.com/aweris/cachebench/internal/disklru"
)

const (
	blobCacheName = "image_blobcache"
	kvCacheName   = "image_disklrucache"
)

// Harness owns both cache backends, the read buffer pool and the engine
// comparing them. Backends are opened once by Open and closed once by Close.
type Harness struct {
	dir    string
	blobs  *blobcache.Cache
	kvs    *disklru.Cache
	pool   *Pool
	engine *Engine

	closeOnce sync.Once
}

// Open opens (or creates) both caches under dir and wires an Engine that
// loads payloads with load.
func Open(dir string, load Loader, opts ...Option) (*Harness, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	algo, err := compression.ParseAlgorithm(options.Compression)
	if err != nil {
		return nil, err
	}

	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	blobs, err := blobcache.Open(filepath.Join(dir, blobCacheName), blobcache.Options{
		MaxEntries: options.MaxEntries,
		MaxBytes:   options.MaxBytes,
		Version:    options.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("open blob cache: %w", err)
	}

	kvs, err := disklru.Open(filepath.Join(dir, kvCacheName), disklru.Options{
		AppVersion:       options.Version,
		ValueCount:       1,
		MaxSize:          options.MaxBytes,
		MaxEntries:       options.MaxEntries,
		Compression:      algo,
		CompressionLevel: options.CompressionLevel,
	})
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("open kv cache: %w", err)
	}

	pool := NewPool(options.PoolSize, options.BufferSize)
	engine := NewEngine(
		NewBlobAdapter(blobs),
		NewKVAdapter(kvBackend{kvs}),
		pool,
		load,
		WithEngineLogger(options.Logger),
		WithEngineRecorder(options.Recorder),
		WithClock(options.Clock),
		WithReadVerification(options.VerifyReads),
	)

	options.Logger.Debug("caches opened",
		"dir", dir,
		"max_entries", options.MaxEntries,
		"max_bytes", options.MaxBytes,
		"version", options.Version,
	)

	return &Harness{
		dir:    dir,
		blobs:  blobs,
		kvs:    kvs,
		pool:   pool,
		engine: engine,
	}, nil
}

func (h *Harness) Engine() *Engine { return h.engine }
func (h *Harness) Pool() *Pool     { return h.pool }
func (h *Harness) Dir() string     { return h.dir }

// BlobStats reports the blob cache's occupancy.
func (h *Harness) BlobStats() blobcache.Stats { return h.blobs.Stats() }

// KVSize reports the key-value cache's entry count and byte size.
func (h *Harness) KVSize() (entries int, size int64) { return h.kvs.Len(), h.kvs.Size() }

// Close closes both backends. It is safe to call more than once and from
// several goroutines; only the first call reports backend close errors.
func (h *Harness) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.engine.close()
		h.pool.Clear()
		err = errors.Join(h.blobs.Close(), h.kvs.Close())
	})
	return err
}

// Inventory is what Inspect finds on disk under a cache directory.
type Inventory struct {
	Dir         string
	BlobOptions blobcache.Options
	Blob        blobcache.Stats
	KV          disklru.Info
}

// Inspect reads both caches under dir without opening them, so caches
// written with other limits or another version are left untouched.
func Inspect(dir string) (Inventory, error) {
	inv := Inventory{Dir: expandPath(dir)}
	var err error
	inv.BlobOptions, inv.Blob, err = blobcache.Inspect(filepath.Join(inv.Dir, blobCacheName))
	if err != nil {
		return inv, fmt.Errorf("inspect blob cache: %w", err)
	}
	if inv.KV, err = disklru.Inspect(filepath.Join(inv.Dir, kvCacheName)); err != nil {
		return inv, fmt.Errorf("inspect kv cache: %w", err)
	}
	return inv, nil
}

// Remove deletes both caches stored under dir.
func Remove(dir string) error {
	dir = expandPath(dir)
	return errors.Join(
		blobcache.Remove(filepath.Join(dir, blobCacheName)),
		disklru.Remove(filepath.Join(dir, kvCacheName)),
	)
}

// kvBackend exposes a disklru.Cache through the KVBackend interface.
type kvBackend struct {
	c *disklru.Cache
}

func (b kvBackend) Edit(key string) (Editor, error) {
	ed, err := b.c.Edit(key)
	if err != nil || ed == nil {
		return nil, err
	}
	return ed, nil
}

func (b kvBackend) Get(key string) (Snapshot, error) {
	snap, err := b.c.Get(key)
	if err != nil || snap == nil {
		return nil, err
	}
	return snap, nil
}

func (b kvBackend) Flush() error { return b.c.Flush() }
func (b kvBackend) Close() error { return b.c.Close() }

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
