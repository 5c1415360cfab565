package cachebench

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarness_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	load := mapLoader(map[string]string{
		"/a/b.jpg": "hello-world",
		"/a/d.jpg": "another payload",
	})
	h, err := Open(dir, load, WithPool(2, 1024))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	assert.DirExists(t, filepath.Join(dir, "image_disklrucache"))
	assert.FileExists(t, filepath.Join(dir, "image_blobcache.idx"))

	e := h.Engine()
	e.SetInputs([]string{"/a/b.jpg", "/a/d.jpg"})
	ctx := context.Background()

	for range 4 {
		_, err := e.CompareWrite(ctx)
		require.NoError(t, err)
		_, err = e.CompareRead(ctx)
		require.NoError(t, err)
	}
	a := e.Averages()
	assert.Equal(t, 4, a.Writes)
	assert.Equal(t, 4, a.Reads)

	stats := h.BlobStats()
	assert.Equal(t, 2, stats.ActiveEntries)
	entries, size := h.KVSize()
	assert.Equal(t, 2, entries)
	assert.EqualValues(t, len("hello-world")+len("another payload"), size)

	// Read buffers went back to the pool.
	assert.Equal(t, 2, h.Pool().Free())
}

func TestHarness_BackendsAgreeOnLookups(t *testing.T) {
	t.Parallel()

	h, err := Open(t.TempDir(), mapLoader(map[string]string{"/a/b.jpg": "hello-world"}))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareWrite(context.Background())
	require.NoError(t, err)

	lookups := map[string]func(key []byte, buf *Buffer) (bool, error){
		"blob": h.engine.blob.Get,
		"kv":   h.engine.kv.Get,
	}
	for name, get := range lookups {
		buf := h.pool.Get()
		found, err := get([]byte("/a/b.jpg"), buf)
		require.NoError(t, err, name)
		assert.True(t, found, name)
		assert.Equal(t, "hello-world", string(buf.Bytes()), name)
		h.pool.Put(buf)

		buf = h.pool.Get()
		found, err = get([]byte("/a/c.jpg"), buf)
		assert.NoError(t, err, name)
		assert.False(t, found, name)
		h.pool.Put(buf)
	}
}

func TestHarness_ReadMissesUnwrittenInput(t *testing.T) {
	t.Parallel()

	h, err := Open(t.TempDir(), mapLoader(nil))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	h.Engine().SetInputs([]string{"/a/c.jpg"})
	_, err = h.Engine().CompareRead(context.Background())
	assert.ErrorIs(t, err, ErrMiss)
}

func TestHarness_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	load := mapLoader(map[string]string{"/a/b.jpg": "hello-world"})

	h, err := Open(dir, load, WithCompression("zstd", 1))
	require.NoError(t, err)
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	h, err = Open(dir, load, WithCompression("zstd", 1))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareRead(context.Background())
	require.NoError(t, err)
}

func TestHarness_VersionChangeDiscardsCaches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	load := mapLoader(map[string]string{"/a/b.jpg": "hello-world"})

	h, err := Open(dir, load, WithVersion(1))
	require.NoError(t, err)
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = Open(dir, load, WithVersion(2))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareRead(context.Background())
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInspect_KeepsCachesWrittenWithOtherLimits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	load := mapLoader(map[string]string{"/a/b.jpg": "hello-world"})
	opts := []Option{WithVersion(4), WithMaxEntries(64), WithMaxBytes(1 << 20), WithCompression("zstd", 1)}

	h, err := Open(dir, load, opts...)
	require.NoError(t, err)
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareWrite(context.Background())
	require.NoError(t, err)
	_, kvSize := h.KVSize()
	require.NoError(t, h.Close())

	inv, err := Inspect(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, inv.Dir)
	assert.Equal(t, 4, inv.BlobOptions.Version)
	assert.Equal(t, 64, inv.BlobOptions.MaxEntries)
	assert.EqualValues(t, 1<<20, inv.BlobOptions.MaxBytes)
	assert.Equal(t, 1, inv.Blob.ActiveEntries)
	assert.Equal(t, 4, inv.KV.AppVersion)
	assert.EqualValues(t, "zstd", inv.KV.Compression)
	assert.Equal(t, 1, inv.KV.Entries)
	assert.Equal(t, kvSize, inv.KV.Size)

	// Reopening with the original options still finds the entry.
	h, err = Open(dir, load, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareRead(context.Background())
	require.NoError(t, err)
}

func TestInspect_NoCaches(t *testing.T) {
	t.Parallel()

	_, err := Inspect(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHarness_ClosedEngine(t *testing.T) {
	t.Parallel()

	h, err := Open(t.TempDir(), mapLoader(map[string]string{"a": "1"}))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h.Engine().SetInputs([]string{"a"})
	_, err = h.Engine().CompareWrite(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHarness_ConcurrentClose(t *testing.T) {
	t.Parallel()

	h, err := Open(t.TempDir(), mapLoader(map[string]string{"/a/b.jpg": "hello-world"}))
	require.NoError(t, err)
	h.Engine().SetInputs([]string{"/a/b.jpg"})
	_, err = h.Engine().CompareWrite(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.Close()
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NoError(t, h.Close())
	assert.Zero(t, h.Pool().Free())
}

func TestOpen_UnknownCompression(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), mapLoader(nil), WithCompression("brotli", 1))
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h, err := Open(dir, mapLoader(nil))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, Remove(dir))
	_, err = os.Stat(filepath.Join(dir, "image_disklrucache"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "image_blobcache.idx"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Removing twice is fine.
	require.NoError(t, Remove(dir))
}
