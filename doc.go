// Package cachebench compares two on-disk cache designs on the same payloads.
//
// The blob cache is keyed by a 64-bit CRC fingerprint of the input key and
// stores the key ahead of every payload so fingerprint collisions can be
// detected on read. The key-value cache is keyed by the hex SHA-256 digest of
// the input key and writes through scoped edits that either commit or abort.
// An Engine times each put and get on both caches and keeps the paired
// latencies.
//
// Basic usage:
//
//	load := func(ctx context.Context, id string) ([]byte, error) {
//	    return os.ReadFile(id)
//	}
//
//	h, _ := cachebench.Open("~/.cache/bench", load)
//	defer h.Close()
//
//	e := h.Engine()
//	e.SetInputs([]string{"/photos/a.jpg", "/photos/b.jpg"})
//
//	// Cache the next input in both caches, then read it back
//	e.CompareWrite(ctx)
//	e.CompareRead(ctx)
//
//	avg := e.Averages()
//	fmt.Println(avg.WriteBlob, avg.WriteKV, avg.ReadBlob, avg.ReadKV)
//
// Tuning:
//
//	h, _ := cachebench.Open(dir, load,
//	    cachebench.WithMaxEntries(5000),
//	    cachebench.WithMaxBytes(200<<20),
//	    cachebench.WithCompression("zstd", 2),
//	    cachebench.WithLogger(cachebench.NewTextLogger(slog.LevelDebug)),
//	)
//
// The adapters and the buffer pool can also be used directly against any
// BlobBackend and KVBackend:
//
//	blob := cachebench.NewBlobAdapter(backend)
//	buf := pool.Get()
//	defer pool.Put(buf)
//	if outcome, err := blob.Lookup(key, buf); err == nil && outcome == cachebench.OutcomeHit {
//	    use(buf.Bytes())
//	}
package cachebench
