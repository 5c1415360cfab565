package cachebench

import "io"

// BlobBackend is a content-addressable store keyed by 64-bit fingerprints.
// Implemented by internal/blobcache.
type BlobBackend interface {
	// Insert stores data under key, replacing any previous record.
	Insert(key uint64, data []byte) error

	// Lookup copies the record for key into dst when it fits and returns the
	// filled prefix; a larger record is returned in a fresh slice.
	// ok is false when there is no (intact) record for key.
	Lookup(key uint64, dst []byte) (record []byte, ok bool, err error)

	// Sync makes every insert so far durable.
	Sync() error

	Close() error
}

// KVBackend is a string-keyed disk cache with edit/commit/abort semantics.
// Implemented by internal/disklru.
type KVBackend interface {
	// Edit opens a write transaction for key. It returns a nil Editor when
	// another edit of key is in progress.
	Edit(key string) (Editor, error)

	// Get returns a read snapshot of key, or nil when key is absent.
	Get(key string) (Snapshot, error)

	// Flush persists pending bookkeeping.
	Flush() error

	Close() error
}

// Editor is an open write transaction on a single KV entry.
type Editor interface {
	NewWriter(index int) (io.WriteCloser, error)
	Commit() error

	// Abort discards the edit. It is a no-op once Commit has succeeded, so
	// it can be deferred right after Edit.
	Abort() error
}

// Snapshot is a consistent read view of a KV entry.
type Snapshot interface {
	Reader(index int) io.Reader
	Size(index int) int64
	Close() error
}
