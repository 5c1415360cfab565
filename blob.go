package cachebench

import (
	"bytes"
	"fmt"
)

// Outcome is the result of a blob cache lookup.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	// OutcomeKeyMismatch means a record was stored under the fingerprint but
	// for a different key: a fingerprint collision or a damaged record.
	OutcomeKeyMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeKeyMismatch:
		return "key-mismatch"
	default:
		return "miss"
	}
}

// BlobAdapter stores payloads in a BlobBackend under Fingerprint(key). The
// key is embedded ahead of the payload so lookups can detect collisions.
type BlobAdapter struct {
	backend     BlobBackend
	fingerprint func([]byte) uint64
}

// BlobOption configures a BlobAdapter.
type BlobOption func(*BlobAdapter)

// WithFingerprinter replaces Fingerprint as the key derivation.
func WithFingerprinter(fn func([]byte) uint64) BlobOption {
	return func(a *BlobAdapter) {
		if fn != nil {
			a.fingerprint = fn
		}
	}
}

func NewBlobAdapter(backend BlobBackend, opts ...BlobOption) *BlobAdapter {
	a := &BlobAdapter{backend: backend, fingerprint: Fingerprint}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Put stores key ++ payload and syncs the backend before returning.
func (a *BlobAdapter) Put(key, payload []byte) error {
	fp := a.fingerprint(key)

	record := make([]byte, len(key)+len(payload))
	copy(record, key)
	copy(record[len(key):], payload)

	if err := a.backend.Insert(fp, record); err != nil {
		return fmt.Errorf("%w: blob insert %016x: %w", ErrBackendWrite, fp, err)
	}
	if err := a.backend.Sync(); err != nil {
		return fmt.Errorf("%w: blob sync: %w", ErrBackendWrite, err)
	}
	return nil
}

// Lookup reads the record for key into buf. On OutcomeHit the view of buf is
// the payload; for any other outcome the view is unspecified.
func (a *BlobAdapter) Lookup(key []byte, buf *Buffer) (Outcome, error) {
	fp := a.fingerprint(key)

	record, ok, err := a.backend.Lookup(fp, buf.Storage())
	if err != nil {
		return OutcomeMiss, fmt.Errorf("%w: blob lookup %016x: %w", ErrBackendRead, fp, err)
	}
	if !ok {
		return OutcomeMiss, nil
	}
	if len(record) < len(key) || !bytes.Equal(record[:len(key)], key) {
		return OutcomeKeyMismatch, nil
	}

	buf.adopt(record)
	if err := buf.SetView(len(key), len(record)-len(key)); err != nil {
		return OutcomeMiss, err
	}
	return OutcomeHit, nil
}

// Get reports whether key was found intact; key mismatches are misses.
func (a *BlobAdapter) Get(key []byte, buf *Buffer) (bool, error) {
	outcome, err := a.Lookup(key, buf)
	return outcome == OutcomeHit, err
}
