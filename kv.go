package cachebench

import "fmt"

// KVAdapter stores payloads in a KVBackend under Digest(key), in value slot 0.
type KVAdapter struct {
	backend KVBackend
}

func NewKVAdapter(backend KVBackend) *KVAdapter {
	return &KVAdapter{backend: backend}
}

// Put writes payload in a single edit and flushes the backend. The edit is
// aborted on every path that does not commit.
func (a *KVAdapter) Put(key, payload []byte) error {
	digest := Digest(key)

	ed, err := a.backend.Edit(digest)
	if err != nil {
		return fmt.Errorf("%w: kv edit %s: %w", ErrBackendWrite, digest, err)
	}
	if ed == nil {
		return fmt.Errorf("%w: kv edit %s: %w", ErrBackendWrite, digest, ErrEditInProgress)
	}
	defer ed.Abort()

	w, err := ed.NewWriter(0)
	if err != nil {
		return fmt.Errorf("%w: kv open writer %s: %w", ErrBackendWrite, digest, err)
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("%w: kv write %s: %w", ErrBackendWrite, digest, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: kv close writer %s: %w", ErrBackendWrite, digest, err)
	}
	if err := ed.Commit(); err != nil {
		return fmt.Errorf("%w: kv commit %s: %w", ErrBackendWrite, digest, err)
	}

	if err := a.backend.Flush(); err != nil {
		return fmt.Errorf("%w: kv flush: %w", ErrBackendWrite, err)
	}
	return nil
}

// Get reads the entry for key into buf, growing its storage when needed.
func (a *KVAdapter) Get(key []byte, buf *Buffer) (found bool, err error) {
	digest := Digest(key)

	snap, err := a.backend.Get(digest)
	if err != nil {
		return false, fmt.Errorf("%w: kv get %s: %w", ErrBackendRead, digest, err)
	}
	if snap == nil {
		return false, nil
	}
	defer func() {
		if cerr := snap.Close(); cerr != nil && err == nil {
			found, err = false, fmt.Errorf("%w: kv close snapshot %s: %w", ErrBackendRead, digest, cerr)
		}
	}()

	r := snap.Reader(0)
	if r == nil {
		return false, fmt.Errorf("%w: kv read %s: no value 0", ErrBackendRead, digest)
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return false, fmt.Errorf("%w: kv read %s: %w", ErrBackendRead, digest, err)
	}
	return true, nil
}
