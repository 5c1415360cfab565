package cachebench

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errInjected = errors.New("injected failure")

// memBlob is an in-memory BlobBackend with failure injection.
type memBlob struct {
	mu        sync.Mutex
	records   map[uint64][]byte
	insertErr error
	lookupErr error
	syncErr   error
	syncs     int
}

func newMemBlob() *memBlob {
	return &memBlob{records: make(map[uint64][]byte)}
}

func (m *memBlob) Insert(key uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records[key] = bytes.Clone(data)
	return nil
}

func (m *memBlob) Lookup(key uint64, dst []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, false, m.lookupErr
	}
	rec, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	if len(rec) <= cap(dst) {
		return append(dst[:0], rec...), true, nil
	}
	return bytes.Clone(rec), true, nil
}

func (m *memBlob) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return m.syncErr
}

func (m *memBlob) Close() error { return nil }

// memKV is an in-memory KVBackend with failure injection.
type memKV struct {
	mu        sync.Mutex
	values    map[string][]byte
	editing   map[string]bool
	editErr   error
	writeErr  error
	commitErr error
	getErr    error
	flushErr  error
	aborts    int
	commits   int
}

func newMemKV() *memKV {
	return &memKV{values: make(map[string][]byte), editing: make(map[string]bool)}
}

func (m *memKV) Edit(key string) (Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return nil, m.editErr
	}
	if m.editing[key] {
		return nil, nil
	}
	m.editing[key] = true
	return &memEditor{kv: m, key: key}, nil
}

func (m *memKV) Get(key string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return memSnapshot{data: v}, nil
}

func (m *memKV) Flush() error { return m.flushErr }
func (m *memKV) Close() error { return nil }

type memEditor struct {
	kv   *memKV
	key  string
	buf  bytes.Buffer
	done bool
}

func (e *memEditor) NewWriter(index int) (io.WriteCloser, error) {
	if index != 0 {
		return nil, errors.New("value index out of range")
	}
	e.buf.Reset()
	return memWriter{e}, nil
}

func (e *memEditor) Commit() error {
	e.kv.mu.Lock()
	defer e.kv.mu.Unlock()
	if e.kv.commitErr != nil {
		return e.kv.commitErr
	}
	e.kv.values[e.key] = bytes.Clone(e.buf.Bytes())
	delete(e.kv.editing, e.key)
	e.kv.commits++
	e.done = true
	return nil
}

func (e *memEditor) Abort() error {
	if e.done {
		return nil
	}
	e.kv.mu.Lock()
	defer e.kv.mu.Unlock()
	delete(e.kv.editing, e.key)
	e.kv.aborts++
	e.done = true
	return nil
}

type memWriter struct{ e *memEditor }

func (w memWriter) Write(p []byte) (int, error) {
	if err := w.e.kv.writeErr; err != nil {
		return 0, err
	}
	return w.e.buf.Write(p)
}

func (w memWriter) Close() error { return nil }

type memSnapshot struct{ data []byte }

func (s memSnapshot) Reader(index int) io.Reader {
	if index != 0 {
		return nil
	}
	return bytes.NewReader(s.data)
}

func (s memSnapshot) Size(index int) int64 { return int64(len(s.data)) }
func (s memSnapshot) Close() error         { return nil }
