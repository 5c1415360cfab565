package disklru

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"
)

// Editor writes the values of one entry. Exactly one of Commit or Abort
// takes effect; Abort after Commit does nothing, so it can be deferred.
type Editor struct {
	c       *Cache
	e       *entry
	written []bool
	writers []*valueWriter
	failed  atomic.Bool
	done    bool
}

// NewWriter returns a writer for value index. It truncates any earlier
// writer's output for the same index.
func (ed *Editor) NewWriter(index int) (io.WriteCloser, error) {
	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if ed.done || ed.e.editor != ed {
		return nil, ErrEditorClosed
	}
	if index < 0 || index >= c.opts.ValueCount {
		return nil, fmt.Errorf("disklru: value index %d out of range [0, %d)", index, c.opts.ValueCount)
	}

	path := c.dirtyPath(ed.e.key, index)
	f, err := os.Create(path)
	if err != nil {
		// The directory may have been removed underneath us.
		if mkErr := os.MkdirAll(c.dir, 0755); mkErr != nil {
			return nil, err
		}
		if f, err = os.Create(path); err != nil {
			return nil, err
		}
	}
	enc, err := c.compressor.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open encoder: %w", err)
	}

	ed.written[index] = true
	w := &valueWriter{ed: ed, f: f, enc: enc}
	ed.writers = append(ed.writers, w)
	return w, nil
}

// Commit publishes the written values. Values not rewritten keep their
// previous content; a new entry must have every value written. If a write
// failed, the entry is removed and ErrWriteFailed returned.
func (ed *Editor) Commit() error {
	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if ed.done {
		return ErrEditorClosed
	}

	closeErr := ed.closeWriters()
	if closeErr != nil || ed.failed.Load() {
		err := ed.complete(false)
		_, rmErr := c.remove(ed.e.key)
		return errors.Join(ErrWriteFailed, closeErr, err, rmErr)
	}
	return ed.complete(true)
}

// Abort discards the written values.
func (ed *Editor) Abort() error {
	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if ed.done {
		return nil
	}
	return errors.Join(ed.closeWriters(), ed.complete(false))
}

func (ed *Editor) closeWriters() error {
	var errs []error
	for _, w := range ed.writers {
		errs = append(errs, w.Close())
	}
	ed.writers = nil
	return errors.Join(errs...)
}

// complete finishes the edit. The cache lock must be held.
func (ed *Editor) complete(success bool) error {
	c, e := ed.c, ed.e
	ed.done = true

	if success && !e.readable && slices.Contains(ed.written, false) {
		ed.discardTemp()
		e.editor = nil
		c.drop(e.key)
		return errors.Join(ErrIncomplete, c.appendJournal(opRemove+" "+e.key+"\n"), c.journalW.Flush())
	}

	var errs []error
	for i := range c.opts.ValueCount {
		dirty := c.dirtyPath(e.key, i)
		if !success || !ed.written[i] {
			_ = os.Remove(dirty)
			continue
		}
		info, err := os.Stat(dirty)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Rename(dirty, c.cleanPath(e.key, i)); err != nil {
			errs = append(errs, err)
			continue
		}
		c.size += info.Size() - e.lengths[i]
		e.lengths[i] = info.Size()
	}

	c.redundantOps++
	e.editor = nil
	if e.readable || success {
		e.readable = true
		errs = append(errs, c.appendJournal(cleanLine(e)))
	} else {
		c.drop(e.key)
		errs = append(errs, c.appendJournal(opRemove+" "+e.key+"\n"))
	}
	errs = append(errs, c.journalW.Flush())

	if c.overBudget() {
		errs = append(errs, c.trim())
	}
	if c.journalRebuildRequired() {
		errs = append(errs, c.rebuildJournal())
	}
	return errors.Join(errs...)
}

func (ed *Editor) discardTemp() {
	for i := range ed.c.opts.ValueCount {
		_ = os.Remove(ed.c.dirtyPath(ed.e.key, i))
	}
}

// valueWriter records write failures on its editor so Commit can refuse to
// publish a partial value.
type valueWriter struct {
	ed     *Editor
	f      *os.File
	enc    io.WriteCloser
	closed bool
}

func (w *valueWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.enc.Write(p)
	if err != nil {
		w.ed.failed.Store(true)
	}
	return n, err
}

func (w *valueWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := errors.Join(w.enc.Close(), w.f.Close())
	if err != nil {
		w.ed.failed.Store(true)
	}
	return err
}
