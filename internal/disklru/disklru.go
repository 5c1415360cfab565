// Package disklru implements a journaled, size-bounded key-value disk cache.
//
// Every entry has a fixed number of values stored as files named
// <key>.<index> inside the cache directory. Writes go through an Editor to
// <key>.<index>.tmp files and become visible atomically on Commit. Readers
// get a Snapshot of open files, unaffected by later edits.
//
// A journal records every edit, commit, removal and read so the cache can
// be reconstructed on open. Least recently used entries are evicted when the
// cache grows beyond its size or entry budget.
package disklru

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/aweris/cachebench/internal/compression"
)

var (
	ErrClosed       = errors.New("disklru: cache closed")
	ErrInvalidKey   = errors.New("disklru: keys must match [a-z0-9_-]{1,120}")
	ErrEditorClosed = errors.New("disklru: editor already committed or aborted")
	ErrIncomplete   = errors.New("disklru: new entry is missing a value")
	ErrWriteFailed  = errors.New("disklru: value write failed")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)

// Options configures a cache. AppVersion, ValueCount and Compression are
// recorded in the journal; a cache written with other values is wiped on
// Open.
type Options struct {
	AppVersion       int
	ValueCount       int
	MaxSize          int64
	MaxEntries       int // 0 means unbounded
	Compression      compression.Algorithm
	CompressionLevel int
}

type entry struct {
	key      string
	lengths  []int64
	readable bool // published by at least one commit
	dirty    bool // open edit seen while replaying the journal
	editor   *Editor
}

// Cache is safe for concurrent use.
type Cache struct {
	dir  string
	opts Options

	journal      *os.File
	journalW     *bufio.Writer
	redundantOps int

	// Keys() lists entries least recently used first. Trimming is done by
	// the cache itself so entries under edit are never evicted.
	entries *simplelru.LRU[string, *entry]
	size    int64

	compressor *compression.Compressor
	closed     bool
	mu         sync.Mutex
}

// Open opens the cache in dir, creating it if needed. An unreadable or
// incompatible journal wipes the directory.
func Open(dir string, opts Options) (*Cache, error) {
	if opts.ValueCount <= 0 {
		return nil, errors.New("disklru: value count must be > 0")
	}
	if opts.MaxSize <= 0 {
		return nil, errors.New("disklru: max size must be > 0")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	compressor, err := compression.NewCompressor(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		dir:        dir,
		opts:       opts,
		entries:    newEntryTable(),
		compressor: compressor,
	}

	// A backup left by an interrupted rebuild is the journal.
	if _, err := os.Stat(c.path(journalBackup)); err == nil {
		if _, err := os.Stat(c.path(journalFile)); err == nil {
			_ = os.Remove(c.path(journalBackup))
		} else if err := os.Rename(c.path(journalBackup), c.path(journalFile)); err != nil {
			return nil, fmt.Errorf("restore journal: %w", err)
		}
	}

	err = c.readJournal()
	switch {
	case err == nil:
		c.processJournal()
		if err := c.openJournal(); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return c, nil
	case errors.Is(err, os.ErrNotExist):
	case errors.Is(err, errCorruptJournal):
		if err := wipe(dir); err != nil {
			return nil, fmt.Errorf("wipe %s: %w", dir, err)
		}
		c.entries.Purge()
	default:
		return nil, fmt.Errorf("read journal: %w", err)
	}

	if err := c.rebuildJournal(); err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}
	return c, nil
}

// Remove deletes the cache directory. The cache must not be open.
func Remove(dir string) error {
	return os.RemoveAll(dir)
}

func wipe(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func (c *Cache) path(name string) string { return filepath.Join(c.dir, name) }

func (c *Cache) cleanPath(key string, i int) string {
	return c.path(key + "." + strconv.Itoa(i))
}

func (c *Cache) dirtyPath(key string, i int) string {
	return c.cleanPath(key, i) + ".tmp"
}

// touch returns the entry for key, creating it, and marks it most recently
// used.
func (c *Cache) touch(key string) *entry {
	if e, ok := c.entries.Get(key); ok {
		return e
	}
	e := &entry{key: key, lengths: make([]int64, c.opts.ValueCount)}
	c.entries.Add(key, e)
	return e
}

func (c *Cache) drop(key string) {
	c.entries.Remove(key)
}

func newEntryTable() *simplelru.LRU[string, *entry] {
	entries, _ := simplelru.NewLRU[string, *entry](math.MaxInt, nil)
	return entries
}

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Edit opens an editor for key. It returns nil, nil when key is already
// being edited.
func (c *Cache) Edit(key string) (*Editor, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if e, ok := c.entries.Peek(key); ok && e.editor != nil {
		return nil, nil
	}
	e := c.touch(key)
	ed := &Editor{c: c, e: e, written: make([]bool, c.opts.ValueCount)}
	e.editor = ed

	// Flush so the DIRTY line is on disk before any temp file is.
	if err := c.appendJournal(opDirty + " " + key + "\n"); err != nil {
		e.editor = nil
		return nil, err
	}
	if err := c.journalW.Flush(); err != nil {
		e.editor = nil
		return nil, fmt.Errorf("flush journal: %w", err)
	}
	return ed, nil
}

// Get returns a snapshot of key, or nil, nil when key is absent or its files
// have gone missing.
func (c *Cache) Get(key string) (*Snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	e, ok := c.entries.Peek(key)
	if !ok || !e.readable {
		return nil, nil
	}

	snap := &Snapshot{key: key, lengths: append([]int64(nil), e.lengths...)}
	for i := range c.opts.ValueCount {
		f, err := os.Open(c.cleanPath(key, i))
		if err != nil {
			snap.Close()
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		snap.files = append(snap.files, f)
		r, err := c.compressor.NewReader(f)
		if err != nil {
			snap.Close()
			return nil, fmt.Errorf("open decoder: %w", err)
		}
		snap.readers = append(snap.readers, r)
	}

	c.redundantOps++
	c.entries.Get(key)
	if err := c.appendJournal(opRead + " " + key + "\n"); err != nil {
		snap.Close()
		return nil, err
	}
	if c.journalRebuildRequired() {
		if err := c.rebuildJournal(); err != nil {
			snap.Close()
			return nil, fmt.Errorf("rebuild journal: %w", err)
		}
	}
	return snap, nil
}

// Remove drops key unless it is being edited. It reports whether an entry
// was removed.
func (c *Cache) Remove(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.remove(key)
}

func (c *Cache) remove(key string) (bool, error) {
	e, ok := c.entries.Peek(key)
	if !ok || e.editor != nil {
		return false, nil
	}
	for i := range c.opts.ValueCount {
		if err := os.Remove(c.cleanPath(key, i)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove %s.%d: %w", key, i, err)
		}
		c.size -= e.lengths[i]
	}
	c.redundantOps++
	c.drop(key)
	if err := c.appendJournal(opRemove + " " + key + "\n"); err != nil {
		return true, err
	}
	if c.journalRebuildRequired() {
		if err := c.rebuildJournal(); err != nil {
			return true, fmt.Errorf("rebuild journal: %w", err)
		}
	}
	return true, nil
}

// trim evicts least recently used entries until the cache fits its budget.
// Entries being edited are skipped.
func (c *Cache) trim() error {
	for _, key := range c.entries.Keys() {
		if !c.overBudget() {
			break
		}
		if _, err := c.remove(key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) overBudget() bool {
	return c.size > c.opts.MaxSize || (c.opts.MaxEntries > 0 && c.entries.Len() > c.opts.MaxEntries)
}

// Flush trims the cache and writes buffered journal lines to the file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.trim(); err != nil {
		return err
	}
	return c.journalW.Flush()
}

// Size returns the bytes stored in committed values.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries, including ones with an open first edit.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) Dir() string { return c.dir }

// Close aborts open edits, trims and closes the journal.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	var errs []error
	for _, e := range c.entries.Values() {
		if ed := e.editor; ed != nil {
			errs = append(errs, ed.closeWriters(), ed.complete(false))
		}
	}
	errs = append(errs, c.trim(), c.journalW.Flush(), c.journal.Close())
	c.closed = true
	return errors.Join(errs...)
}

// Delete closes the cache and removes its directory.
func (c *Cache) Delete() error {
	if err := c.Close(); err != nil {
		return err
	}
	return Remove(c.dir)
}
