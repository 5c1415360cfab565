// Package blobcache implements a fingerprint-keyed blob cache on two
// append-only region files.
//
// Storage layout:
//
//	<path>.idx  header: format, caller version, limits, active region
//	<path>.0    region: [magic][record]...
//	<path>.1    region: [magic][record]...
//
// Inserts append to the active region. When it reaches half of the entry or
// byte budget, the other region is emptied and becomes active, so the cache
// holds at most the budget and drops the oldest half on rollover. Hits in the
// inactive region are copied forward into the active one.
//
// Records carry a CRC-32C of their data; damaged records read as absent.
package blobcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrTooLarge = errors.New("blobcache: record exceeds region budget")
	ErrClosed   = errors.New("blobcache: cache closed")
)

// Options are the cache limits. A cache on disk written with different
// options is discarded on Open.
type Options struct {
	MaxEntries int
	MaxBytes   int64
	Version    int
}

// Stats describes region occupancy.
type Stats struct {
	ActiveRegion    int
	ActiveEntries   int
	InactiveEntries int
	ActiveBytes     int64
	InactiveBytes   int64
}

// Cache is safe for concurrent use.
type Cache struct {
	opts    Options
	idx     *os.File
	regions [2]*region
	active  int
	closed  bool
	mu      sync.Mutex
}

// Open opens the cache at path, creating or resetting it as needed.
func Open(path string, opts Options) (*Cache, error) {
	if opts.MaxEntries < 2 || opts.MaxBytes <= 2*(regionHeaderLen+recordHeaderLen) {
		return nil, fmt.Errorf("blobcache: invalid limits: %d entries, %d bytes", opts.MaxEntries, opts.MaxBytes)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	idx, err := os.OpenFile(path+".idx", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	want := header{version: opts.Version, maxEntries: opts.MaxEntries, maxBytes: opts.MaxBytes}
	h, err := readHeader(idx)
	reset := err != nil || h.version != want.version || h.maxEntries != want.maxEntries || h.maxBytes != want.maxBytes
	if !reset {
		want.active = h.active
	}

	c := &Cache{opts: opts, idx: idx, active: want.active}
	for i := range c.regions {
		r, err := openRegion(regionPath(path, i), reset)
		if err != nil {
			c.closeFiles()
			return nil, fmt.Errorf("open region %d: %w", i, err)
		}
		c.regions[i] = r
	}

	if reset {
		if err := idx.Truncate(0); err != nil {
			c.closeFiles()
			return nil, fmt.Errorf("reset index: %w", err)
		}
		if err := writeHeader(idx, want); err != nil {
			c.closeFiles()
			return nil, fmt.Errorf("write index: %w", err)
		}
	}
	return c, nil
}

func regionPath(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

// Remove deletes the cache files at path.
func Remove(path string) error {
	var errs []error
	for _, name := range []string{path + ".idx", regionPath(path, 0), regionPath(path, 1)} {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Insert stores data under key. A later insert of the same key shadows the
// earlier one.
func (c *Cache) Insert(key uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.insert(key, data)
}

func (c *Cache) insert(key uint64, data []byte) error {
	size := int64(recordHeaderLen + len(data))
	regionBudget := c.opts.MaxBytes / 2
	if regionHeaderLen+size > regionBudget {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	r := c.regions[c.active]
	if r.size+size > regionBudget || r.records >= c.opts.MaxEntries/2 {
		if err := c.flip(); err != nil {
			return fmt.Errorf("flip region: %w", err)
		}
		r = c.regions[c.active]
	}
	return r.append(key, data)
}

// flip empties the inactive region and makes it the active one.
func (c *Cache) flip() error {
	next := 1 - c.active
	if err := c.regions[next].truncate(); err != nil {
		return err
	}
	c.active = next
	return writeHeader(c.idx, header{
		active:     next,
		version:    c.opts.Version,
		maxEntries: c.opts.MaxEntries,
		maxBytes:   c.opts.MaxBytes,
	})
}

// Lookup returns the record stored under key, read into dst when it fits.
func (c *Cache) Lookup(key uint64, dst []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, ErrClosed
	}

	active := c.regions[c.active]
	if loc, ok := active.index[key]; ok {
		data, err := active.read(loc, dst)
		switch {
		case err == nil:
			return data, true, nil
		case errors.Is(err, errCorrupt):
			delete(active.index, key)
		default:
			return nil, false, err
		}
	}

	inactive := c.regions[1-c.active]
	loc, ok := inactive.index[key]
	if !ok {
		return nil, false, nil
	}
	data, err := inactive.read(loc, dst)
	if errors.Is(err, errCorrupt) {
		delete(inactive.index, key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := c.insert(key, data); err != nil {
		return nil, false, fmt.Errorf("copy forward: %w", err)
	}
	return data, true, nil
}

// Sync flushes both regions and the index to stable storage.
func (c *Cache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.sync()
}

func (c *Cache) sync() error {
	for i, r := range c.regions {
		if err := r.f.Sync(); err != nil {
			return fmt.Errorf("sync region %d: %w", i, err)
		}
	}
	if err := c.idx.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}
	return nil
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return regionStats(c.regions, c.active)
}

func regionStats(regions [2]*region, active int) Stats {
	a, inactive := regions[active], regions[1-active]
	return Stats{
		ActiveRegion:    active,
		ActiveEntries:   len(a.index),
		InactiveEntries: len(inactive.index),
		ActiveBytes:     a.size - regionHeaderLen,
		InactiveBytes:   inactive.size - regionHeaderLen,
	}
}

// Inspect reports the options and occupancy of the cache at path without
// opening it for writing. Nothing is reset or truncated; records after a torn
// tail are simply not counted.
func Inspect(path string) (Options, Stats, error) {
	idx, err := os.Open(path + ".idx")
	if err != nil {
		return Options{}, Stats{}, fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	h, err := readHeader(idx)
	if err != nil {
		return Options{}, Stats{}, fmt.Errorf("read index: %w", err)
	}
	var regions [2]*region
	for i := range regions {
		if regions[i], err = inspectRegion(regionPath(path, i)); err != nil {
			return Options{}, Stats{}, fmt.Errorf("inspect region %d: %w", i, err)
		}
	}
	opts := Options{MaxEntries: h.maxEntries, MaxBytes: h.maxBytes, Version: h.version}
	return opts, regionStats(regions, h.active), nil
}

// Close syncs and closes the cache files.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.sync()
	return errors.Join(err, c.closeFiles())
}

func (c *Cache) closeFiles() error {
	var errs []error
	for _, r := range c.regions {
		if r != nil {
			errs = append(errs, r.f.Close())
		}
	}
	errs = append(errs, c.idx.Close())
	return errors.Join(errs...)
}
