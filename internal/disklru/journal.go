package disklru

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aweris/cachebench/internal/compression"
)

// Journal format:
//
//	cachebench.disklru
//	1
//	<app version>
//	<value count>
//	<compression: none|zstd|lz4>
//
//	DIRTY <key>
//	CLEAN <key> <length>...
//	REMOVE <key>
//	READ <key>
//
// DIRTY opens an edit; it is followed by CLEAN when the edit is committed
// or REMOVE when it is aborted. A DIRTY line without a follow-up marks
// temporary files to delete on open.
const (
	journalFile   = "journal"
	journalTmp    = "journal.tmp"
	journalBackup = "journal.bkp"

	journalMagic   = "cachebench.disklru"
	journalVersion = "1"

	opClean  = "CLEAN"
	opDirty  = "DIRTY"
	opRemove = "REMOVE"
	opRead   = "READ"
)

var errCorruptJournal = errors.New("disklru: corrupt journal")

func (c *Cache) journalHeader() []string {
	return []string{
		journalMagic,
		journalVersion,
		strconv.Itoa(c.opts.AppVersion),
		strconv.Itoa(c.opts.ValueCount),
		string(c.compressor.Algorithm()),
		"",
	}
}

// readJournal replays the journal into the entry table.
func (c *Cache) readJournal() error {
	f, err := os.Open(c.path(journalFile))
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i, want := range c.journalHeader() {
		if !sc.Scan() {
			return fmt.Errorf("%w: short header", errCorruptJournal)
		}
		if got := sc.Text(); got != want {
			return fmt.Errorf("%w: header line %d is %q, want %q", errCorruptJournal, i, got, want)
		}
	}

	return c.replayJournal(sc)
}

func (c *Cache) replayJournal(sc *bufio.Scanner) error {
	lines := 0
	for sc.Scan() {
		if err := c.readJournalLine(sc.Text()); err != nil {
			return err
		}
		lines++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	c.redundantOps = lines - c.entries.Len()
	return nil
}

// Info describes a cache as its journal records it.
type Info struct {
	AppVersion  int
	ValueCount  int
	Compression compression.Algorithm
	Entries     int
	Size        int64
}

// Inspect replays the journal under dir without opening the cache: nothing
// is trimmed, wiped or rewritten. Entries with an unfinished edit are not
// counted.
func Inspect(dir string) (Info, error) {
	c := &Cache{dir: dir, entries: newEntryTable()}
	name := c.path(journalFile)
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		name = c.path(journalBackup)
	}
	f, err := os.Open(name)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var header [6]string
	for i := range header {
		if !sc.Scan() {
			return Info{}, fmt.Errorf("%w: short header", errCorruptJournal)
		}
		header[i] = sc.Text()
	}
	if header[0] != journalMagic || header[1] != journalVersion || header[5] != "" {
		return Info{}, fmt.Errorf("%w: unknown format %q %q", errCorruptJournal, header[0], header[1])
	}

	var info Info
	if info.AppVersion, err = strconv.Atoi(header[2]); err != nil {
		return Info{}, fmt.Errorf("%w: app version %q", errCorruptJournal, header[2])
	}
	if info.ValueCount, err = strconv.Atoi(header[3]); err != nil || info.ValueCount <= 0 {
		return Info{}, fmt.Errorf("%w: value count %q", errCorruptJournal, header[3])
	}
	if info.Compression, err = compression.ParseAlgorithm(header[4]); err != nil {
		return Info{}, fmt.Errorf("%w: %w", errCorruptJournal, err)
	}

	c.opts.ValueCount = info.ValueCount
	if err := c.replayJournal(sc); err != nil {
		return Info{}, err
	}
	for _, e := range c.entries.Values() {
		if e.dirty {
			continue
		}
		info.Entries++
		for _, n := range e.lengths {
			info.Size += n
		}
	}
	return info, nil
}

func (c *Cache) readJournalLine(line string) error {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q", errCorruptJournal, line)
	}
	op, key := parts[0], parts[1]

	if op == opRemove && len(parts) == 2 {
		c.drop(key)
		return nil
	}

	e := c.touch(key)
	switch {
	case op == opClean && len(parts) == 2+c.opts.ValueCount:
		lengths := make([]int64, c.opts.ValueCount)
		for i, s := range parts[2:] {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %q", errCorruptJournal, line)
			}
			lengths[i] = n
		}
		e.readable = true
		e.dirty = false
		e.lengths = lengths
	case op == opDirty && len(parts) == 2:
		e.dirty = true
	case op == opRead && len(parts) == 2:
	default:
		return fmt.Errorf("%w: %q", errCorruptJournal, line)
	}
	return nil
}

// processJournal computes the cache size and deletes edits that never
// completed.
func (c *Cache) processJournal() {
	c.size = 0
	for _, key := range c.entries.Keys() {
		e, _ := c.entries.Peek(key)
		if !e.dirty {
			for _, n := range e.lengths {
				c.size += n
			}
			continue
		}
		for i := range c.opts.ValueCount {
			_ = os.Remove(c.cleanPath(key, i))
			_ = os.Remove(c.dirtyPath(key, i))
		}
		c.drop(key)
	}
}

// rebuildJournal writes a compact journal holding only the current state and
// atomically replaces the old one.
func (c *Cache) rebuildJournal() error {
	if c.journal != nil {
		if err := c.journalW.Flush(); err != nil {
			return err
		}
		if err := c.journal.Close(); err != nil {
			return err
		}
		c.journal = nil
	}

	tmp, err := os.Create(c.path(journalTmp))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for _, line := range c.journalHeader() {
		w.WriteString(line + "\n")
	}
	for _, e := range c.entries.Values() {
		if e.editor != nil {
			w.WriteString(opDirty + " " + e.key + "\n")
		} else {
			w.WriteString(cleanLine(e))
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if _, err := os.Stat(c.path(journalFile)); err == nil {
		if err := os.Rename(c.path(journalFile), c.path(journalBackup)); err != nil {
			return err
		}
	}
	if err := os.Rename(c.path(journalTmp), c.path(journalFile)); err != nil {
		return err
	}
	_ = os.Remove(c.path(journalBackup))

	c.redundantOps = 0
	return c.openJournal()
}

func (c *Cache) openJournal() error {
	f, err := os.OpenFile(c.path(journalFile), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	c.journal = f
	c.journalW = bufio.NewWriter(f)
	return nil
}

func (c *Cache) appendJournal(line string) error {
	if _, err := c.journalW.WriteString(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func (c *Cache) journalRebuildRequired() bool {
	const redundantOpCompactThreshold = 2000
	return c.redundantOps >= redundantOpCompactThreshold && c.redundantOps >= c.entries.Len()
}

func cleanLine(e *entry) string {
	var b strings.Builder
	b.WriteString(opClean)
	b.WriteByte(' ')
	b.WriteString(e.key)
	for _, n := range e.lengths {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n, 10))
	}
	b.WriteByte('\n')
	return b.String()
}
