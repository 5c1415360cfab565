package blobcache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

type location struct {
	offset int64 // of the record data
	length int
	sum    uint32
}

// region is one append-only data file.
type region struct {
	f       *os.File
	index   map[uint64]location
	size    int64 // end of the last good record
	records int
}

func openRegion(path string, reset bool) (*region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	r := &region{f: f, index: make(map[uint64]location)}

	if !reset {
		var magic [4]byte
		if _, err := f.ReadAt(magic[:], 0); err != nil || magic != regionMagic {
			reset = true
		}
	}
	if reset {
		if err := r.truncate(); err != nil {
			f.Close()
			return nil, err
		}
		return r, nil
	}

	if err := r.scan(); err != nil {
		f.Close()
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return r, nil
}

// scan rebuilds the index from the records on disk. A torn or corrupt record
// ends the region: the file is cut back to the last good record.
func (r *region) scan() error {
	end, err := r.load()
	if err != nil {
		return err
	}
	if r.size < end {
		return r.f.Truncate(r.size)
	}
	return nil
}

// inspectRegion indexes the region at path read-only. A missing or
// unrecognised file is an empty region.
func inspectRegion(path string) (*region, error) {
	r := &region{index: make(map[uint64]location), size: regionHeaderLen}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil || magic != regionMagic {
		return r, nil
	}
	r.f = f
	if _, err := r.load(); err != nil {
		return nil, err
	}
	r.f = nil
	return r, nil
}

// load indexes records up to the first bad one and returns the file size.
func (r *region) load() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	end := info.Size()

	br := bufio.NewReaderSize(io.NewSectionReader(r.f, regionHeaderLen, end-regionHeaderLen), 64*1024)
	hdr := make([]byte, recordHeaderLen)
	var data []byte
	off := regionHeaderLen

	for off < end {
		if _, err := io.ReadFull(br, hdr); err != nil {
			break
		}
		key, sum, length := decodeRecordHeader(hdr)
		if off+recordHeaderLen+int64(length) > end {
			break
		}
		if cap(data) < length {
			data = make([]byte, length)
		}
		data = data[:length]
		if _, err := io.ReadFull(br, data); err != nil {
			break
		}
		if checksum(data) != sum {
			break
		}
		r.index[key] = location{offset: off + recordHeaderLen, length: length, sum: sum}
		r.records++
		off += recordHeaderLen + int64(length)
	}

	r.size = off
	return end, nil
}

func (r *region) truncate() error {
	if err := r.f.Truncate(0); err != nil {
		return err
	}
	if _, err := r.f.WriteAt(regionMagic[:], 0); err != nil {
		return err
	}
	clear(r.index)
	r.size = regionHeaderLen
	r.records = 0
	return nil
}

func (r *region) append(key uint64, data []byte) error {
	rec := make([]byte, recordHeaderLen+len(data))
	sum := checksum(data)
	encodeRecordHeader(rec, key, sum, len(data))
	copy(rec[recordHeaderLen:], data)

	if _, err := r.f.WriteAt(rec, r.size); err != nil {
		// Cut off whatever part of the record made it to disk.
		_ = r.f.Truncate(r.size)
		return err
	}
	r.index[key] = location{offset: r.size + recordHeaderLen, length: len(data), sum: sum}
	r.size += int64(len(rec))
	r.records++
	return nil
}

var errCorrupt = errors.New("blobcache: record checksum mismatch")

// read copies the record at loc into dst when it fits.
func (r *region) read(loc location, dst []byte) ([]byte, error) {
	var buf []byte
	if loc.length <= cap(dst) {
		buf = dst[:loc.length]
	} else {
		buf = make([]byte, loc.length)
	}
	if _, err := r.f.ReadAt(buf, loc.offset); err != nil {
		return nil, err
	}
	if checksum(buf) != loc.sum {
		return nil, errCorrupt
	}
	return buf, nil
}
