package disklru

import (
	"errors"
	"io"
	"os"
)

// Snapshot holds the values of an entry as they were when Get returned.
// The caller must Close it.
type Snapshot struct {
	key     string
	lengths []int64
	files   []*os.File
	readers []io.ReadCloser
}

func (s *Snapshot) Key() string { return s.key }

// Reader returns the decoded stream of value i, or nil if i is out of range.
func (s *Snapshot) Reader(i int) io.Reader {
	if i < 0 || i >= len(s.readers) {
		return nil
	}
	return s.readers[i]
}

// Size returns the stored length of value i. With compression enabled this is
// the compressed size.
func (s *Snapshot) Size(i int) int64 {
	if i < 0 || i >= len(s.lengths) {
		return 0
	}
	return s.lengths[i]
}

func (s *Snapshot) Close() error {
	var errs []error
	for _, r := range s.readers {
		errs = append(errs, r.Close())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	s.readers, s.files = nil, nil
	return errors.Join(errs...)
}
