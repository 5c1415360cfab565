// Package compression wraps value streams in zstd or LZ4 frames.
package compression

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Algorithm names a stream codec. The name is what gets persisted.
type Algorithm string

const (
	None Algorithm = "none"
	Zstd Algorithm = "zstd"
	LZ4  Algorithm = "lz4"
)

var ErrUnknownAlgorithm = errors.New("compression: unknown algorithm")

// ParseAlgorithm accepts the algorithm names case-insensitively; "" and
// "off" mean None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(s)); a {
	case "", "off":
		return None, nil
	case None, Zstd, LZ4:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Compressor opens encoding writers and decoding readers for one algorithm.
// A None compressor passes bytes through unchanged.
type Compressor struct {
	algo  Algorithm
	level int
}

// NewCompressor maps level 1..3 to the codec's fastest, default and best
// setting. Other levels select the default.
func NewCompressor(algo Algorithm, level int) (*Compressor, error) {
	if algo == "" {
		algo = None
	}
	if _, err := ParseAlgorithm(string(algo)); err != nil {
		return nil, err
	}
	if level < 1 || level > 3 {
		level = 2
	}
	return &Compressor{algo: algo, level: level}, nil
}

func (c *Compressor) Algorithm() Algorithm { return c.algo }

func (c *Compressor) Enabled() bool { return c.algo != None }

// NewWriter returns a writer compressing into w. Closing it finishes the
// frame but does not close w.
func (c *Compressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.algo {
	case Zstd:
		return newZstdWriter(w, c.level)
	case LZ4:
		return newLZ4Writer(w, c.level)
	default:
		return nopWriteCloser{w}, nil
	}
}

// NewReader returns a reader decompressing r. Closing it releases the
// decoder but does not close r.
func (c *Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c.algo {
	case Zstd:
		return newZstdReader(r)
	case LZ4:
		return newLZ4Reader(r), nil
	default:
		return io.NopCloser(r), nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
