package cachebench

import (
	"fmt"
	"io"

	"github.com/oxtoacart/bpool"
)

// Buffer is a reusable byte storage with an (offset, length) view over it.
// The storage belongs to the Pool; callers read through Bytes only while they
// hold the buffer.
type Buffer struct {
	data   []byte
	offset int
	length int
}

func newBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size), length: size}
}

// Bytes returns the viewed sub-range of the storage.
func (b *Buffer) Bytes() []byte { return b.data[b.offset : b.offset+b.length] }

// Storage returns the whole backing storage, ignoring the view.
func (b *Buffer) Storage() []byte { return b.data }

func (b *Buffer) Offset() int { return b.offset }
func (b *Buffer) Len() int    { return b.length }
func (b *Buffer) Cap() int    { return len(b.data) }

// SetView moves the view. The range must lie within the storage.
func (b *Buffer) SetView(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return fmt.Errorf("%w: offset %d length %d storage %d", ErrInvalidView, offset, length, len(b.data))
	}
	b.offset = offset
	b.length = length
	return nil
}

// adopt makes data, as filled by a backend lookup, the storage and views all
// of it. data is usually a prefix of the current storage.
func (b *Buffer) adopt(data []byte) {
	b.data = data[:cap(data)]
	b.offset, b.length = 0, len(data)
}

// ReadFrom fills the storage from offset 0 until r reports EOF, growing the
// storage when the stream is larger than it. The view covers the bytes read.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	n := 0
	for {
		if n == len(b.data) {
			grown := make([]byte, max(2*len(b.data), 4096))
			copy(grown, b.data[:n])
			b.data = grown
		}
		m, err := r.Read(b.data[n:])
		n += m
		if err == io.EOF {
			b.offset, b.length = 0, n
			return int64(n), nil
		}
		if err != nil {
			b.offset, b.length = 0, n
			return int64(n), err
		}
	}
}

// Pool hands out fixed-size buffers backed by a bpool.BytePool. It keeps at
// most size free buffers and allocates a fresh one when none is free, so Get
// never blocks or fails.
type Pool struct {
	bufferSize int
	bytes      *bpool.BytePool
}

// NewPool pre-allocates size buffers of bufferSize bytes each.
func NewPool(size, bufferSize int) *Pool {
	p := &Pool{
		bufferSize: bufferSize,
		bytes:      bpool.NewBytePool(size, bufferSize),
	}
	for range size {
		p.bytes.Put(make([]byte, bufferSize))
	}
	return p
}

// Get returns a buffer whose view spans its whole storage.
func (p *Pool) Get() *Buffer {
	data := p.bytes.Get()
	return &Buffer{data: data, length: len(data)}
}

// Put returns b to the pool. Buffers that grew past the pool's buffer size,
// and buffers arriving when the pool is already full, are dropped.
func (p *Pool) Put(b *Buffer) {
	// BytePool would cut a grown buffer back to width and keep it.
	if b == nil || len(b.data) != p.bufferSize {
		return
	}
	p.bytes.Put(b.data)
	b.data = nil
	b.offset, b.length = 0, 0
}

// Free reports how many buffers are ready for reuse.
func (p *Pool) Free() int {
	return p.bytes.NumPooled()
}

// Clear drops all free buffers.
func (p *Pool) Clear() {
	for p.bytes.NumPooled() > 0 {
		p.bytes.Get()
	}
}

func (p *Pool) BufferSize() int { return p.bufferSize }
