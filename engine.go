package cachebench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Op names the kind of comparison an iteration performs.
type Op string

const (
	OpWrite Op = "write"
	OpRead  Op = "read"
)

// Sample is one paired timing: the same operation on both caches.
type Sample struct {
	Blob time.Duration
	KV   time.Duration
}

// Averages are the arithmetic means of the recorded samples. Sides without
// samples average to zero.
type Averages struct {
	WriteBlob time.Duration
	WriteKV   time.Duration
	ReadBlob  time.Duration
	ReadKV    time.Duration
	Writes    int
	Reads     int
}

// Loader returns the payload cached under the input identifier id.
type Loader func(ctx context.Context, id string) ([]byte, error)

// Recorder receives every recorded sample and every dropped iteration.
type Recorder interface {
	RecordSample(ctx context.Context, op Op, s Sample)
	RecordFailure(ctx context.Context, op Op, err error)
}

// Engine runs timed comparisons of the blob and key-value caches. Iterations
// are serialized; a failed iteration records nothing.
type Engine struct {
	blob     *BlobAdapter
	kv       *KVAdapter
	pool     *Pool
	load     Loader
	logger   *Logger
	recorder Recorder
	now      func() time.Time
	verify   bool

	inputs []string
	index  int

	writes []Sample
	reads  []Sample

	closed bool
	mu     sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithEngineLogger(l *Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReadVerification compares the payloads both caches returned after each
// timed read and logs differences.
func WithReadVerification(enabled bool) EngineOption {
	return func(e *Engine) { e.verify = enabled }
}

func NewEngine(blob *BlobAdapter, kv *KVAdapter, pool *Pool, load Loader, opts ...EngineOption) *Engine {
	e := &Engine{
		blob:   blob,
		kv:     kv,
		pool:   pool,
		load:   load,
		logger: NoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetInputs replaces the input identifiers and rewinds the cursor.
func (e *Engine) SetInputs(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append([]string(nil), ids...)
	e.index = 0
}

// Next advances the cursor, wrapping to the first input past the end.
func (e *Engine) Next() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next()
}

// Current returns the identifier under the cursor.
func (e *Engine) Current() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current()
}

func (e *Engine) next() (string, error) {
	if len(e.inputs) == 0 {
		return "", ErrNoInputs
	}
	e.index++
	if e.index >= len(e.inputs) {
		e.index = 0
	}
	return e.inputs[e.index], nil
}

func (e *Engine) current() (string, error) {
	if len(e.inputs) == 0 {
		return "", ErrNoInputs
	}
	return e.inputs[e.index], nil
}

// CompareWrite caches the next input in both caches, timing each insert.
func (e *Engine) CompareWrite(ctx context.Context) (Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Sample{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	id, err := e.next()
	if err != nil {
		return Sample{}, err
	}
	payload, err := e.load(ctx, id)
	if err != nil {
		err = fmt.Errorf("load %s: %w", id, err)
		e.dropped(ctx, OpWrite, id, err)
		return Sample{}, err
	}

	key := []byte(id)
	var s Sample
	var errs []error

	start := e.now()
	if err := e.blob.Put(key, payload); err != nil {
		errs = append(errs, err)
	}
	s.Blob = e.now().Sub(start)

	start = e.now()
	if err := e.kv.Put(key, payload); err != nil {
		errs = append(errs, err)
	}
	s.KV = e.now().Sub(start)

	if err := errors.Join(errs...); err != nil {
		e.dropped(ctx, OpWrite, id, err)
		return Sample{}, err
	}
	e.writes = append(e.writes, s)
	e.recorded(ctx, OpWrite, id, s)
	return s, nil
}

// CompareRead reads the current input back from both caches through one
// pooled buffer, timing each lookup. A miss on either side drops the sample.
func (e *Engine) CompareRead(ctx context.Context) (Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Sample{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	id, err := e.current()
	if err != nil {
		return Sample{}, err
	}

	buf := e.pool.Get()
	defer e.pool.Put(buf)

	key := []byte(id)
	var s Sample
	var errs []error
	var blobPayload []byte

	start := e.now()
	found, err := e.blob.Get(key, buf)
	s.Blob = e.now().Sub(start)
	switch {
	case err != nil:
		errs = append(errs, err)
	case !found:
		errs = append(errs, fmt.Errorf("blob: %w", ErrMiss))
	case e.verify:
		blobPayload = bytes.Clone(buf.Bytes())
	}

	start = e.now()
	found, err = e.kv.Get(key, buf)
	s.KV = e.now().Sub(start)
	switch {
	case err != nil:
		errs = append(errs, err)
	case !found:
		errs = append(errs, fmt.Errorf("kv: %w", ErrMiss))
	}

	if err := errors.Join(errs...); err != nil {
		e.dropped(ctx, OpRead, id, err)
		return Sample{}, err
	}
	if e.verify && !bytes.Equal(blobPayload, buf.Bytes()) {
		e.logger.WarnContext(ctx, "cached payloads differ",
			"id", id,
			"blob_bytes", len(blobPayload),
			"kv_bytes", buf.Len(),
		)
	}
	e.reads = append(e.reads, s)
	e.recorded(ctx, OpRead, id, s)
	return s, nil
}

func (e *Engine) recorded(ctx context.Context, op Op, id string, s Sample) {
	e.logger.LogIteration(ctx, op, id, s, nil)
	if e.recorder != nil {
		e.recorder.RecordSample(ctx, op, s)
	}
}

func (e *Engine) dropped(ctx context.Context, op Op, id string, err error) {
	e.logger.LogIteration(ctx, op, id, Sample{}, err)
	if e.recorder != nil {
		e.recorder.RecordFailure(ctx, op, err)
	}
}

// Writes returns a copy of the recorded write samples.
func (e *Engine) Writes() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Sample(nil), e.writes...)
}

// Reads returns a copy of the recorded read samples.
func (e *Engine) Reads() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Sample(nil), e.reads...)
}

func (e *Engine) Averages() Averages {
	e.mu.Lock()
	defer e.mu.Unlock()

	wb, wk := mean(e.writes)
	rb, rk := mean(e.reads)
	return Averages{
		WriteBlob: wb,
		WriteKV:   wk,
		ReadBlob:  rb,
		ReadKV:    rk,
		Writes:    len(e.writes),
		Reads:     len(e.reads),
	}
}

// close makes later comparisons fail with ErrClosed. It waits for a running
// iteration to finish.
func (e *Engine) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Reset drops all recorded samples.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes = nil
	e.reads = nil
}

func mean(samples []Sample) (blob, kv time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	for _, s := range samples {
		blob += s.Blob
		kv += s.KV
	}
	n := time.Duration(len(samples))
	return blob / n, kv / n
}
