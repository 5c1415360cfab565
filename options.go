package cachebench

import "time"

const (
	DefaultMaxEntries = 5000
	DefaultMaxBytes   = 200 * 1024 * 1024
	DefaultVersion    = 1
	DefaultPoolSize   = 4
	DefaultBufferSize = 200 * 1024
)

// Options configures a Harness.
type Options struct {
	MaxEntries       int
	MaxBytes         int64
	Version          int
	PoolSize         int
	BufferSize       int
	Compression      string
	CompressionLevel int
	VerifyReads      bool
	Logger           *Logger
	Recorder         Recorder
	Clock            func() time.Time
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxEntries: DefaultMaxEntries,
		MaxBytes:   DefaultMaxBytes,
		Version:    DefaultVersion,
		PoolSize:   DefaultPoolSize,
		BufferSize: DefaultBufferSize,
		Logger:     NoopLogger(),
	}
}

// WithMaxEntries sets the entry limit of both caches.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxBytes sets the byte budget of both caches.
func WithMaxBytes(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxBytes = n
		}
	}
}

// WithVersion sets the schema version. Caches written under another version
// are discarded on open.
func WithVersion(v int) Option {
	return func(o *Options) { o.Version = v }
}

// WithPool sets the number of pooled read buffers and their size.
func WithPool(size, bufferSize int) Option {
	return func(o *Options) {
		if size > 0 {
			o.PoolSize = size
		}
		if bufferSize > 0 {
			o.BufferSize = bufferSize
		}
	}
}

// WithCompression compresses key-value cache entries with algorithm ("zstd"
// or "lz4") at the given level (1 fastest, 2 default, 3 best compression).
func WithCompression(algorithm string, level int) Option {
	return func(o *Options) {
		o.Compression = algorithm
		o.CompressionLevel = level
	}
}

// WithVerifyReads compares both caches' payloads after every read.
func WithVerifyReads(enabled bool) Option {
	return func(o *Options) { o.VerifyReads = enabled }
}

func WithLogger(l *Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRecorder forwards samples and failures to r.
func WithRecorder(r Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

// WithClockFunc replaces time.Now for latency measurement.
func WithClockFunc(now func() time.Time) Option {
	return func(o *Options) { o.Clock = now }
}
