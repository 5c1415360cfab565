package compression

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

func newLZ4Writer(w io.Writer, level int) (io.WriteCloser, error) {
	var compressionLevel lz4.CompressionLevel
	switch level {
	case 1:
		compressionLevel = lz4.Fast
	case 3:
		compressionLevel = lz4.Level9
	default:
		compressionLevel = lz4.Level5
	}
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(compressionLevel)); err != nil {
		return nil, err
	}
	return zw, nil
}

func newLZ4Reader(r io.Reader) io.ReadCloser {
	return io.NopCloser(lz4.NewReader(r))
}
