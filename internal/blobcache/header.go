package blobcache

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
)

var (
	indexMagic  = [4]byte{'B', 'L', 'B', 'C'}
	regionMagic = [4]byte{'B', 'L', 'B', 'D'}
)

const (
	formatVersion   = uint16(1)
	headerLen       = 32
	regionHeaderLen = int64(len(regionMagic))
	recordHeaderLen = 16
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// header is the content of the index file:
// [magic:4][format:2][active:2][version:4][maxEntries:4][maxBytes:8][crc:4][reserved:4]
type header struct {
	active     int
	version    int
	maxEntries int
	maxBytes   int64
}

func (h header) encode() []byte {
	buf := make([]byte, headerLen)
	copy(buf[0:4], indexMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.active))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.version))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.maxEntries))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.maxBytes))
	binary.LittleEndian.PutUint32(buf[24:28], checksum(buf[:24]))
	return buf
}

var errBadHeader = errors.New("blobcache: bad index header")

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerLen {
		return header{}, errBadHeader
	}
	if [4]byte(buf[0:4]) != indexMagic {
		return header{}, errBadHeader
	}
	if binary.LittleEndian.Uint16(buf[4:6]) != formatVersion {
		return header{}, errBadHeader
	}
	if binary.LittleEndian.Uint32(buf[24:28]) != checksum(buf[:24]) {
		return header{}, errBadHeader
	}
	h := header{
		active:     int(binary.LittleEndian.Uint16(buf[6:8])),
		version:    int(binary.LittleEndian.Uint32(buf[8:12])),
		maxEntries: int(binary.LittleEndian.Uint32(buf[12:16])),
		maxBytes:   int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
	if h.active != 0 && h.active != 1 {
		return header{}, errBadHeader
	}
	return h, nil
}

func readHeader(f *os.File) (header, error) {
	buf := make([]byte, headerLen)
	if _, err := f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return header{}, errBadHeader
		}
		return header{}, err
	}
	return decodeHeader(buf)
}

func writeHeader(f *os.File, h header) error {
	if _, err := f.WriteAt(h.encode(), 0); err != nil {
		return err
	}
	return nil
}

// recordHeader precedes every record in a region: [key:8][checksum:4][length:4].
func encodeRecordHeader(buf []byte, key uint64, sum uint32, length int) {
	binary.LittleEndian.PutUint64(buf[0:8], key)
	binary.LittleEndian.PutUint32(buf[8:12], sum)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(length))
}

func decodeRecordHeader(buf []byte) (key uint64, sum uint32, length int) {
	return binary.LittleEndian.Uint64(buf[0:8]),
		binary.LittleEndian.Uint32(buf[8:12]),
		int(binary.LittleEndian.Uint32(buf[12:16]))
}
