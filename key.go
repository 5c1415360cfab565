package cachebench

import (
	"hash/crc64"

	"github.com/opencontainers/go-digest"
)

// fingerprintPoly is the reflected CRC-64 polynomial of the gallery blob
// cache format.
const fingerprintPoly = 0x95AC9329AC4BC9B5

var fingerprintTable = crc64.MakeTable(fingerprintPoly)

// Fingerprint returns the 64-bit blob cache key of key. The register starts
// at all ones and is not inverted at the end; crc64.Checksum inverts on both
// sides, so its result is inverted back.
func Fingerprint(key []byte) uint64 {
	return ^crc64.Checksum(key, fingerprintTable)
}

// Digest returns the key-value cache key of key: lowercase hex SHA-256.
func Digest(key []byte) string {
	return digest.SHA256.FromBytes(key).Encoded()
}
