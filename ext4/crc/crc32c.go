// Package crc implements the CRC32C (Castagnoli) conventions ext4 uses for
// its metadata checksums.
package crc

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32c continues a CRC32C computation: crc is the accumulator from a
// previous call (0 to start), b is appended to the covered byte stream.
func CRC32c(crc uint32, b []byte) uint32 {
	return crc32.Update(crc, castagnoli, b)
}

// Invert returns the bit-inverted final value ext4 stores on disk for an
// accumulated CRC32C.
func Invert(crc uint32) uint32 {
	return ^crc
}
