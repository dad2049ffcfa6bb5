// Package testhelper provides a block device stub and byte-diff helpers
// used by tests to inspect written images.
package testhelper

import (
	"fmt"
	"sort"
)

// BlockDeviceImpl implements backend.Device, capturing every written block
// in memory for later inspection.
type BlockDeviceImpl struct {
	Blocks map[uint64][]byte
	// Writes counts WriteBlock calls, including overwrites
	Writes int
}

// NewBlockDevice creates an empty capturing device.
func NewBlockDevice() *BlockDeviceImpl {
	return &BlockDeviceImpl{Blocks: map[uint64][]byte{}}
}

// WriteBlock stores a zero-padded copy of p as block index.
func (d *BlockDeviceImpl) WriteBlock(index uint64, p []byte) error {
	if len(p) > 4096 {
		return fmt.Errorf("payload of %d bytes is larger than one block", len(p))
	}
	block := make([]byte, 4096)
	copy(block, p)
	d.Blocks[index] = block
	d.Writes++
	return nil
}

// Block returns the captured content of one block, all zeros if never
// written.
func (d *BlockDeviceImpl) Block(index uint64) []byte {
	if b, ok := d.Blocks[index]; ok {
		return b
	}
	return make([]byte, 4096)
}

// Bytes flattens the capture into one contiguous image of numBlocks blocks.
func (d *BlockDeviceImpl) Bytes(numBlocks uint64) []byte {
	out := make([]byte, numBlocks*4096)
	for index, b := range d.Blocks {
		if index < numBlocks {
			copy(out[index*4096:], b)
		}
	}
	return out
}

// WrittenBlocks returns the sorted indexes of all captured blocks.
func (d *BlockDeviceImpl) WrittenBlocks() []uint64 {
	indexes := make([]uint64, 0, len(d.Blocks))
	for index := range d.Blocks {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}
