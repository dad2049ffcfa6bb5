package ext4

import (
	"encoding/binary"
	"fmt"
)

// buildResizeInode fills inode 7 with the legacy double-indirect structure
// describing the blocks reserved for descriptor table growth. The indirect
// block carries one zero entry per descriptor block already in use, then the
// reserved blocks in ascending order, which is where a checker expects them.
func (w *Writer) buildResizeInode(groupCount uint64) error {
	gdtBlocks := w.gdtBlocks()
	usedGdtBlocks := ceilDiv(groupCount*descriptorSize, BlockSize)

	if gdtBlocks*4 > BlockSize {
		return fmt.Errorf("%d descriptor blocks do not fit a single indirect block", gdtBlocks)
	}

	buf := make([]byte, 4*gdtBlocks)
	for i := usedGdtBlocks; i < gdtBlocks; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(1+i))
	}
	indirectBlock, err := w.writeBlocksAlloc(buf)
	if err != nil {
		return err
	}

	ino := w.inodes[resizeInode-1]
	ino.fileType = fileTypeRegularFile
	ino.linksCount = 1
	ino.size = legacyMaximumAddressableSize
	ino.sectors = (gdtBlocks - usedGdtBlocks + 1) * sectorsPerBlock
	ino.body = &legacyBlockPointers{doubleIndirect: uint32(indirectBlock)}
	return nil
}
