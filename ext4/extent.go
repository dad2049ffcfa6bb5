package ext4

import (
	"encoding/binary"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

const (
	extentHeaderSignature uint16 = 0xF30A
	extentTreeHeaderSize         = 12
	extentTreeEntrySize          = 12
	extentTreeTailSize           = 4

	// the inode block area fits a header plus four entries
	extentInodeMaxEntries = (inlineBlockAreaSize - extentTreeHeaderSize) / extentTreeEntrySize
	// a full tree block fits a header, entries and the checksum tail
	extentBlockMaxEntries = (BlockSize - extentTreeHeaderSize - extentTreeTailSize) / extentTreeEntrySize
)

// extent is a single contiguous mapping of file blocks to disk blocks.
type extent struct {
	// fileBlock is the block number relative to the file
	fileBlock uint32
	// startingBlock is the first block on disk holding this extent's data
	startingBlock uint64
	// count of contiguous blocks covered, at most 32768; larger values mark
	// an extent as uninitialised and are never produced here
	count uint16
}

// extentNodeHeader is the 12-byte header opening every extent node.
type extentNodeHeader struct {
	// entries currently in the node
	entries uint16
	// max entries the node can hold
	max uint16
	// depth of the tree below; leaves have depth 0
	depth uint16
}

func (h extentNodeHeader) toBytes() []byte {
	b := make([]byte, extentTreeHeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], extentHeaderSignature)
	binary.LittleEndian.PutUint16(b[2:4], h.entries)
	binary.LittleEndian.PutUint16(b[4:6], h.max)
	binary.LittleEndian.PutUint16(b[6:8], h.depth)
	// eh_generation stays 0
	return b
}

func putExtentLeaf(b []byte, e extent) {
	binary.LittleEndian.PutUint32(b[0:4], e.fileBlock)
	binary.LittleEndian.PutUint16(b[4:6], e.count)
	binary.LittleEndian.PutUint16(b[6:8], uint16(e.startingBlock>>32))
	binary.LittleEndian.PutUint32(b[8:12], uint32(e.startingBlock))
}

// splitIntoExtents covers the contiguous disk run [startBlock,
// startBlock+numBlocks) with leaves of at most 32768 blocks each.
func splitIntoExtents(startBlock, numBlocks uint64) []extent {
	var leaves []extent
	var fileBlock uint64
	for fileBlock < numBlocks {
		count := numBlocks - fileBlock
		if count > maxBlocksPerExtent {
			count = maxBlocksPerExtent
		}
		leaves = append(leaves, extent{
			fileBlock:     uint32(fileBlock),
			startingBlock: startBlock + fileBlock,
			count:         uint16(count),
		})
		fileBlock += count
	}
	return leaves
}

// inlineExtents places up to four leaves directly in the inode block area.
type inlineExtents struct {
	extents []extent
}

func (x *inlineExtents) blockAreaBytes() []byte {
	b := make([]byte, inlineBlockAreaSize)
	header := extentNodeHeader{
		entries: uint16(len(x.extents)),
		max:     extentInodeMaxEntries,
		depth:   0,
	}
	copy(b, header.toBytes())
	for i, e := range x.extents {
		putExtentLeaf(b[extentTreeHeaderSize+i*extentTreeEntrySize:], e)
	}
	return b
}

// indirectExtents places a depth-1 root in the inode block area with a
// single internal node pointing at one extent tree block.
type indirectExtents struct {
	treeBlock uint64
}

func (x *indirectExtents) blockAreaBytes() []byte {
	b := make([]byte, inlineBlockAreaSize)
	header := extentNodeHeader{
		entries: 1,
		max:     extentInodeMaxEntries,
		depth:   1,
	}
	copy(b, header.toBytes())
	node := b[extentTreeHeaderSize:]
	// ei_block stays 0: the subtree covers the file from logical block 0
	binary.LittleEndian.PutUint32(node[4:8], uint32(x.treeBlock))
	binary.LittleEndian.PutUint16(node[8:10], uint16(x.treeBlock>>32))
	return b
}

// extentTreeBlockBytes builds a full leaf block: header, leaves, and the
// checksum tail over everything before it.
func extentTreeBlockBytes(leaves []extent, seed, inodeNumber, generation uint32) []byte {
	b := make([]byte, BlockSize)
	header := extentNodeHeader{
		entries: uint16(len(leaves)),
		max:     extentBlockMaxEntries,
		depth:   0,
	}
	copy(b, header.toBytes())
	for i, e := range leaves {
		putExtentLeaf(b[extentTreeHeaderSize+i*extentTreeEntrySize:], e)
	}

	numberBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numberBytes, inodeNumber)
	genBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(genBytes, generation)
	acc := crc.CRC32c(seed, numberBytes)
	acc = crc.CRC32c(acc, genBytes)
	acc = crc.CRC32c(acc, b[:BlockSize-extentTreeTailSize])
	binary.LittleEndian.PutUint32(b[BlockSize-extentTreeTailSize:], crc.Invert(acc))
	return b
}
