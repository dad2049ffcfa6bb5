package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

type fileType uint16

const (
	fileTypeFifo            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xA000
	fileTypeSocket          fileType = 0xC000

	inodeFlagUsesExtents uint32 = 0x80000
	inodeFlagInlineData  uint32 = 0x10000000

	// the "extra" inode region past the classic 128 bytes
	wantInodeExtraSize uint16 = 32
	// below this extra size there is no room for the checksum high half
	checksumHiExtraEnd uint16 = 18

	// the polymorphic i_block area
	inlineBlockAreaSize = 60

	// in-inode extended attribute region: magic, one entry with the 4-byte
	// name "data", then the value immediately after
	inlineXattrAreaSize  = 96
	xattrIbodyMagic      uint32 = 0xEA020000
	xattrEntrySize       = 16
	xattrDataNameLen     = 4
	xattrDataNameIndex   = 7
	inlineXattrValueOffs = xattrEntrySize + xattrDataNameLen
	inlineXattrValueMax  = inlineXattrAreaSize - 4 - inlineXattrValueOffs

	// largest file stored entirely inside the inode
	maxInlineContentSize = inlineBlockAreaSize + inlineXattrValueMax
)

// blockArea is the discriminated 60-byte i_block region. Which variant an
// inode carries is implied by its flag bits and, for extents, the header
// depth.
type blockArea interface {
	// blockAreaBytes always returns exactly 60 bytes
	blockAreaBytes() []byte
}

// inlineContent holds up to 60 bytes of file data, inline directory data or
// a fast symlink target directly in the block area.
type inlineContent struct {
	data []byte
}

func (c *inlineContent) blockAreaBytes() []byte {
	b := make([]byte, inlineBlockAreaSize)
	copy(b, c.data)
	return b
}

// legacyBlockPointers is the classic 12-direct/indirect/double/triple
// pointer layout. Only the resize inode uses it.
type legacyBlockPointers struct {
	direct         [12]uint32
	indirect       uint32
	doubleIndirect uint32
	tripleIndirect uint32
}

// legacyMaximumAddressableSize is the classic limit of the legacy pointer
// structure. The resize inode reports this as its size.
const legacyMaximumAddressableSize uint64 = 12*BlockSize +
	(BlockSize/8)*BlockSize +
	(BlockSize/8)*(BlockSize/8)*BlockSize

func (l *legacyBlockPointers) blockAreaBytes() []byte {
	b := make([]byte, inlineBlockAreaSize)
	for i, ptr := range l.direct {
		binary.LittleEndian.PutUint32(b[i*4:], ptr)
	}
	binary.LittleEndian.PutUint32(b[48:], l.indirect)
	binary.LittleEndian.PutUint32(b[52:], l.doubleIndirect)
	binary.LittleEndian.PutUint32(b[56:], l.tripleIndirect)
	return b
}

// inode is the in-memory form of one 256-byte on-disk inode. Everything is
// written once during Finalize; there is no read path.
type inode struct {
	number      uint32
	fileType    fileType
	permissions uint16
	linksCount  uint16
	size        uint64
	// sectors is i_blocks: the 512-byte sector count covered by the block
	// tree, including indirect blocks
	sectors    uint64
	flags      uint32
	body       blockArea
	xattrValue []byte
	generation uint32
	extraIsize uint16
}

// toBytes serialises the inode with its checksum. seed is the CRC32C
// accumulator over the volume UUID.
func (i *inode) toBytes(seed uint32) []byte {
	b := make([]byte, inodeSize)

	binary.LittleEndian.PutUint16(b[0x0:0x2], i.permissions|uint16(i.fileType))
	// uid and gid are root everywhere
	binary.LittleEndian.PutUint32(b[0x4:0x8], uint32(i.size))
	binary.LittleEndian.PutUint32(b[0x8:0xc], mkfsTime)
	binary.LittleEndian.PutUint32(b[0xc:0x10], mkfsTime)
	binary.LittleEndian.PutUint32(b[0x10:0x14], mkfsTime)
	binary.LittleEndian.PutUint16(b[0x1a:0x1c], i.linksCount)
	binary.LittleEndian.PutUint32(b[0x1c:0x20], uint32(i.sectors))
	binary.LittleEndian.PutUint32(b[0x20:0x24], i.flags)
	if i.body != nil {
		copy(b[0x28:0x64], i.body.blockAreaBytes())
	}
	binary.LittleEndian.PutUint32(b[0x64:0x68], i.generation)
	binary.LittleEndian.PutUint32(b[0x6c:0x70], uint32(i.size>>32))
	binary.LittleEndian.PutUint16(b[0x74:0x76], uint16(i.sectors>>32))
	binary.LittleEndian.PutUint16(b[0x80:0x82], i.extraIsize)
	binary.LittleEndian.PutUint32(b[0x90:0x94], mkfsTime)
	if i.xattrValue != nil {
		copy(b[0xa0:0x100], i.xattrAreaBytes())
	}

	checksum := inodeChecksum(b, seed, i.number, i.generation)
	binary.LittleEndian.PutUint16(b[0x7c:0x7e], uint16(checksum))
	if i.extraIsize >= checksumHiExtraEnd {
		binary.LittleEndian.PutUint16(b[0x82:0x84], uint16(checksum>>16))
	}

	return b
}

// xattrAreaBytes builds the 96-byte in-inode xattr region holding the single
// system "data" attribute used for inline spill.
func (i *inode) xattrAreaBytes() []byte {
	b := make([]byte, inlineXattrAreaSize)
	binary.LittleEndian.PutUint32(b[0:4], xattrIbodyMagic)
	entry := b[4:]
	entry[0] = xattrDataNameLen
	entry[1] = xattrDataNameIndex
	binary.LittleEndian.PutUint16(entry[2:4], inlineXattrValueOffs)
	// e_value_inum stays 0: the value lives in this inode
	binary.LittleEndian.PutUint32(entry[8:12], uint32(len(i.xattrValue)))
	// e_hash stays 0 for in-inode attributes
	copy(entry[xattrEntrySize:], "data")
	copy(entry[inlineXattrValueOffs:], i.xattrValue)
	return b
}

// inodeChecksum computes the stored inode checksum: CRC32C over
// (uuid | inode number | generation | inode bytes with the checksum fields
// cleared), bit-inverted. b must have zeroed checksum fields.
func inodeChecksum(b []byte, seed, inodeNumber, generation uint32) uint32 {
	numberBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numberBytes, inodeNumber)
	crcResult := crc.CRC32c(seed, numberBytes)
	genBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(genBytes, generation)
	crcResult = crc.CRC32c(crcResult, genBytes)
	return crc.Invert(crc.CRC32c(crcResult, b))
}

// encodeFileContents picks the encoding class for content and fills in the
// inode body, flags, size and sector count. Content that does not fit inside
// the inode is written to freshly allocated blocks immediately.
func (w *Writer) encodeFileContents(ino *inode, content []byte) error {
	ino.size = uint64(len(content))
	switch {
	case len(content) <= inlineBlockAreaSize:
		ino.flags |= inodeFlagInlineData
		ino.body = &inlineContent{data: content}
	case len(content) <= maxInlineContentSize:
		ino.flags |= inodeFlagInlineData
		ino.body = &inlineContent{data: content[:inlineBlockAreaSize]}
		ino.xattrValue = content[inlineBlockAreaSize:]
	default:
		startBlock, err := w.writeBlocksAlloc(content)
		if err != nil {
			return err
		}
		numBlocks := ceilDiv(uint64(len(content)), BlockSize)
		if err := w.encodeExtents(ino, startBlock, numBlocks); err != nil {
			return err
		}
	}
	return nil
}

// encodeExtents maps the contiguous run [startBlock, startBlock+numBlocks)
// into the inode, inline when four leaves suffice, otherwise through one
// extent tree block.
func (w *Writer) encodeExtents(ino *inode, startBlock, numBlocks uint64) error {
	ino.flags |= inodeFlagUsesExtents
	ino.sectors = numBlocks * sectorsPerBlock
	leaves := splitIntoExtents(startBlock, numBlocks)
	if len(leaves) <= extentInodeMaxEntries {
		ino.body = &inlineExtents{extents: leaves}
		return nil
	}
	if len(leaves) > extentBlockMaxEntries {
		return fmt.Errorf("%d blocks need %d extents, one tree block holds %d", numBlocks, len(leaves), extentBlockMaxEntries)
	}
	treeBytes := extentTreeBlockBytes(leaves, w.checksumSeed(), ino.number, ino.generation)
	treeBlock, err := w.writeBlocksAlloc(treeBytes)
	if err != nil {
		return err
	}
	ino.body = &indirectExtents{treeBlock: treeBlock}
	// the tree block itself counts against the inode
	ino.sectors += sectorsPerBlock
	return nil
}
