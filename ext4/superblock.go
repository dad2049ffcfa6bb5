package ext4

import (
	"encoding/binary"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

// superblock size and position inside block 0
const (
	superblockSize   = 1024
	superblockOffset = 1024
)

// fixed feature words; see the ext4 layout documentation for bit meanings
const (
	// ext_attr | resize_inode | dir_index | sparse_super2
	featureCompat uint32 = 0x0238
	// filetype | extents | 64bit | flex_bg | inline_data
	featureIncompat uint32 = 0x82C2
	// large_file | huge_file | dir_nlink | extra_isize | metadata_csum
	featureRoCompat uint32 = 0x046A
)

// superblock holds the handful of values that vary between images; every
// other field is a fixed constant of this writer.
type superblock struct {
	inodesCount     uint32
	blocksCount     uint64
	freeBlocksCount uint64
	freeInodesCount uint32
	inodesPerGroup  uint32
	reservedGdtBlks uint16
	uuid            [16]byte
}

// toBytes serialises the 1024-byte superblock, checksummed over bytes
// [0, 1020).
func (sb *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)

	binary.LittleEndian.PutUint32(b[0x00:], sb.inodesCount)
	binary.LittleEndian.PutUint32(b[0x04:], uint32(sb.blocksCount))
	// no reserved blocks: the image is packed full and read-only
	binary.LittleEndian.PutUint32(b[0x0C:], uint32(sb.freeBlocksCount))
	binary.LittleEndian.PutUint32(b[0x10:], sb.freeInodesCount)
	// s_first_data_block is 0 for 4 KiB blocks
	binary.LittleEndian.PutUint32(b[0x18:], 2) // log block size: 4 KiB
	binary.LittleEndian.PutUint32(b[0x1C:], 2) // log cluster size
	binary.LittleEndian.PutUint32(b[0x20:], uint32(blocksPerGroup))
	binary.LittleEndian.PutUint32(b[0x24:], uint32(blocksPerGroup)) // clusters per group
	binary.LittleEndian.PutUint32(b[0x28:], sb.inodesPerGroup)
	binary.LittleEndian.PutUint32(b[0x30:], mkfsTime) // write time
	binary.LittleEndian.PutUint16(b[0x36:], 65535)    // max mount count
	binary.LittleEndian.PutUint16(b[0x38:], 0xEF53)   // magic
	binary.LittleEndian.PutUint16(b[0x3A:], 1)        // state: clean
	binary.LittleEndian.PutUint16(b[0x3C:], 1)        // on error: continue
	binary.LittleEndian.PutUint32(b[0x40:], mkfsTime) // last check
	binary.LittleEndian.PutUint32(b[0x4C:], 1)        // revision: dynamic
	binary.LittleEndian.PutUint32(b[0x54:], firstNonReservedIno)
	binary.LittleEndian.PutUint16(b[0x58:], uint16(inodeSize))
	binary.LittleEndian.PutUint32(b[0x5C:], featureCompat)
	binary.LittleEndian.PutUint32(b[0x60:], featureIncompat)
	binary.LittleEndian.PutUint32(b[0x64:], featureRoCompat)
	copy(b[0x68:0x78], sb.uuid[:])
	binary.LittleEndian.PutUint16(b[0xCE:], sb.reservedGdtBlks)
	for i, seed := range htreeHashSeed {
		binary.LittleEndian.PutUint32(b[0xEC+4*i:], seed)
	}
	b[0xFC] = 1 // default hash version: half-MD4
	binary.LittleEndian.PutUint16(b[0xFE:], uint16(descriptorSize))
	binary.LittleEndian.PutUint32(b[0x100:], 12) // default mount opts: user_xattr, acl
	binary.LittleEndian.PutUint32(b[0x108:], mkfsTime)
	binary.LittleEndian.PutUint32(b[0x150:], uint32(sb.blocksCount>>32))
	binary.LittleEndian.PutUint32(b[0x158:], uint32(sb.freeBlocksCount>>32))
	binary.LittleEndian.PutUint16(b[0x15C:], wantInodeExtraSize) // min extra isize
	binary.LittleEndian.PutUint16(b[0x15E:], wantInodeExtraSize) // want extra isize
	binary.LittleEndian.PutUint32(b[0x160:], 1)                  // flags: signed directory hash
	b[0x174] = 4 // log groups per flex group
	b[0x175] = 1 // checksum type: crc32c
	binary.LittleEndian.PutUint64(b[0x178:], 9) // lifetime kilobytes written
	// s_backup_bgs stays zero: sparse_super2 with no backup superblocks

	checksum := crc.Invert(crc.CRC32c(0, b[:superblockSize-4]))
	binary.LittleEndian.PutUint32(b[superblockSize-4:], checksum)
	return b
}
