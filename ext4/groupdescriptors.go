package ext4

import (
	"encoding/binary"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

// groupDescriptor is one 64-byte entry of the group descriptor table.
type groupDescriptor struct {
	number         uint32
	blockBitmap    uint64
	inodeBitmap    uint64
	inodeTable     uint64
	freeBlocks     uint32
	freeInodes     uint32
	usedDirs       uint32
	blockBitmapSum uint32
	inodeBitmapSum uint32
	checksum       uint16
}

// updateChecksums fills in the two bitmap checksums and the descriptor's own
// checksum. The inode bitmap is only covered up to the live inode count; the
// block bitmap is covered in full.
func (gd *groupDescriptor) updateChecksums(seed uint32, blockBitmap, inodeBitmap []byte, inodesPerGroup uint32) {
	gd.blockBitmapSum = crc.Invert(crc.CRC32c(seed, blockBitmap))
	liveBytes := (inodesPerGroup + 7) / 8
	gd.inodeBitmapSum = crc.Invert(crc.CRC32c(seed, inodeBitmap[:liveBytes]))

	gd.checksum = 0
	numberBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numberBytes, gd.number)
	acc := crc.CRC32c(seed, numberBytes)
	acc = crc.CRC32c(acc, gd.toBytes())
	gd.checksum = uint16(crc.Invert(acc))
}

// toBytes serialises the descriptor. updateChecksums must run first.
func (gd *groupDescriptor) toBytes() []byte {
	b := make([]byte, descriptorSize)
	binary.LittleEndian.PutUint32(b[0x00:], uint32(gd.blockBitmap))
	binary.LittleEndian.PutUint32(b[0x04:], uint32(gd.inodeBitmap))
	binary.LittleEndian.PutUint32(b[0x08:], uint32(gd.inodeTable))
	binary.LittleEndian.PutUint16(b[0x0C:], uint16(gd.freeBlocks))
	binary.LittleEndian.PutUint16(b[0x0E:], uint16(gd.freeInodes))
	binary.LittleEndian.PutUint16(b[0x10:], uint16(gd.usedDirs))
	binary.LittleEndian.PutUint16(b[0x18:], uint16(gd.blockBitmapSum))
	binary.LittleEndian.PutUint16(b[0x1A:], uint16(gd.inodeBitmapSum))
	binary.LittleEndian.PutUint16(b[0x1E:], gd.checksum)
	binary.LittleEndian.PutUint32(b[0x20:], uint32(gd.blockBitmap>>32))
	binary.LittleEndian.PutUint32(b[0x24:], uint32(gd.inodeBitmap>>32))
	binary.LittleEndian.PutUint32(b[0x28:], uint32(gd.inodeTable>>32))
	binary.LittleEndian.PutUint16(b[0x2C:], uint16(gd.freeBlocks>>16))
	binary.LittleEndian.PutUint16(b[0x2E:], uint16(gd.freeInodes>>16))
	binary.LittleEndian.PutUint16(b[0x30:], uint16(gd.usedDirs>>16))
	binary.LittleEndian.PutUint16(b[0x38:], uint16(gd.blockBitmapSum>>16))
	binary.LittleEndian.PutUint16(b[0x3A:], uint16(gd.inodeBitmapSum>>16))
	return b
}
