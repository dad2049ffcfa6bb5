package ext4

import (
	"encoding/binary"

	"github.com/anuejn/ext4-image-writer/testhelper"
)

// discardDevice drops every write; used where only the layout bookkeeping
// matters.
type discardDevice struct{}

func (discardDevice) WriteBlock(uint64, []byte) error { return nil }

// read helpers for picking fields out of written blocks
func le16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

func le32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// testImage finalizes a writer over a capturing device and returns the
// device for inspection.
func testImage(maxSize uint64, stage func(w *Writer)) (*testhelper.BlockDeviceImpl, *Writer, error) {
	dev := testhelper.NewBlockDevice()
	w, err := Create(dev, maxSize, nil)
	if err != nil {
		return nil, nil, err
	}
	if stage != nil {
		stage(w)
	}
	if err := w.Finalize(); err != nil {
		return nil, nil, err
	}
	return dev, w, nil
}

// superblockBytes returns the 1024 bytes of the written primary superblock.
func superblockBytes(dev *testhelper.BlockDeviceImpl) []byte {
	return dev.Block(0)[superblockOffset : superblockOffset+superblockSize]
}

// inodeBytes locates inode number n in the written image through its
// group's descriptor in the table at block 1.
func inodeBytes(dev *testhelper.BlockDeviceImpl, n uint32) []byte {
	sb := superblockBytes(dev)
	inodesPerGroup := le32(sb, 0x28)
	group := (n - 1) / inodesPerGroup
	index := uint64((n - 1) % inodesPerGroup)

	gd := dev.Block(1)[uint64(group)*descriptorSize:]
	tableBlock := uint64(le32(gd, 0x08)) | uint64(le32(gd, 0x28))<<32
	tableBytes := index * inodeSize
	block := dev.Block(tableBlock + tableBytes/BlockSize)
	offset := tableBytes % BlockSize
	return block[offset : offset+inodeSize]
}
