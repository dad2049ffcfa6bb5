package ext4

import (
	"testing"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

func testSuperblock() *superblock {
	return &superblock{
		inodesCount:     16,
		blocksCount:     7,
		freeInodesCount: 5,
		inodesPerGroup:  16,
		reservedGdtBlks: 15,
		uuid:            [16]byte(DefaultVolumeUUID),
	}
}

func TestSuperblockToBytesSize(t *testing.T) {
	b := testSuperblock().toBytes()
	if len(b) != superblockSize {
		t.Errorf("superblock serialises to %d bytes, expected %d", len(b), superblockSize)
	}
}

func TestSuperblockFixedFields(t *testing.T) {
	b := testSuperblock().toBytes()
	tests := []struct {
		name     string
		got      uint32
		expected uint32
	}{
		{"magic", uint32(le16(b, 0x38)), 0xEF53},
		{"log block size", le32(b, 0x18), 2},
		{"blocks per group", le32(b, 0x20), 32768},
		{"clusters per group", le32(b, 0x24), 32768},
		{"inode size", uint32(le16(b, 0x58)), 256},
		{"first inode", le32(b, 0x54), 11},
		{"feature compat", le32(b, 0x5C), 0x0238},
		{"feature incompat", le32(b, 0x60), 0x82C2},
		{"feature ro compat", le32(b, 0x64), 0x046A},
		{"descriptor size", uint32(le16(b, 0xFE)), 64},
		{"state", uint32(le16(b, 0x3A)), 1},
		{"revision", le32(b, 0x4C), 1},
		{"mkfs time", le32(b, 0x108), mkfsTime},
		{"write time", le32(b, 0x30), mkfsTime},
		{"min extra isize", uint32(le16(b, 0x15C)), 32},
		{"want extra isize", uint32(le16(b, 0x15E)), 32},
		{"checksum type", uint32(b[0x175]), 1},
		{"hash version", uint32(b[0xFC]), 1},
		{"default mount opts", le32(b, 0x100), 12},
		{"reserved gdt blocks", uint32(le16(b, 0xCE)), 15},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s is %#x, expected %#x", tt.name, tt.got, tt.expected)
		}
	}
}

func TestSuperblockUUIDAndHashSeed(t *testing.T) {
	b := testSuperblock().toBytes()
	expectedUUID := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}
	for i, expected := range expectedUUID {
		if b[0x68+i] != expected {
			t.Fatalf("uuid byte %d is %#x, expected %#x", i, b[0x68+i], expected)
		}
	}
	expectedSeed := []uint32{940062939, 3880703204, 772543626, 1391354066}
	for i, expected := range expectedSeed {
		if got := le32(b, 0xEC+4*i); got != expected {
			t.Errorf("hash seed %d is %d, expected %d", i, got, expected)
		}
	}
}

func TestSuperblockChecksum(t *testing.T) {
	b := testSuperblock().toBytes()
	expected := crc.Invert(crc.CRC32c(0, b[:superblockSize-4]))
	if got := le32(b, superblockSize-4); got != expected {
		t.Errorf("superblock checksum is %#x, expected %#x", got, expected)
	}
}

func TestSuperblockCounts(t *testing.T) {
	sb := &superblock{
		inodesCount:     4096,
		blocksCount:     (3 << 32) | 1234,
		freeBlocksCount: (1 << 32) | 7,
		freeInodesCount: 100,
		inodesPerGroup:  1024,
		uuid:            [16]byte(DefaultVolumeUUID),
	}
	b := sb.toBytes()
	if le32(b, 0x00) != 4096 {
		t.Errorf("inodes count is %d", le32(b, 0x00))
	}
	if le32(b, 0x04) != 1234 || le32(b, 0x150) != 3 {
		t.Errorf("blocks count is lo %d hi %d", le32(b, 0x04), le32(b, 0x150))
	}
	if le32(b, 0x0C) != 7 || le32(b, 0x158) != 1 {
		t.Errorf("free blocks count is lo %d hi %d", le32(b, 0x0C), le32(b, 0x158))
	}
	if le32(b, 0x10) != 100 {
		t.Errorf("free inodes count is %d", le32(b, 0x10))
	}
	if le32(b, 0x28) != 1024 {
		t.Errorf("inodes per group is %d", le32(b, 0x28))
	}
}
