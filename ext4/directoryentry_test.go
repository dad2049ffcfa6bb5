package ext4

import (
	"testing"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

func testDotEntries(self, parent uint32) []*directoryEntry {
	return []*directoryEntry{
		{inode: self, fileType: dirFileTypeDirectory, name: "."},
		{inode: parent, fileType: dirFileTypeDirectory, name: ".."},
	}
}

func TestDirectoryEntryLength(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{".", 12},
		{"..", 12},
		{"a", 12},
		{"abcd", 12},
		{"abcde", 16},
		{"lost+found", 20},
	}
	for _, tt := range tests {
		de := &directoryEntry{name: tt.name}
		if got := de.length(); got != tt.expected {
			t.Errorf("length(%q) = %d, expected %d", tt.name, got, tt.expected)
		}
	}
}

func TestDirEntriesToBlocksSingle(t *testing.T) {
	entries := testDotEntries(11, 2)
	b := dirEntriesToBlocks(entries, 11, 0x1234, 0)
	if len(b) != BlockSize {
		t.Fatalf("got %d bytes, expected one block", len(b))
	}

	// "." at the front
	if le32(b, 0) != 11 || le16(b, 4) != 12 || b[6] != 1 || b[7] != dirFileTypeDirectory {
		t.Errorf("unexpected '.' entry: % x", b[:12])
	}
	// ".." stretched to the trailer boundary
	if le32(b, 12) != 2 || le16(b, 16) != 4072 || b[18] != 2 {
		t.Errorf("unexpected '..' entry: % x", b[12:24])
	}

	// trailer
	trailer := b[BlockSize-dirTrailerSize:]
	if le32(trailer, 0) != 0 || le16(trailer, 4) != 12 || trailer[6] != 0 || trailer[7] != dirTrailerFileType {
		t.Errorf("unexpected trailer: % x", trailer)
	}

	// recompute the trailer checksum
	ownerBytes := []byte{11, 0, 0, 0}
	genBytes := []byte{0, 0, 0, 0}
	acc := crc.CRC32c(0x1234, ownerBytes)
	acc = crc.CRC32c(acc, genBytes)
	acc = crc.CRC32c(acc, b[:BlockSize-dirTrailerSize])
	if got := le32(trailer, 8); got != crc.Invert(acc) {
		t.Errorf("trailer checksum is %#x, expected %#x", got, crc.Invert(acc))
	}
}

func TestDirEntriesToBlocksMultiple(t *testing.T) {
	entries := testDotEntries(2, 2)
	// 300 16-byte entries cannot fit one block
	for i := 0; i < 300; i++ {
		entries = append(entries, &directoryEntry{
			inode:    uint32(12 + i),
			fileType: dirFileTypeRegular,
			name:     "file-" + string(rune('0'+i/100)) + string(rune('0'+i/10%10)) + string(rune('0'+i%10)),
		})
	}
	b := dirEntriesToBlocks(entries, 2, 0, 0)
	if len(b)%BlockSize != 0 {
		t.Fatalf("output of %d bytes is not a whole number of blocks", len(b))
	}
	if len(b) != 2*BlockSize {
		t.Fatalf("got %d blocks, expected 2", len(b)/BlockSize)
	}

	// every block must carry a trailer at 4084
	for block := 0; block < len(b); block += BlockSize {
		trailer := b[block+BlockSize-dirTrailerSize:][:dirTrailerSize]
		if le16(trailer, 4) != 12 || trailer[7] != dirTrailerFileType {
			t.Errorf("block at %d has no trailer: % x", block, trailer)
		}
	}

	// walking rec_lens must land exactly on the trailer of each block
	for block := 0; block < len(b); block += BlockSize {
		offset := 0
		for offset < BlockSize-dirTrailerSize {
			recLen := int(le16(b, block+offset+4))
			if recLen < 12 || recLen%4 != 0 {
				t.Fatalf("invalid rec_len %d at block offset %d", recLen, offset)
			}
			offset += recLen
		}
		if offset != BlockSize-dirTrailerSize {
			t.Errorf("entries end at %d, expected %d", offset, BlockSize-dirTrailerSize)
		}
	}
}

func TestDirEntriesInlineAllInBlockArea(t *testing.T) {
	entries := testDotEntries(2, 2)
	entries = append(entries, &directoryEntry{inode: 11, fileType: dirFileTypeDirectory, name: "lost+found"})
	area, spill, size, ok := dirEntriesInline(entries, 2)
	if !ok {
		t.Fatal("expected inline encoding to succeed")
	}
	if spill != nil {
		t.Errorf("expected no spill, got %d bytes", len(spill))
	}
	if size != 24 {
		t.Errorf("size is %d, expected 24", size)
	}
	b := area.blockAreaBytes()
	if le32(b, 0) != 2 {
		t.Errorf("parent pointer is %d, expected 2", le32(b, 0))
	}
	if le32(b, 4) != 11 || b[10] != 10 || string(b[12:22]) != "lost+found" {
		t.Errorf("unexpected first entry: % x", b[4:24])
	}
}

func TestDirEntriesInlineSpillsToXattrArea(t *testing.T) {
	// two 20-byte entries fit the 56 usable block-area bytes; the third
	// must go to the xattr area
	entries := testDotEntries(5, 2)
	entries = append(entries,
		&directoryEntry{inode: 12, fileType: dirFileTypeRegular, name: "longer_entry"},
		&directoryEntry{inode: 13, fileType: dirFileTypeRegular, name: "short_entry"},
		&directoryEntry{inode: 14, fileType: dirFileTypeRegular, name: "over_the_edge"},
	)
	area, spill, size, ok := dirEntriesInline(entries, 2)
	if !ok {
		t.Fatal("expected inline encoding to succeed")
	}
	b := area.blockAreaBytes()
	if le32(b, 4) != 12 {
		t.Errorf("first block-area entry inode is %d, expected 12", le32(b, 4))
	}
	// the second entry is stretched to the end of the block area
	if le32(b, 24) != 13 || le16(b, 28) != 36 {
		t.Errorf("second entry not stretched: inode %d rec_len %d", le32(b, 24), le16(b, 28))
	}
	if len(spill) != 24 {
		t.Fatalf("spill is %d bytes, expected 24", len(spill))
	}
	if le32(spill, 0) != 14 || string(spill[8:21]) != "over_the_edge" {
		t.Errorf("unexpected spill entry: % x", spill)
	}
	if size != 60+24 {
		t.Errorf("size is %d, expected 84", size)
	}
}

func TestDirEntriesInlineOverflow(t *testing.T) {
	entries := testDotEntries(5, 2)
	for i := 0; i < 10; i++ {
		entries = append(entries, &directoryEntry{
			inode:    uint32(12 + i),
			fileType: dirFileTypeRegular,
			name:     "some-filename-" + string(rune('0'+i)),
		})
	}
	if _, _, _, ok := dirEntriesInline(entries, 2); ok {
		t.Error("expected inline encoding to fail for 10 large entries")
	}
}
