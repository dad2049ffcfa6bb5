package ext4

import (
	"encoding/binary"

	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

// directory entry file types
const (
	dirFileTypeRegular   uint8 = 1
	dirFileTypeDirectory uint8 = 2
	dirFileTypeCharacter uint8 = 3
	dirFileTypeBlock     uint8 = 4
	dirFileTypeFifo      uint8 = 5
	dirFileTypeSocket    uint8 = 6
	dirFileTypeSymlink   uint8 = 7
)

const (
	dirEntryHeaderSize = 8
	// the fake trailing entry carrying a directory block's checksum
	dirTrailerSize     = 12
	dirTrailerFileType = 0xDE
	// usable payload of the inode block area when a directory is inline:
	// the leading four bytes carry the parent inode number
	inlineDirBlockAreaSize = inlineBlockAreaSize - 4
)

// directoryEntry is one live entry in an emitted directory.
type directoryEntry struct {
	inode    uint32
	fileType uint8
	name     string
}

// length is the space the entry occupies: header plus name, aligned to 4.
func (de *directoryEntry) length() int {
	return align4(dirEntryHeaderSize + len(de.name))
}

// toBytes serialises the entry with an explicit record length, which must be
// at least the entry's natural length.
func (de *directoryEntry) toBytes(recLen int) []byte {
	b := make([]byte, recLen)
	binary.LittleEndian.PutUint32(b[0:4], de.inode)
	binary.LittleEndian.PutUint16(b[4:6], uint16(recLen))
	b[6] = uint8(len(de.name))
	b[7] = de.fileType
	copy(b[8:], de.name)
	return b
}

func dirFileTypeOf(ft fileType) uint8 {
	switch ft {
	case fileTypeDirectory:
		return dirFileTypeDirectory
	case fileTypeSymbolicLink:
		return dirFileTypeSymlink
	case fileTypeCharacterDevice:
		return dirFileTypeCharacter
	case fileTypeBlockDevice:
		return dirFileTypeBlock
	case fileTypeFifo:
		return dirFileTypeFifo
	case fileTypeSocket:
		return dirFileTypeSocket
	default:
		return dirFileTypeRegular
	}
}

// dirEntriesToBlocks lays entries out as full linear directory blocks. The
// last entry of each block is stretched so live entries end at byte 4084,
// where the 12-byte checksum trailer begins. entries must start with "." and
// "..".
func dirEntriesToBlocks(entries []*directoryEntry, owner uint32, seed, generation uint32) []byte {
	usable := BlockSize - dirTrailerSize
	var out []byte

	i := 0
	for i < len(entries) {
		block := make([]byte, 0, BlockSize)
		// pack entries while the next one still fits before the trailer
		for i < len(entries) && len(block)+entries[i].length() <= usable {
			e := entries[i]
			recLen := e.length()
			last := i+1 >= len(entries) || len(block)+recLen+entries[i+1].length() > usable
			if last {
				// stretch to the trailer boundary
				recLen = usable - len(block)
			}
			block = append(block, e.toBytes(recLen)...)
			i++
		}
		block = append(block, dirTrailer(block, owner, seed, generation)...)
		out = append(out, block...)
	}
	return out
}

// dirTrailer builds the fake final entry holding the block checksum over the
// first 4084 bytes.
func dirTrailer(live []byte, owner uint32, seed, generation uint32) []byte {
	b := make([]byte, dirTrailerSize)
	binary.LittleEndian.PutUint16(b[4:6], dirTrailerSize)
	b[7] = dirTrailerFileType

	ownerBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(ownerBytes, owner)
	genBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(genBytes, generation)
	acc := crc.CRC32c(seed, ownerBytes)
	acc = crc.CRC32c(acc, genBytes)
	acc = crc.CRC32c(acc, live)
	binary.LittleEndian.PutUint32(b[8:12], crc.Invert(acc))
	return b
}

// dirEntriesInline attempts the inline directory encoding. The "." and ".."
// entries at the front are not written: the parent is carried in the leading
// four bytes of the block area and "." is implicit from the inode number.
// Remaining entries fill the block area first, then the in-inode xattr
// value, in input order. Returns ok=false when an entry fits neither area.
func dirEntriesInline(entries []*directoryEntry, parent uint32) (area *inlineContent, spill []byte, size uint64, ok bool) {
	live := entries[2:]

	// find the first entry that no longer fits the block area
	split := len(live)
	used := 4
	for i, e := range live {
		if used+e.length() > inlineBlockAreaSize {
			split = i
			break
		}
		used += e.length()
	}

	blockPart := make([]byte, 4, inlineBlockAreaSize)
	binary.LittleEndian.PutUint32(blockPart[0:4], parent)
	for i := 0; i < split; i++ {
		recLen := live[i].length()
		if split < len(live) && i == split-1 {
			// entries continue in the xattr area; this one covers the rest
			// of the block area so lookups can walk the whole region
			recLen = inlineBlockAreaSize - len(blockPart)
		}
		blockPart = append(blockPart, live[i].toBytes(recLen)...)
	}
	if split < len(live) && split == 0 {
		// no entry fits before the spill; cover the block area with an
		// empty entry
		empty := &directoryEntry{}
		blockPart = append(blockPart, empty.toBytes(inlineDirBlockAreaSize)...)
	}

	var spillPart []byte
	for i := split; i < len(live); i++ {
		recLen := live[i].length()
		if len(spillPart)+recLen > inlineXattrValueMax {
			return nil, nil, 0, false
		}
		spillPart = append(spillPart, live[i].toBytes(recLen)...)
	}

	size = uint64(len(blockPart))
	if len(spillPart) > 0 {
		size = inlineBlockAreaSize + uint64(len(spillPart))
	}
	return &inlineContent{data: blockPart}, spillPart, size, true
}
