// Package ext4 implements a single-pass writer producing read-only ext4
// filesystem images. The caller stages a directory tree and file contents,
// then Finalize lays out block groups, bitmaps, inode tables and descriptors
// and commits the image by writing the primary superblock last.
package ext4

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anuejn/ext4-image-writer/backend"
	"github.com/anuejn/ext4-image-writer/ext4/crc"
)

// BlockSize is the size in bytes of every block in the image
const BlockSize = 4096

const (
	blocksPerGroup  uint64 = BlockSize * 8
	blockGroupBytes uint64 = blocksPerGroup * BlockSize
	inodeSize       uint64 = 256
	inodesPerBlock  uint64 = BlockSize / inodeSize
	descriptorSize  uint64 = 64
	sectorsPerBlock uint64 = BlockSize / 512

	maxNameLength       int    = 255
	maxBlocksPerExtent  uint64 = 32768
	firstNonReservedIno uint32 = 11

	// fixed inodes
	badBlocksInode         uint32 = 1
	rootInode              uint32 = 2
	userQuotaInode         uint32 = 3
	groupQuotaInode        uint32 = 4
	bootLoaderInode        uint32 = 5
	undeleteDirectoryInode uint32 = 6
	resizeInode            uint32 = 7
	journalInode           uint32 = 8
	excludeInode           uint32 = 9
	replicaInode           uint32 = 10
	lostFoundInode         uint32 = 11

	// every timestamp in the image, for reproducible output
	mkfsTime uint32 = 1758215058
)

// DefaultVolumeUUID is the fixed volume UUID all images carry unless
// overridden via Params.
var DefaultVolumeUUID = uuid.MustParse("12345678-9abc-def0-1234-56789abcdef0")

// htreeHashSeed is the fixed HTREE hash seed written to the superblock.
var htreeHashSeed = [4]uint32{940062939, 3880703204, 772543626, 1391354066}

// Params controls optional properties of a Writer
type Params struct {
	// UUID overrides the volume UUID
	UUID *uuid.UUID
	// Logger receives layout progress at debug level
	Logger *logrus.Logger
}

// Writer accumulates a staging tree and pre-built inodes, then emits a
// complete ext4 image on Finalize. A Writer owns its device exclusively from
// construction to finalisation and must not be used from multiple
// goroutines.
type Writer struct {
	dev       backend.Device
	fsuuid    [16]byte
	maxSize   uint64
	root      *stagingDir
	inodes    []*inode
	blocks    *allocator
	inodeBits *allocator
	logger    *logrus.Logger
	finalized bool
}

// Create prepares a Writer on the given device. maxSize is the maximum size
// in bytes the image may be grown to after a later resize; it determines how
// many group-descriptor-table blocks are reserved up front. p may be nil.
func Create(dev backend.Device, maxSize uint64, p *Params) (*Writer, error) {
	if dev == nil {
		return nil, fmt.Errorf("must provide a device to write to")
	}
	if maxSize < BlockSize {
		return nil, fmt.Errorf("max size %d is smaller than a single block", maxSize)
	}
	if p == nil {
		p = &Params{}
	}
	fsuuid := DefaultVolumeUUID
	if p.UUID != nil {
		fsuuid = *p.UUID
	}
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	w := &Writer{
		dev:       dev,
		fsuuid:    [16]byte(fsuuid),
		maxSize:   maxSize,
		root:      &stagingDir{},
		blocks:    newAllocator(),
		inodeBits: newAllocator(),
		logger:    logger,
	}

	// block 0 is the boot/superblock block; the descriptor table plus its
	// reserved growth area follows immediately
	w.blocks.allocate(1)
	w.blocks.allocate(w.gdtBlocks())

	// inodes 1-11 have fixed roles
	for i := uint32(0); i < firstNonReservedIno; i++ {
		w.allocateInode()
	}

	// lost+found exists on every image
	w.root.entries = append(w.root.entries, &stagingEntry{name: "lost+found", dir: &stagingDir{}})

	logger.WithFields(logrus.Fields{
		"uuid":       fsuuid.String(),
		"max_size":   maxSize,
		"gdt_blocks": w.gdtBlocks(),
	}).Debug("ext4: writer created")

	return w, nil
}

// WriteFile encodes content as a regular file registered under path. The
// permission bits of mode are used; the file type is always regular. Content
// blocks are written to the device immediately.
func (w *Writer) WriteFile(content []byte, path string, mode uint16) error {
	if w.finalized {
		return ErrFinalized
	}
	parent, name, err := w.root.prepareCreate(path)
	if err != nil {
		return err
	}
	ino := w.allocateInode()
	ino.fileType = fileTypeRegularFile
	ino.permissions = mode & 0o7777
	ino.linksCount = 1
	if err := w.encodeFileContents(ino, content); err != nil {
		return err
	}
	parent.entries = append(parent.entries, &stagingEntry{name: name, fileInode: ino.number})
	return nil
}

// Symlink registers a symbolic link at path pointing to target. Only fast
// symlinks are supported: the target must be shorter than the 60-byte inode
// block area.
func (w *Writer) Symlink(target, path string) error {
	if w.finalized {
		return ErrFinalized
	}
	if len(target) >= inlineBlockAreaSize {
		return fmt.Errorf("symlink target %q is %d bytes, must be below %d: %w", target, len(target), inlineBlockAreaSize, ErrInlineOverflow)
	}
	parent, name, err := w.root.prepareCreate(path)
	if err != nil {
		return err
	}
	ino := w.allocateInode()
	ino.fileType = fileTypeSymbolicLink
	ino.permissions = 0o777
	ino.linksCount = 1
	ino.size = uint64(len(target))
	ino.body = &inlineContent{data: []byte(target)}
	parent.entries = append(parent.entries, &stagingEntry{name: name, fileInode: ino.number})
	return nil
}

// Mkdir registers a directory at path. The parent must already exist.
// No inode is assigned until Finalize.
func (w *Writer) Mkdir(path string) error {
	if w.finalized {
		return ErrFinalized
	}
	_, err := w.root.mkdir(path)
	return err
}

// MkdirAll registers a directory at path, creating any missing parents.
func (w *Writer) MkdirAll(path string) error {
	if w.finalized {
		return ErrFinalized
	}
	_, err := w.root.mkdirAll(path)
	return err
}

// allocateInode appends a fresh inode to the pool and marks it used. Inode
// numbers are 1-based; the pool index is number-1.
func (w *Writer) allocateInode() *inode {
	number := uint32(len(w.inodes) + 1)
	ino := &inode{number: number, extraIsize: wantInodeExtraSize}
	w.inodes = append(w.inodes, ino)
	w.inodeBits.allocate(1)
	return ino
}

// gdtBlocks is the number of blocks the descriptor table may ever grow to,
// as implied by maxSize.
func (w *Writer) gdtBlocks() uint64 {
	maxGroups := ceilDiv(w.maxSize, blockGroupBytes)
	return ceilDiv(maxGroups*descriptorSize, BlockSize)
}

// checksumSeed starts every metadata checksum: the CRC32C accumulator over
// the volume UUID.
func (w *Writer) checksumSeed() uint32 {
	return crc.CRC32c(0, w.fsuuid[:])
}

// writeBlocks writes data to consecutive blocks beginning at startBlock,
// zero-padding the final partial block.
func (w *Writer) writeBlocks(startBlock uint64, data []byte) error {
	block := startBlock
	for offset := 0; offset < len(data); offset += BlockSize {
		end := offset + BlockSize
		if end > len(data) {
			end = len(data)
		}
		if err := w.dev.WriteBlock(block, data[offset:end]); err != nil {
			return err
		}
		block++
	}
	return nil
}

// writeBlocksAlloc allocates enough blocks for data and writes it, returning
// the first block of the run.
func (w *Writer) writeBlocksAlloc(data []byte) (uint64, error) {
	numBlocks := ceilDiv(uint64(len(data)), BlockSize)
	startBlock := w.blocks.allocate(numBlocks)
	if err := w.writeBlocks(startBlock, data); err != nil {
		return 0, err
	}
	return startBlock, nil
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func align4(n int) int {
	return (n + 3) &^ 3
}
