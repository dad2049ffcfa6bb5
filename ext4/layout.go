package ext4

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Finalize performs the single forward layout pass: it encodes the staged
// directory tree, sizes the image, emits bitmaps, inode tables and group
// descriptors, and commits by writing the primary superblock last. The
// Writer cannot be used afterwards.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}

	// encode every staged directory, root first
	if err := w.encodeDir(w.root, rootInode, rootInode); err != nil {
		return err
	}

	// the block budget and the group count depend on each other; iterate to
	// the fixed point
	inodeCount := uint64(len(w.inodes))
	allocated := w.blocks.nextFree
	// an inode bitmap is one block, so a group holds at most 8*BlockSize
	// inodes
	minGroups := ceilDiv(inodeCount, blocksPerGroup)
	budget := allocated + ceilDiv(inodeCount*inodeSize, BlockSize) + 1
	groups := ceilDiv(budget, blocksPerGroup)
	budget += 2 * groups
	groups = ceilDiv(budget, blocksPerGroup)
	if groups < minGroups {
		groups = minGroups
	}
	inodesPerGroup := roundUpMultiple(ceilDiv(inodeCount, groups), inodesPerBlock)
	for {
		budget = allocated + 1 + groups*(2+inodesPerGroup/inodesPerBlock)
		next := ceilDiv(budget, blocksPerGroup)
		if next < minGroups {
			next = minGroups
		}
		if next == groups {
			break
		}
		groups = next
		inodesPerGroup = roundUpMultiple(ceilDiv(inodeCount, groups), inodesPerBlock)
	}
	if groups > ceilDiv(w.maxSize, blockGroupBytes) {
		return fmt.Errorf("%d groups needed, max size %d allows %d: %w",
			groups, w.maxSize, ceilDiv(w.maxSize, blockGroupBytes), ErrTooManyBlockGroups)
	}

	w.logger.WithFields(logrus.Fields{
		"blocks":           budget,
		"block_groups":     groups,
		"inodes":           inodeCount,
		"inodes_per_group": inodesPerGroup,
	}).Debug("ext4: layout computed")

	// pad the inode pool so every group has a full table
	for uint64(len(w.inodes)) < groups*inodesPerGroup {
		number := uint32(len(w.inodes) + 1)
		w.inodes = append(w.inodes, &inode{number: number, extraIsize: wantInodeExtraSize})
	}

	if err := w.buildResizeInode(groups); err != nil {
		return err
	}

	// allocate every group's metadata blocks before any bitmap is
	// snapshotted, so each bitmap records the full final layout, its own
	// blocks included
	metas := make([]groupMeta, groups)
	for g := range metas {
		metas[g] = groupMeta{
			blockBitmapBlock: w.blocks.allocate(1),
			inodeBitmapBlock: w.blocks.allocate(1),
			tableStart:       w.blocks.allocate(inodesPerGroup / inodesPerBlock),
		}
	}

	seed := w.checksumSeed()
	descriptors := make([]byte, 0, groups*descriptorSize)
	var freeBlocksTotal uint64
	var freeInodesTotal uint32
	for g := uint64(0); g < groups; g++ {
		gd, err := w.emitGroup(g, groups, budget, inodesPerGroup, metas[g], seed)
		if err != nil {
			return err
		}
		freeBlocksTotal += uint64(gd.freeBlocks)
		freeInodesTotal += gd.freeInodes
		descriptors = append(descriptors, gd.toBytes()...)
	}

	// the descriptor table goes into its reserved range behind the superblock
	if err := w.writeBlocks(1, descriptors); err != nil {
		return err
	}

	// closure of the self-referential size calculation
	if w.blocks.nextFree != budget {
		return fmt.Errorf("internal error: allocated %d blocks, calculated %d", w.blocks.nextFree, budget)
	}

	sb := &superblock{
		inodesCount:     uint32(groups * inodesPerGroup),
		blocksCount:     budget,
		freeBlocksCount: freeBlocksTotal,
		freeInodesCount: freeInodesTotal,
		inodesPerGroup:  uint32(inodesPerGroup),
		reservedGdtBlks: uint16(w.gdtBlocks() - ceilDiv(groups*descriptorSize, BlockSize)),
		uuid:            w.fsuuid,
	}
	firstBlock := make([]byte, BlockSize)
	copy(firstBlock[superblockOffset:], sb.toBytes())
	if err := w.dev.WriteBlock(0, firstBlock); err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"blocks": budget,
		"inodes": groups * inodesPerGroup,
	}).Debug("ext4: image finalized")

	w.finalized = true
	return nil
}

// groupMeta is where one group's metadata landed in the block space.
type groupMeta struct {
	blockBitmapBlock uint64
	inodeBitmapBlock uint64
	tableStart       uint64
}

// emitGroup serialises one block group: its slice of the inode table, its
// two bitmaps, and the filled-in descriptor.
func (w *Writer) emitGroup(g, groups, budget, inodesPerGroup uint64, meta groupMeta, seed uint32) (*groupDescriptor, error) {
	table := make([]byte, 0, inodesPerGroup*inodeSize)
	var usedDirs uint32
	for i := g * inodesPerGroup; i < (g+1)*inodesPerGroup; i++ {
		ino := w.inodes[i]
		table = append(table, ino.toBytes(seed)...)
		if ino.fileType == fileTypeDirectory {
			usedDirs++
		}
	}

	liveBits := blocksPerGroup
	if g == groups-1 {
		liveBits = budget - g*blocksPerGroup
	}
	blockBitmap := w.blocks.groupSnapshot(g*blocksPerGroup, liveBits)
	inodeBitmap := w.inodeBits.groupSnapshot(g*inodesPerGroup, inodesPerGroup)

	if err := w.dev.WriteBlock(meta.blockBitmapBlock, blockBitmap); err != nil {
		return nil, err
	}
	if err := w.dev.WriteBlock(meta.inodeBitmapBlock, inodeBitmap); err != nil {
		return nil, err
	}
	if err := w.writeBlocks(meta.tableStart, table); err != nil {
		return nil, err
	}

	gd := &groupDescriptor{
		number:      uint32(g),
		blockBitmap: meta.blockBitmapBlock,
		inodeBitmap: meta.inodeBitmapBlock,
		inodeTable:  meta.tableStart,
		freeBlocks:  freeCount(blockBitmap, liveBits),
		freeInodes:  freeCount(inodeBitmap, inodesPerGroup),
		usedDirs:    usedDirs,
	}
	gd.updateChecksums(seed, blockBitmap, inodeBitmap, uint32(inodesPerGroup))
	return gd, nil
}

// encodeDir assigns inode numbers below dir, encodes its entries inline or
// as linear blocks, and recurses into subdirectories.
func (w *Writer) encodeDir(dir *stagingDir, number, parent uint32) error {
	// children need their inode numbers before the entries can be encoded
	for _, e := range dir.entries {
		if e.dir == nil {
			continue
		}
		if number == rootInode && e.name == "lost+found" {
			e.dirInode = lostFoundInode
		} else {
			e.dirInode = w.allocateInode().number
		}
	}

	entries := make([]*directoryEntry, 0, len(dir.entries)+2)
	entries = append(entries,
		&directoryEntry{inode: number, fileType: dirFileTypeDirectory, name: "."},
		&directoryEntry{inode: parent, fileType: dirFileTypeDirectory, name: ".."},
	)
	var subdirs uint16
	for _, e := range dir.entries {
		if e.dir != nil {
			subdirs++
			entries = append(entries, &directoryEntry{inode: e.dirInode, fileType: dirFileTypeDirectory, name: e.name})
		} else {
			child := w.inodes[e.fileInode-1]
			entries = append(entries, &directoryEntry{inode: e.fileInode, fileType: dirFileTypeOf(child.fileType), name: e.name})
		}
	}

	ino := w.inodes[number-1]
	ino.fileType = fileTypeDirectory
	ino.permissions = 0o755
	ino.linksCount = 2 + subdirs

	if err := w.encodeDirContents(ino, entries, parent); err != nil {
		return err
	}

	for _, e := range dir.entries {
		if e.dir == nil {
			continue
		}
		if err := w.encodeDir(e.dir, e.dirInode, number); err != nil {
			return err
		}
	}
	return nil
}

// encodeDirContents stores the entry list inline when permitted and
// possible, otherwise as checksummed linear directory blocks mapped through
// extents. lost+found always gets a real block.
func (w *Writer) encodeDirContents(ino *inode, entries []*directoryEntry, parent uint32) error {
	if ino.number == lostFoundInode {
		ino.permissions = 0o700
	} else if area, spill, size, ok := dirEntriesInline(entries, parent); ok {
		ino.flags |= inodeFlagInlineData
		ino.body = area
		if len(spill) > 0 {
			ino.xattrValue = spill
		}
		ino.size = size
		return nil
	}

	buf := dirEntriesToBlocks(entries, ino.number, w.checksumSeed(), ino.generation)
	startBlock, err := w.writeBlocksAlloc(buf)
	if err != nil {
		return err
	}
	ino.size = uint64(len(buf))
	return w.encodeExtents(ino, startBlock, uint64(len(buf))/BlockSize)
}

func roundUpMultiple(n, m uint64) uint64 {
	return ceilDiv(n, m) * m
}
