package ext4

import (
	"math/bits"

	"github.com/anuejn/ext4-image-writer/util/bitmap"
)

// allocator tracks which block or inode indexes have been handed out. New
// regions always come from a monotonically advancing cursor, so a caller
// that allocates a run knows its position before any pointer to it is
// written; nothing is ever freed.
type allocator struct {
	bm       *bitmap.Bitmap
	nextFree uint64
}

func newAllocator() *allocator {
	return &allocator{bm: bitmap.New(0)}
}

// markUsed sets bit n. Idempotent.
func (a *allocator) markUsed(n uint64) {
	_ = a.bm.Set(int(n))
	if n >= a.nextFree {
		a.nextFree = n + 1
	}
}

// allocate hands out k contiguous never-allocated indexes and returns the
// first. k must be at least 1.
func (a *allocator) allocate(k uint64) uint64 {
	start := a.nextFree
	_ = a.bm.SetRange(int(start), int(start+k))
	a.nextFree = start + k
	return start
}

// groupSnapshot emits the one-block bitmap covering bits
// [startBit, startBit+BlockSize*8). Bits at or beyond liveBits are forced to
// 1 so a checker treats the area past the end of the group as allocated.
// startBit must be a multiple of 8.
func (a *allocator) groupSnapshot(startBit, liveBits uint64) []byte {
	snapshot := make([]byte, BlockSize)
	a.bm.Snapshot(snapshot, int(startBit))
	for bit := liveBits; bit < blocksPerGroup; bit++ {
		snapshot[bit/8] |= 1 << (bit % 8)
	}
	return snapshot
}

// freeCount is the number of zero bits in snapshot[0, liveBits).
func freeCount(snapshot []byte, liveBits uint64) uint32 {
	var free int
	whole := int(liveBits / 8)
	for _, b := range snapshot[:whole] {
		free += 8 - bits.OnesCount8(b)
	}
	for bit := uint64(whole) * 8; bit < liveBits; bit++ {
		if snapshot[bit/8]&(1<<(bit%8)) == 0 {
			free++
		}
	}
	return uint32(free)
}
