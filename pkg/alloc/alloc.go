// Package alloc implements a bit-per-block free/used bitmap layered
// over the wear manager's best-block policy, pinning the reserved
// metadata blocks and delegating actual I/O to the partition layer. It
// is a wear-aware chooser in place of a plain first-fit scan over a
// block-usage bitmap.
package alloc

import (
	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wear"
	"github.com/corefs/corefs/pkg/wire"
)

// Allocator owns the free-block bitmap and the blocks-used counter. It
// does not own the wear table directly -- callers pass one in, since
// lifecycle owns both and only the wear table is persisted.
type Allocator struct {
	io          *partition.IO
	bitmap      []byte
	totalBlocks uint32
	BlocksUsed  uint32
}

// New builds an allocator over totalBlocks blocks, with every metadata
// block (0..wire.MetadataBlocks-1) pinned used.
func New(io *partition.IO, totalBlocks uint32) *Allocator {

	a := &Allocator{
		io:          io,
		bitmap:      make([]byte, (totalBlocks+7)/8),
		totalBlocks: totalBlocks,
	}

	for b := uint32(0); b < wire.MetadataBlocks; b++ {
		a.setBit(b)
	}
	a.BlocksUsed = wire.MetadataBlocks

	return a

}

func (a *Allocator) bitSet(b uint32) bool {
	return a.bitmap[b/8]&(1<<(b%8)) != 0
}

func (a *Allocator) setBit(b uint32) {
	a.bitmap[b/8] |= 1 << (b % 8)
}

func (a *Allocator) clearBit(b uint32) {
	a.bitmap[b/8] &^= 1 << (b % 8)
}

// Bitmap exposes the raw free/used bitmap for inspection.
func (a *Allocator) Bitmap() []byte {
	return a.bitmap
}

// SetBitmap replaces the bitmap wholesale and recomputes BlocksUsed.
func (a *Allocator) SetBitmap(bitmap []byte) {
	a.bitmap = bitmap
	used := uint32(0)
	for b := uint32(0); b < a.totalBlocks; b++ {
		if a.bitSet(b) {
			used++
		}
	}
	a.BlocksUsed = used
}

// IsUsed reports whether block b is currently marked used.
func (a *Allocator) IsUsed(b uint32) bool {
	return a.bitSet(b)
}

// MarkUsed sets b's bit directly, bumping BlocksUsed only if the bit
// was not already set. The bitmap itself is never persisted -- mount
// time reconstructs it by walking the directory index and every
// inode's block list, and this is the primitive that walk uses.
func (a *Allocator) MarkUsed(b uint32) {
	if !a.bitSet(b) {
		a.setBit(b)
		a.BlocksUsed++
	}
}

// Allocate picks a free block at or beyond wire.MetadataBlocks with
// the lowest wear count, tie-broken by lowest index, marks it used,
// and increments BlocksUsed. Returns OutOfSpace if no block qualifies.
func (a *Allocator) Allocate(wt *wear.Table) (uint32, error) {

	b, ok := wt.BestBlock(wire.MetadataBlocks, func(b uint32) bool {
		return !a.bitSet(b)
	})
	if !ok {
		return 0, cferr.New("alloc", cferr.OutOfSpace)
	}

	a.setBit(b)
	a.BlocksUsed++

	return b, nil

}

// Free releases block b back to the free set. Freeing a metadata
// block or an already-free block is refused.
func (a *Allocator) Free(b uint32) error {

	if b < wire.MetadataBlocks {
		return cferr.New("alloc_free", cferr.InvalidArg)
	}
	if !a.bitSet(b) {
		return cferr.New("alloc_free", cferr.InvalidArg)
	}

	a.clearBit(b)
	a.BlocksUsed--

	return nil

}

// Read delegates to the partition layer.
func (a *Allocator) Read(b uint32, buf []byte) error {
	return a.io.BlockRead(b, buf)
}

// Rewrite updates block b in place via the partition layer's
// read-erase-write path. The erase touches the whole sector, so every
// block sharing it is charged a wear increment.
func (a *Allocator) Rewrite(b uint32, buf []byte, wt *wear.Table) error {

	if err := a.io.BlockRewrite(b, buf); err != nil {
		return err
	}

	start := b - b%wire.BlocksPerSector
	for i := uint32(0); i < wire.BlocksPerSector; i++ {
		if start+i < a.totalBlocks {
			wt.Increment(start + i)
		}
	}

	return nil

}

// Write delegates to the partition layer and, on a sector-initiating
// write, bumps the wear count of both blocks sharing that sector.
func (a *Allocator) Write(b uint32, buf []byte, wt *wear.Table) error {

	if err := a.io.BlockWrite(b, buf); err != nil {
		return err
	}

	if wire.SectorAligned(int64(b) * wire.BlockSize) {
		wt.Increment(b)
		if b+1 < a.totalBlocks {
			wt.Increment(b + 1)
		}
	}

	return nil

}
