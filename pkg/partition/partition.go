// Package partition implements a typed, block-granular read/write/erase
// layer over an addressable flash partition. It knows nothing about
// allocation, inodes, or the directory index -- only bytes, blocks,
// and the sector-erase discipline flash imposes on writes.
package partition

import (
	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/wire"
)

// Raw is the collaborator interface consumed from below: an
// addressable byte range supporting random reads, pre-erased writes,
// and sector-granular erase. It is satisfied by the real flash
// partition driver on target hardware, by SimPartition for tests, and
// by the CLI demo's file-backed image.
type Raw interface {
	// ReadAt reads len(buf) bytes starting at byte offset off.
	ReadAt(off int64, buf []byte) error
	// WriteAt writes buf to byte offset off. The caller guarantees the
	// destination is currently all-ones unless a sector erase just
	// preceded the write.
	WriteAt(off int64, buf []byte) error
	// EraseRange sets len bytes starting at off to 0xFF. off must be
	// sector-aligned and len must be a multiple of wire.SectorSize.
	EraseRange(off, length int64) error
	// Size returns the partition's total size in bytes.
	Size() int64
	// Address returns the absolute flash address of the partition's
	// first byte, used only by the debug BlockFlashAddr accessor.
	Address() int64
}

// IO is the typed block-level facade over a Raw partition.
type IO struct {
	raw         Raw
	totalBlocks uint32
}

// New wraps raw as a block-addressable device of totalBlocks blocks.
// raw's size must be at least totalBlocks*wire.BlockSize.
func New(raw Raw, totalBlocks uint32) *IO {
	return &IO{raw: raw, totalBlocks: totalBlocks}
}

// TotalBlocks returns the block count the IO was constructed with.
func (io *IO) TotalBlocks() uint32 {
	return io.totalBlocks
}

func (io *IO) checkBounds(op string, b uint32) error {
	if b >= io.totalBlocks {
		return cferr.New(op, cferr.InvalidArg)
	}
	return nil
}

func blockOffset(b uint32) int64 {
	return int64(b) * wire.BlockSize
}

// BlockRead reads block b into buf, which must be exactly
// wire.BlockSize bytes.
func (io *IO) BlockRead(b uint32, buf []byte) error {

	if err := io.checkBounds("block_read", b); err != nil {
		return err
	}
	if len(buf) != wire.BlockSize {
		return cferr.New("block_read", cferr.InvalidArg)
	}

	if err := io.raw.ReadAt(blockOffset(b), buf); err != nil {
		return cferr.Wrap("block_read", cferr.Io, err)
	}

	return nil

}

// BlockWrite writes buf (exactly wire.BlockSize bytes) to block b. If b
// begins a sector, the whole sector is erased first; otherwise the
// write proceeds directly and the caller is responsible for the
// destination already being erased.
func (io *IO) BlockWrite(b uint32, buf []byte) error {

	if err := io.checkBounds("block_write", b); err != nil {
		return err
	}
	if len(buf) != wire.BlockSize {
		return cferr.New("block_write", cferr.InvalidArg)
	}

	off := blockOffset(b)

	if wire.SectorAligned(off) {
		if err := io.raw.EraseRange(off, wire.SectorSize); err != nil {
			return cferr.Wrap("block_write", cferr.Io, err)
		}
	}

	if err := io.raw.WriteAt(off, buf); err != nil {
		return cferr.Wrap("block_write", cferr.Io, err)
	}

	return nil

}

// BlockRewrite updates block b in place under the read-erase-write
// discipline flash imposes: every other live block in b's sector is
// read out first, the whole sector is erased, and all blocks are
// written back with b replaced by buf. BlockWrite alone suffices only
// when the destination bytes are known to be erased already.
func (io *IO) BlockRewrite(b uint32, buf []byte) error {

	if err := io.checkBounds("block_rewrite", b); err != nil {
		return err
	}
	if len(buf) != wire.BlockSize {
		return cferr.New("block_rewrite", cferr.InvalidArg)
	}

	start := b - b%wire.BlocksPerSector

	preserved := make([][]byte, wire.BlocksPerSector)
	for i := uint32(0); i < wire.BlocksPerSector; i++ {
		nb := start + i
		if nb == b || nb >= io.totalBlocks {
			continue
		}
		scratch := make([]byte, wire.BlockSize)
		if err := io.raw.ReadAt(blockOffset(nb), scratch); err != nil {
			return cferr.Wrap("block_rewrite", cferr.Io, err)
		}
		preserved[i] = scratch
	}

	if err := io.raw.EraseRange(blockOffset(start), wire.SectorSize); err != nil {
		return cferr.Wrap("block_rewrite", cferr.Io, err)
	}

	for i := uint32(0); i < wire.BlocksPerSector; i++ {
		nb := start + i
		src := preserved[i]
		if nb == b {
			src = buf
		}
		if src == nil {
			continue
		}
		if err := io.raw.WriteAt(blockOffset(nb), src); err != nil {
			return cferr.Wrap("block_rewrite", cferr.Io, err)
		}
	}

	return nil

}

// BlockFree erases the sector containing block b without writing
// anything back. It is a partition-layer primitive only -- it has no
// notion of allocation bookkeeping, which lives in pkg/alloc.
func (io *IO) BlockFree(b uint32) error {

	if err := io.checkBounds("block_free", b); err != nil {
		return err
	}

	off := blockOffset(b)
	off -= off % wire.SectorSize

	if err := io.raw.EraseRange(off, wire.SectorSize); err != nil {
		return cferr.Wrap("block_free", cferr.Io, err)
	}

	return nil

}

// BlockFlashAddr returns the absolute flash address of block b, for
// debug/diagnostic use only.
func (io *IO) BlockFlashAddr(b uint32) (int64, error) {

	if err := io.checkBounds("block_flash_addr", b); err != nil {
		return 0, err
	}

	return io.raw.Address() + blockOffset(b), nil

}
