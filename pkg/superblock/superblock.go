// Package superblock implements the filesystem header occupying block
// 0, its canonical on-disk layout, and the read/write/init operations
// over it. The layout follows a fixed byte offset per field, packed
// and unpacked by hand rather than through a tagged struct, so the
// wire format is exact regardless of Go's own alignment rules.
package superblock

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/checksum"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wire"
)

// Magic is the constant value every valid superblock must carry.
const Magic uint32 = 0x43524653 // "CRFS"

// Flag bits held in the superblock's flags word. Only CleanUnmount is
// defined today; the remaining bits are reserved for future use.
const (
	FlagCleanUnmount uint16 = 1 << 0
)

// Byte offsets within the 2048-byte superblock block. Field order and
// widths are part of the wire format and must not change without a
// version bump.
const (
	offMagic        = 0
	offVersionMajor = 4
	offVersionMinor = 6
	offFlags        = 8
	offBlockSize    = 10
	offTotalBlocks  = 14
	offBlocksUsed   = 18
	offRootBlock    = 22
	offLogBlock     = 26
	offWearBlock    = 30
	offBootCount    = 34
	offCleanUnmount = 38
	offVolumeUUID   = 39
	offCRC          = wire.BlockSize - 4
)

// VersionMajor and VersionMinor identify the wire format this package
// reads and writes.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

// Superblock is the in-memory decoding of block 0.
type Superblock struct {
	VersionMajor uint16
	VersionMinor uint16
	Flags        uint16
	BlockSize    uint32
	TotalBlocks  uint32
	BlocksUsed   uint32
	RootBlock    uint32
	LogBlock     uint32
	WearBlock    uint32
	BootCount    uint32
	CleanUnmount bool
	VolumeUUID   uuid.UUID
}

// cleanUnmountByte reports the flag; helper kept distinct from the field so
// callers reading flags can add bits later without an API break.
func (s *Superblock) cleanUnmountByte() byte {
	if s.CleanUnmount {
		return 1
	}
	return 0
}

// Encode packs s into a full block-sized buffer, computing and storing
// the trailing CRC-32 over the record with the CRC field zeroed.
func (s *Superblock) Encode() []byte {

	buf := make([]byte, wire.BlockSize)
	for i := range buf {
		buf[i] = 0xFF
	}

	bo := binary.LittleEndian
	bo.PutUint32(buf[offMagic:], Magic)
	bo.PutUint16(buf[offVersionMajor:], s.VersionMajor)
	bo.PutUint16(buf[offVersionMinor:], s.VersionMinor)
	bo.PutUint16(buf[offFlags:], s.Flags)
	bo.PutUint32(buf[offBlockSize:], s.BlockSize)
	bo.PutUint32(buf[offTotalBlocks:], s.TotalBlocks)
	bo.PutUint32(buf[offBlocksUsed:], s.BlocksUsed)
	bo.PutUint32(buf[offRootBlock:], s.RootBlock)
	bo.PutUint32(buf[offLogBlock:], s.LogBlock)
	bo.PutUint32(buf[offWearBlock:], s.WearBlock)
	bo.PutUint32(buf[offBootCount:], s.BootCount)
	buf[offCleanUnmount] = s.cleanUnmountByte()
	copy(buf[offVolumeUUID:offVolumeUUID+16], s.VolumeUUID[:])

	for i := offCRC; i < wire.BlockSize; i++ {
		buf[i] = 0
	}
	crc := checksum.Compute(buf, offCRC)
	bo.PutUint32(buf[offCRC:], crc)

	return buf

}

// Decode parses a full block-sized buffer into a Superblock, verifying
// the magic and trailing CRC. BadMagic and BadCrc are distinguished so
// callers can apply a fatal-on-mount / reported-on-fsck policy.
func Decode(buf []byte) (*Superblock, error) {

	if len(buf) != wire.BlockSize {
		return nil, cferr.New("superblock_decode", cferr.InvalidArg)
	}

	bo := binary.LittleEndian
	if bo.Uint32(buf[offMagic:]) != Magic {
		return nil, cferr.New("superblock_decode", cferr.BadMagic)
	}

	want := bo.Uint32(buf[offCRC:])
	if !checksum.Verify(buf, offCRC, want) {
		return nil, cferr.New("superblock_decode", cferr.BadCrc)
	}

	s := &Superblock{
		VersionMajor: bo.Uint16(buf[offVersionMajor:]),
		VersionMinor: bo.Uint16(buf[offVersionMinor:]),
		Flags:        bo.Uint16(buf[offFlags:]),
		BlockSize:    bo.Uint32(buf[offBlockSize:]),
		TotalBlocks:  bo.Uint32(buf[offTotalBlocks:]),
		BlocksUsed:   bo.Uint32(buf[offBlocksUsed:]),
		RootBlock:    bo.Uint32(buf[offRootBlock:]),
		LogBlock:     bo.Uint32(buf[offLogBlock:]),
		WearBlock:    bo.Uint32(buf[offWearBlock:]),
		BootCount:    bo.Uint32(buf[offBootCount:]),
		CleanUnmount: buf[offCleanUnmount] != 0,
	}
	copy(s.VolumeUUID[:], buf[offVolumeUUID:offVolumeUUID+16])

	return s, nil

}

// Init synthesizes a fresh superblock for a newly formatted partition
// of totalBlocks blocks.
func Init(totalBlocks uint32) *Superblock {
	return &Superblock{
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		BlockSize:    wire.BlockSize,
		TotalBlocks:  totalBlocks,
		BlocksUsed:   wire.MetadataBlocks,
		RootBlock:    wire.BtreeRootNumber,
		LogBlock:     wire.TxnLogNumber,
		WearBlock:    wire.WearTableNumber,
		BootCount:    0,
		CleanUnmount: true,
		VolumeUUID:   uuid.New(),
	}
}

// Read loads and verifies the superblock from block 0.
func Read(io *partition.IO) (*Superblock, error) {

	buf := make([]byte, wire.BlockSize)
	if err := io.BlockRead(wire.SuperblockNumber, buf); err != nil {
		return nil, err
	}

	return Decode(buf)

}

// Write recomputes the CRC and persists s to block 0 via the block
// layer's read-erase-write path, which carries the directory root
// sharing the sector across the erase.
func Write(io *partition.IO, s *Superblock) error {
	return io.BlockRewrite(wire.SuperblockNumber, s.Encode())
}
