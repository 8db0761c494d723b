// Package inode implements per-file metadata records, one per block,
// with a direct block list in place of an extent tree -- CoreFS
// targets a much smaller partition than a general-purpose filesystem
// does, so a flat list of up to wire.MaxFileBlocks block numbers
// replaces the extent tree entirely.
package inode

import (
	"encoding/binary"

	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/checksum"
	"github.com/corefs/corefs/pkg/wire"
)

// Magic identifies a valid inode record.
const Magic uint32 = 0x494E4F44 // "INOD"

// Mode/flag bit placeholders: no bits are enumerated beyond a single
// mode word; CoreFS defines none today and simply carries the field
// through.
const (
	offMagic       = 0
	offInodeNumber = 4
	offSize        = 8
	offBlocksUsed  = 12
	offCreated     = 16
	offModified    = 20
	offMode        = 24
	offFlags       = 26
	offNameLen     = 28
	offName        = 29
	nameWidth      = wire.MaxNameLength
	offBlockList   = offName + nameWidth
	offCRC         = wire.BlockSize - 4
)

// Inode is the in-memory decoding of one inode block.
type Inode struct {
	InodeNumber uint32
	Size        uint32
	BlocksUsed  uint32
	Created     uint32
	Modified    uint32
	Mode        uint16
	Flags       uint16
	Name        string
	BlockList   [wire.MaxFileBlocks]uint32
}

func init() {
	maxBlockListBytes := wire.BlockSize - offBlockList - 4
	if wire.MaxFileBlocks*4 > maxBlockListBytes {
		panic("inode: MaxFileBlocks does not fit in one block alongside the fixed header")
	}
}

// Encode packs n into a block-sized buffer with a freshly computed
// CRC, zeroing unused tail bytes.
func (n *Inode) Encode() []byte {

	buf := make([]byte, wire.BlockSize)

	bo := binary.LittleEndian
	bo.PutUint32(buf[offMagic:], Magic)
	bo.PutUint32(buf[offInodeNumber:], n.InodeNumber)
	bo.PutUint32(buf[offSize:], n.Size)
	bo.PutUint32(buf[offBlocksUsed:], n.BlocksUsed)
	bo.PutUint32(buf[offCreated:], n.Created)
	bo.PutUint32(buf[offModified:], n.Modified)
	bo.PutUint16(buf[offMode:], n.Mode)
	bo.PutUint16(buf[offFlags:], n.Flags)

	name := n.Name
	if len(name) > nameWidth {
		name = name[:nameWidth]
	}
	buf[offNameLen] = byte(len(name))
	copy(buf[offName:offName+nameWidth], name)

	for i := 0; i < wire.MaxFileBlocks; i++ {
		bo.PutUint32(buf[offBlockList+i*4:], n.BlockList[i])
	}

	crc := checksum.Compute(buf, offCRC)
	bo.PutUint32(buf[offCRC:], crc)

	return buf

}

// Decode parses a block-sized buffer into an Inode, verifying magic
// and CRC distinctly so callers can surface BadMagic vs BadCrc.
func Decode(buf []byte) (*Inode, error) {

	if len(buf) != wire.BlockSize {
		return nil, cferr.New("inode_decode", cferr.InvalidArg)
	}

	bo := binary.LittleEndian
	if bo.Uint32(buf[offMagic:]) != Magic {
		return nil, cferr.New("inode_decode", cferr.BadMagic)
	}

	want := bo.Uint32(buf[offCRC:])
	if !checksum.Verify(buf, offCRC, want) {
		return nil, cferr.New("inode_decode", cferr.BadCrc)
	}

	n := &Inode{
		InodeNumber: bo.Uint32(buf[offInodeNumber:]),
		Size:        bo.Uint32(buf[offSize:]),
		BlocksUsed:  bo.Uint32(buf[offBlocksUsed:]),
		Created:     bo.Uint32(buf[offCreated:]),
		Modified:    bo.Uint32(buf[offModified:]),
		Mode:        bo.Uint16(buf[offMode:]),
		Flags:       bo.Uint16(buf[offFlags:]),
	}

	nameLen := int(buf[offNameLen])
	if nameLen > nameWidth {
		nameLen = nameWidth
	}
	n.Name = string(buf[offName : offName+nameLen])

	for i := 0; i < wire.MaxFileBlocks; i++ {
		n.BlockList[i] = bo.Uint32(buf[offBlockList+i*4:])
	}

	return n, nil

}

// Disk is the collaborator surface the inode layer needs from the
// allocator: block-granular read/write plus free (Create takes its
// allocation function separately), kept narrow so inode tests can fake
// it without pulling in a wear table.
type Disk interface {
	Read(b uint32, buf []byte) error
	Write(b uint32, buf []byte) error
	Free(b uint32) error
}

// Create allocates a block, builds a fresh inode in memory, writes it,
// and returns both the inode and its block number. On write failure
// the allocation is released.
func Create(disk Disk, allocate func() (uint32, error), name string, tick uint32, inodeNumber uint32) (*Inode, uint32, error) {

	if len(name) > nameWidth {
		return nil, 0, cferr.New("inode_create", cferr.NameTooLong)
	}

	b, err := allocate()
	if err != nil {
		return nil, 0, err
	}

	n := &Inode{
		InodeNumber: inodeNumber,
		Created:     tick,
		Modified:    tick,
		Name:        name,
	}

	if err := disk.Write(b, n.Encode()); err != nil {
		_ = disk.Free(b)
		return nil, 0, err
	}

	return n, b, nil

}

// Read reads and decodes the inode at block b.
func Read(disk Disk, b uint32) (*Inode, error) {

	buf := make([]byte, wire.BlockSize)
	if err := disk.Read(b, buf); err != nil {
		return nil, err
	}

	return Decode(buf)

}

// Write updates the modified tick, recomputes the CRC, and persists n
// to block b.
func Write(disk Disk, b uint32, n *Inode, tick uint32) error {
	n.Modified = tick
	return disk.Write(b, n.Encode())
}

// Delete frees every non-zero block in n's direct list, then frees b
// itself.
func Delete(disk Disk, b uint32, n *Inode) error {

	for i := uint32(0); i < n.BlocksUsed && i < wire.MaxFileBlocks; i++ {
		db := n.BlockList[i]
		if db == 0 {
			continue
		}
		if err := disk.Free(db); err != nil {
			return err
		}
	}

	return disk.Free(b)

}
