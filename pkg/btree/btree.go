// Package btree implements a single root leaf node mapping path to
// inode-block, keyed by (FNV-1a hash, full path string). The on-disk
// node layout reserves room for internal nodes and child pointers, but
// one root leaf covers the flat namespace at the target scale.
package btree

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/checksum"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wire"
)

// Magic identifies a valid B-tree node block.
const Magic uint32 = 0x42545245 // "BTRE"

// NodeType distinguishes internal from leaf nodes. Only leaf is used
// today -- a single root leaf of order 8 is sufficient at this target
// scale -- the type byte is reserved for a future splitting
// implementation.
type NodeType uint8

const (
	Leaf     NodeType = 0
	Internal NodeType = 1
)

// entrySize is the on-disk width of one directory entry: inode block
// (4) + name hash (4) + name length (1) + fixed-width name.
const entrySize = 4 + 4 + 1 + wire.MaxNameLength

const (
	offMagic    = 0
	offType     = 4
	offCount    = 5
	offParent   = 7
	offChildren = 11
	maxChildren = wire.Order
	offEntries  = offChildren + maxChildren*4
	offCRC      = wire.BlockSize - 4
)

func init() {
	need := offEntries + (wire.Order-1)*entrySize + 4
	if need > wire.BlockSize {
		panic("btree: Order does not fit the entries array in one block")
	}
}

// Entry is one directory mapping: a name, its inode block, and the
// cached FNV-1a hash of the name used for the fast-reject scan.
type Entry struct {
	Name       string
	NameHash   uint32
	InodeBlock uint32
}

// Node is the in-memory decoding of the root block.
type Node struct {
	Type     NodeType
	Parent   uint32
	Children [wire.Order]uint32
	Entries  []Entry
}

// HashName computes the FNV-1a 32-bit hash of name. The on-disk
// format stores this hash alongside each entry so lookups can reject
// non-matches without a string compare.
func HashName(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// Empty returns a freshly initialized, empty leaf node.
func Empty() *Node {
	return &Node{Type: Leaf}
}

// Encode packs n into a block-sized buffer with a freshly computed
// CRC.
func (n *Node) Encode() []byte {

	buf := make([]byte, wire.BlockSize)

	bo := binary.LittleEndian
	bo.PutUint32(buf[offMagic:], Magic)
	buf[offType] = byte(n.Type)
	bo.PutUint16(buf[offCount:], uint16(len(n.Entries)))
	bo.PutUint32(buf[offParent:], n.Parent)

	for i := 0; i < maxChildren; i++ {
		bo.PutUint32(buf[offChildren+i*4:], n.Children[i])
	}

	for i, e := range n.Entries {
		base := offEntries + i*entrySize
		bo.PutUint32(buf[base:], e.InodeBlock)
		bo.PutUint32(buf[base+4:], e.NameHash)
		name := e.Name
		if len(name) > wire.MaxNameLength {
			name = name[:wire.MaxNameLength]
		}
		buf[base+8] = byte(len(name))
		copy(buf[base+9:base+9+wire.MaxNameLength], name)
	}

	crc := checksum.Compute(buf, offCRC)
	bo.PutUint32(buf[offCRC:], crc)

	return buf

}

// Decode parses a block-sized buffer into a Node, verifying magic and
// CRC.
func Decode(buf []byte) (*Node, error) {

	if len(buf) != wire.BlockSize {
		return nil, cferr.New("btree_decode", cferr.InvalidArg)
	}

	bo := binary.LittleEndian
	if bo.Uint32(buf[offMagic:]) != Magic {
		return nil, cferr.New("btree_decode", cferr.BadMagic)
	}

	want := bo.Uint32(buf[offCRC:])
	if !checksum.Verify(buf, offCRC, want) {
		return nil, cferr.New("btree_decode", cferr.BadCrc)
	}

	n := &Node{
		Type:   NodeType(buf[offType]),
		Parent: bo.Uint32(buf[offParent:]),
	}

	for i := 0; i < maxChildren; i++ {
		n.Children[i] = bo.Uint32(buf[offChildren+i*4:])
	}

	count := int(bo.Uint16(buf[offCount:]))
	if count > wire.Order-1 {
		count = wire.Order - 1
	}

	n.Entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		base := offEntries + i*entrySize
		inodeBlock := bo.Uint32(buf[base:])
		nameHash := bo.Uint32(buf[base+4:])
		nameLen := int(buf[base+8])
		if nameLen > wire.MaxNameLength {
			nameLen = wire.MaxNameLength
		}
		name := string(buf[base+9 : base+9+nameLen])
		n.Entries = append(n.Entries, Entry{Name: name, NameHash: nameHash, InodeBlock: inodeBlock})
	}

	return n, nil

}

// Find performs the mandated linear scan: a hash match followed by a
// byte-identical name compare, so hash collisions never cause a false
// hit. Returns the inode block and true, or 0 and false if absent.
func (n *Node) Find(path string) (uint32, bool) {

	h := HashName(path)
	for _, e := range n.Entries {
		if e.NameHash == h && e.Name == path {
			return e.InodeBlock, true
		}
	}

	return 0, false

}

// Insert adds a path -> inodeBlock mapping at the first free slot.
// Fails with Exists on a duplicate name, NameTooLong if path exceeds
// the fixed name width, and OutOfSpace if the node is full -- no
// splitting is implemented, an accepted capacity limit at this scale.
func (n *Node) Insert(path string, inodeBlock uint32) error {

	if len(path) > wire.MaxNameLength {
		return cferr.New("btree_insert", cferr.NameTooLong)
	}

	if _, ok := n.Find(path); ok {
		return cferr.New("btree_insert", cferr.Exists)
	}

	if len(n.Entries) >= wire.Order-1 {
		return cferr.New("btree_insert", cferr.OutOfSpace)
	}

	n.Entries = append(n.Entries, Entry{
		Name:       path,
		NameHash:   HashName(path),
		InodeBlock: inodeBlock,
	})

	return nil

}

// Delete removes path's entry, compacting the tail over the gap.
// Fails with NotFound if path is absent.
func (n *Node) Delete(path string) error {

	h := HashName(path)
	for i, e := range n.Entries {
		if e.NameHash == h && e.Name == path {
			n.Entries = append(n.Entries[:i], n.Entries[i+1:]...)
			return nil
		}
	}

	return cferr.New("btree_delete", cferr.NotFound)

}

// Load reads and decodes the root node from wire.BtreeRootNumber. An
// empty node with a valid magic is a legitimate, newly formatted tree.
func Load(io *partition.IO) (*Node, error) {

	buf := make([]byte, wire.BlockSize)
	if err := io.BlockRead(wire.BtreeRootNumber, buf); err != nil {
		return nil, err
	}

	return Decode(buf)

}

// Save persists n to the root block via the read-erase-write path,
// which carries the superblock sharing the sector across the erase.
func Save(io *partition.IO, n *Node) error {
	return io.BlockRewrite(wire.BtreeRootNumber, n.Encode())
}
