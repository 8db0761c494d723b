package corefs

import (
	"io"

	"github.com/corefs/corefs/pkg/btree"
	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/inode"
	"github.com/corefs/corefs/pkg/streamio"
	"github.com/corefs/corefs/pkg/txlog"
	"github.com/corefs/corefs/pkg/wire"
)

// File is an open-file handle, one slot of Context's fixed-size open
// table. It holds its own cursor; the inode record it wraps is only a
// cached copy, rewritten to disk at the end of every Write and on
// Close if still dirty.
type File struct {
	c          *Context
	path       string
	inodeBlock uint32
	n          *inode.Inode
	flags      OpenFlag
	offset     int64
	dirty      bool
	closed     bool
}

func (c *Context) tick() uint32 {
	return c.clock()
}

// Open resolves path against the directory index, optionally creating
// or truncating it, and returns a handle positioned per flags (start of
// file, or end of file under APPEND).
func (c *Context) Open(path string, flags OpenFlag) (*File, error) {

	if !c.mounted {
		return nil, cferr.New("open", cferr.NotMounted)
	}

	slot := c.findFreeSlot()
	if slot < 0 {
		return nil, cferr.New("open", cferr.TooManyOpen)
	}

	block, found := c.root.Find(path)

	var n *inode.Inode

	if !found {
		if flags&CREAT == 0 {
			return nil, cferr.New("open", cferr.NotFound)
		}
		if err := c.writeGuard("open"); err != nil {
			return nil, err
		}

		var err error
		n, block, err = inode.Create(c.disk(), func() (uint32, error) {
			return c.alloc.Allocate(c.wear)
		}, path, c.tick(), c.nextInode)
		if err != nil {
			return nil, err
		}

		if err := c.root.Insert(path, block); err != nil {
			_ = inode.Delete(c.disk(), block, n)
			return nil, err
		}

		if err := btree.Save(c.io, c.root); err != nil {
			return nil, err
		}

		c.nextInode++

	} else {
		var err error
		n, err = inode.Read(c.disk(), block)
		if err != nil {
			return nil, c.fault(err)
		}

		if flags&TRUNC != 0 {
			if err := c.writeGuard("open"); err != nil {
				return nil, err
			}
			if err := c.truncate(block, n); err != nil {
				return nil, err
			}
		}
	}

	f := &File{
		c:          c,
		path:       path,
		inodeBlock: block,
		n:          n,
		flags:      flags,
	}

	if flags&APPEND != 0 {
		f.offset = int64(n.Size)
	}

	c.open[slot] = f

	return f, nil

}

// truncate frees every data block n holds and resets its size to zero,
// then persists the now-empty inode.
func (c *Context) truncate(block uint32, n *inode.Inode) error {

	for i := uint32(0); i < n.BlocksUsed && i < wire.MaxFileBlocks; i++ {
		if n.BlockList[i] == 0 {
			continue
		}
		if err := c.alloc.Free(n.BlockList[i]); err != nil {
			return err
		}
		n.BlockList[i] = 0
	}

	n.BlocksUsed = 0
	n.Size = 0

	return inode.Write(c.disk(), block, n, c.tick())

}

// Exists reports whether path has a directory entry.
func (c *Context) Exists(path string) bool {
	if !c.mounted {
		return false
	}
	_, ok := c.root.Find(path)
	return ok
}

// Unlink removes path's directory entry and frees its inode and data
// blocks. The directory entry is removed even if freeing the inode's
// blocks partially fails, so a later mount never walks a dangling
// entry back into a half-freed inode.
func (c *Context) Unlink(path string) error {

	if !c.mounted {
		return cferr.New("unlink", cferr.NotMounted)
	}
	if err := c.writeGuard("unlink"); err != nil {
		return err
	}

	block, ok := c.root.Find(path)
	if !ok {
		return cferr.New("unlink", cferr.NotFound)
	}

	n, err := inode.Read(c.disk(), block)

	var delErr error
	if err == nil {
		delErr = inode.Delete(c.disk(), block, n)
	} else {
		delErr = c.fault(err)
	}

	if err := c.root.Delete(path); err != nil {
		return err
	}

	if err := btree.Save(c.io, c.root); err != nil {
		return err
	}

	return delErr

}

// closeFile flushes f if dirty and releases its open-table slot. Safe
// to call twice; the second call is a no-op.
func (c *Context) closeFile(f *File) error {

	if f.closed {
		return nil
	}

	var err error
	if f.dirty {
		err = inode.Write(c.disk(), f.inodeBlock, f.n, c.tick())
	}

	f.closed = true

	for i, g := range c.open {
		if g == f {
			c.open[i] = nil
		}
	}

	return err

}

func (c *Context) closeHandle(f *File) error {
	return c.closeFile(f)
}

// Close flushes any pending metadata write and releases the handle.
func (f *File) Close() error {
	return f.c.closeFile(f)
}

// Tell returns the current cursor position.
func (f *File) Tell() int64 {
	return f.offset
}

// Size returns the file's current length in bytes.
func (f *File) Size() int64 {
	return int64(f.n.Size)
}

// Seek repositions the cursor per whence. The resulting offset must
// satisfy 0 <= offset <= size; seeking past the end of file is refused
// rather than leaving a hole for a later Write to fill.
func (f *File) Seek(offset int64, whence Whence) (int64, error) {

	var abs int64

	switch whence {
	case SeekSet:
		abs = offset
	case SeekCur:
		abs = f.offset + offset
	case SeekEnd:
		abs = int64(f.n.Size) + offset
	default:
		return 0, cferr.New("seek", cferr.InvalidArg)
	}

	if abs < 0 || abs > int64(f.n.Size) {
		return 0, cferr.New("seek", cferr.InvalidArg)
	}

	f.offset = abs

	return abs, nil

}

// Read copies up to len(buf) bytes starting at the cursor, returning
// io.EOF once the cursor reaches the file's size.
func (f *File) Read(buf []byte) (int, error) {

	if !f.flags.readable() {
		return 0, cferr.New("read", cferr.Unsupported)
	}

	if f.offset >= int64(f.n.Size) {
		return 0, io.EOF
	}

	remaining := int64(f.n.Size) - f.offset
	want := len(buf)
	if int64(want) > remaining {
		want = int(remaining)
	}

	block := make([]byte, wire.BlockSize)
	read := 0

	for read < want {

		blockIndex := uint32((f.offset + int64(read)) / wire.BlockSize)
		blockOff := int((f.offset + int64(read)) % wire.BlockSize)

		if blockIndex >= f.n.BlocksUsed || f.n.BlockList[blockIndex] == 0 {
			break
		}

		if err := f.c.disk().Read(f.n.BlockList[blockIndex], block); err != nil {
			return read, err
		}

		n := copy(buf[read:want], block[blockOff:])
		read += n

	}

	f.offset += int64(read)

	if read == 0 {
		return 0, io.EOF
	}

	return read, nil

}

// Write copies buf into the file starting at the cursor (or at EOF
// under APPEND), allocating new data blocks as the file grows and
// recording each touched block in the transaction log before the
// inode metadata is updated.
func (f *File) Write(buf []byte) (int, error) {

	if !f.flags.writable() {
		return 0, cferr.New("write", cferr.Unsupported)
	}
	if err := f.c.writeGuard("write"); err != nil {
		return 0, err
	}

	if f.flags&APPEND != 0 {
		f.offset = int64(f.n.Size)
	}

	tick := f.c.tick()
	f.c.log.Begin(tick)

	// flush persists whatever growth the loop below managed before
	// stopping -- on the normal completion path as well as the
	// FileTooLarge partial-write path, so the inode on flash reflects
	// any successful growth, not only a completed write. A genuine I/O
	// fault (alloc/read/write error) rolls back the log instead and the
	// inode on flash is not rewritten; blocks written before the fault
	// keep their new bytes.
	flush := func(written int) (int, error) {
		f.offset += int64(written)
		if uint32(f.offset) > f.n.Size {
			f.n.Size = uint32(f.offset)
		}

		f.dirty = true

		if err := commitLogAndWear(f.c.io, f.c.log, f.c.wear, tick); err != nil {
			return written, err
		}

		if err := inode.Write(f.c.disk(), f.inodeBlock, f.n, tick); err != nil {
			return written, err
		}
		f.dirty = false

		return written, nil
	}

	block := make([]byte, wire.BlockSize)
	written := 0

	for written < len(buf) {

		blockIndex := uint32((f.offset + int64(written)) / wire.BlockSize)
		blockOff := int((f.offset + int64(written)) % wire.BlockSize)

		if blockIndex >= wire.MaxFileBlocks {
			if written == 0 {
				f.c.log.Rollback()
				return 0, cferr.New("write", cferr.FileTooLarge)
			}
			n, err := flush(written)
			if err != nil {
				return n, err
			}
			return n, cferr.New("write", cferr.FileTooLarge)
		}

		if blockIndex < f.n.BlocksUsed && f.n.BlockList[blockIndex] != 0 {
			if err := f.c.disk().Read(f.n.BlockList[blockIndex], block); err != nil {
				f.c.log.Rollback()
				return written, err
			}
		} else {
			_, _ = io.ReadFull(streamio.Zeroes, block)
		}

		n := copy(block[blockOff:], buf[written:])

		newBlock := blockIndex >= f.n.BlocksUsed || f.n.BlockList[blockIndex] == 0
		var bn uint32
		if newBlock {
			allocated, err := f.c.alloc.Allocate(f.c.wear)
			if err != nil {
				f.c.log.Rollback()
				return written, err
			}
			bn = allocated
			f.n.BlockList[blockIndex] = bn
			if blockIndex >= f.n.BlocksUsed {
				f.n.BlocksUsed = blockIndex + 1
			}
		} else {
			bn = f.n.BlockList[blockIndex]
		}

		if err := f.c.disk().Write(bn, block); err != nil {
			f.c.log.Rollback()
			return written, err
		}

		f.c.log.Log(txlog.OpWrite, f.n.InodeNumber, bn, tick)

		written += n

	}

	return flush(written)

}

// Snapshot reads the whole file contiguously into memory in one call,
// the supplemented read-only substitute for a memory-mapped view
// (mmap has no sense against a raw NOR partition's block geometry).
func (f *File) Snapshot() ([]byte, error) {

	out := make([]byte, f.n.Size)
	off := int64(0)

	block := make([]byte, wire.BlockSize)
	for off < int64(f.n.Size) {

		blockIndex := uint32(off / wire.BlockSize)
		if blockIndex >= f.n.BlocksUsed || f.n.BlockList[blockIndex] == 0 {
			break
		}

		if err := f.c.disk().Read(f.n.BlockList[blockIndex], block); err != nil {
			return nil, err
		}

		n := copy(out[off:], block)
		off += int64(n)

	}

	return out, nil

}
