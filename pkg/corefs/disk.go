package corefs

import (
	"github.com/corefs/corefs/pkg/alloc"
	"github.com/corefs/corefs/pkg/wear"
)

// allocDisk adapts an alloc.Allocator + wear.Table pair to inode.Disk
// (and to the raw block read/write file I/O needs), since the
// allocator's own Write signature takes the wear table as an explicit
// argument rather than holding one itself.
type allocDisk struct {
	a  *alloc.Allocator
	wt *wear.Table
}

func (d allocDisk) Read(b uint32, buf []byte) error {
	return d.a.Read(b, buf)
}

// Write goes through the allocator's read-erase-write path rather than
// the plain delegate: a freshly allocated block may carry stale content
// from its previous owner (freed blocks keep their bytes until reuse),
// and an in-place inode or data-block update always does.
func (d allocDisk) Write(b uint32, buf []byte) error {
	return d.a.Rewrite(b, buf, d.wt)
}

func (d allocDisk) Free(b uint32) error {
	return d.a.Free(b)
}

func (c *Context) disk() allocDisk {
	return allocDisk{a: c.alloc, wt: c.wear}
}
