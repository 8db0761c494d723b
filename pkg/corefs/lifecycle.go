// Package corefs implements the filesystem's lifecycle (format, mount,
// unmount) and file I/O, binding together every lower layer behind the
// in-memory Context. It is the top of the package map: the one
// package every caller imports to format, mount, and use a CoreFS
// image.
package corefs

import (
	"github.com/corefs/corefs/pkg/alloc"
	"github.com/corefs/corefs/pkg/btree"
	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/elog"
	"github.com/corefs/corefs/pkg/inode"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/recovery"
	"github.com/corefs/corefs/pkg/superblock"
	"github.com/corefs/corefs/pkg/txlog"
	"github.com/corefs/corefs/pkg/wear"
	"github.com/corefs/corefs/pkg/wire"
)

// New returns an unmounted Context ready for Mount.
func New() *Context {
	return &Context{}
}

// Format refuses unless partitionSize and baseAddr are both
// sector-aligned, then synthesizes a fresh superblock, wear table, and
// empty B-tree root and persists them. The allocator bitmap is not
// persisted, so Format builds none; Mount reconstructs it. Any failure returns
// before anything is retained -- Go's GC reclaims the scratch state,
// so a failed format releases every heap array it touched.
func Format(raw partition.Raw, totalBlocks uint32, partitionSize, baseAddr int64, view elog.View) error {

	if !wire.SectorAligned(partitionSize) || !wire.SectorAligned(baseAddr) {
		return cferr.New("format", cferr.InvalidArg)
	}

	if view == nil {
		view = elog.Nil
	}

	io := partition.New(raw, totalBlocks)

	wt := wear.New(totalBlocks)
	root := btree.Empty()
	sb := superblock.Init(totalBlocks)

	view.Infof("formatting %d blocks", totalBlocks)

	if err := wear.Save(io, wt); err != nil {
		return err
	}

	if err := btree.Save(io, root); err != nil {
		return err
	}

	return superblock.Write(io, sb)

}

// Mount binds raw as the active partition, verifying the superblock
// and running a best-effort recovery scan if the prior unmount wasn't
// clean. Refuses if c is already mounted.
func (c *Context) Mount(raw partition.Raw, totalBlocks uint32, clock Clock, view elog.View) error {

	if c.mounted {
		return cferr.New("mount", cferr.AlreadyMounted)
	}

	if view == nil {
		view = elog.Nil
	}
	if clock == nil {
		clock = func() uint32 { return 0 }
	}

	io := partition.New(raw, totalBlocks)

	sb, err := superblock.Read(io)
	if err != nil {
		return err
	}

	if !sb.CleanUnmount {
		view.Warnf("unclean unmount detected, running recovery scan")
		report, err := recovery.Scan(io)
		if err != nil {
			return err
		}
		if report.Interrupted {
			view.Warnf("recovery: interrupted transaction detected (diagnostic only, no replay)")
		}
	}

	wt, err := wear.Load(io, totalBlocks)
	if err != nil {
		return err
	}

	root, err := btree.Load(io)
	if err != nil {
		return err
	}

	a := alloc.New(io, totalBlocks)
	disk := allocDisk{a: a, wt: wt}

	nextInode := uint32(1)
	for _, e := range root.Entries {
		a.MarkUsed(e.InodeBlock)
		n, err := inode.Read(disk, e.InodeBlock)
		if err != nil {
			continue
		}
		for i := uint32(0); i < n.BlocksUsed && i < wire.MaxFileBlocks; i++ {
			if n.BlockList[i] != 0 {
				a.MarkUsed(n.BlockList[i])
			}
		}
		if n.InodeNumber >= nextInode {
			nextInode = n.InodeNumber + 1
		}
	}

	sb.BootCount++
	sb.CleanUnmount = false

	if err := superblock.Write(io, sb); err != nil {
		return err
	}

	c.io = io
	c.sb = sb
	c.alloc = a
	c.wear = wt
	c.root = root
	c.log = txlog.New()
	c.clock = clock
	c.view = view
	c.nextInode = nextInode
	c.faultKind = 0
	c.mounted = true

	return nil

}

// Unmount force-closes every open handle, marks the unmount clean, and
// releases the context's mount state.
func (c *Context) Unmount() error {

	if !c.mounted {
		return cferr.New("unmount", cferr.NotMounted)
	}

	for i, f := range c.open {
		if f == nil {
			continue
		}
		_ = c.closeHandle(f)
		c.open[i] = nil
	}

	if err := wear.Save(c.io, c.wear); err != nil {
		return err
	}

	c.sb.CleanUnmount = true
	if err := superblock.Write(c.io, c.sb); err != nil {
		return err
	}

	c.io = nil
	c.sb = nil
	c.alloc = nil
	c.wear = nil
	c.root = nil
	c.log = nil
	c.mounted = false

	return nil

}

// Info reports the mounted partition's usage summary.
func (c *Context) Info() (Info, error) {

	if !c.mounted {
		return Info{}, cferr.New("info", cferr.NotMounted)
	}

	return Info{
		TotalBlocks: c.sb.TotalBlocks,
		UsedBlocks:  c.alloc.BlocksUsed,
		FreeBlocks:  c.sb.TotalBlocks - c.alloc.BlocksUsed,
		BlockSize:   wire.BlockSize,
		MountCount:  c.sb.BootCount,
	}, nil

}

// Check runs the on-demand fsck variant.
func (c *Context) Check() (*recovery.CheckReport, error) {

	if !c.mounted {
		return nil, cferr.New("check", cferr.NotMounted)
	}

	return recovery.Check(c.io, c.wear)

}
