package corefs

import (
	"github.com/corefs/corefs/pkg/alloc"
	"github.com/corefs/corefs/pkg/btree"
	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/elog"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/superblock"
	"github.com/corefs/corefs/pkg/txlog"
	"github.com/corefs/corefs/pkg/wear"
	"github.com/corefs/corefs/pkg/wire"
)

// Clock supplies a monotonically non-decreasing millisecond tick, the
// filesystem's only notion of time. Tests typically pass a closure
// over an incrementing counter; firmware would wire in its own uptime
// timer.
type Clock func() uint32

// Context is the mount state that lives from Mount to Unmount:
// exactly one value is meant to exist per mounted partition. It is an
// ordinary value the caller owns and threads through explicitly, not
// a package-level singleton.
type Context struct {
	io    *partition.IO
	sb    *superblock.Superblock
	alloc *alloc.Allocator
	wear  *wear.Table
	root  *btree.Node
	log   *txlog.Journal
	clock Clock
	view  elog.View

	open      [wire.MaxOpenFiles]*File
	nextInode uint32
	mounted   bool

	// faultKind is set on the first structural failure (bad magic, bad
	// CRC) observed after mount; once set, mutating operations are
	// refused until the caller remounts or reformats. Reads stay
	// available.
	faultKind cferr.Kind
}

// fault inspects err and, if it is structural, degrades the mount to
// read-only. The error is returned unchanged either way.
func (c *Context) fault(err error) error {
	if c.faultKind == 0 {
		switch {
		case cferr.Is(err, cferr.BadMagic):
			c.faultKind = cferr.BadMagic
		case cferr.Is(err, cferr.BadCrc):
			c.faultKind = cferr.BadCrc
		}
	}
	return err
}

// writeGuard refuses mutations on a degraded mount, surfacing the
// structural error that caused the degradation.
func (c *Context) writeGuard(op string) error {
	if c.faultKind != 0 {
		return cferr.New(op, c.faultKind)
	}
	return nil
}

// IsMounted reports whether the context currently holds a live mount.
func (c *Context) IsMounted() bool {
	return c.mounted
}

// List returns every path currently present in the directory index.
// The flat namespace's own operations only need Find/Insert/Delete by
// exact path, but a host dispatch facade and the CLI demo both need
// some way to enumerate the root -- this is that one primitive.
func (c *Context) List() ([]string, error) {

	if !c.mounted {
		return nil, nil
	}

	names := make([]string, 0, len(c.root.Entries))
	for _, e := range c.root.Entries {
		names = append(names, e.Name)
	}

	return names, nil

}

// Info is the summary the info() operation returns.
type Info struct {
	TotalBlocks uint32
	UsedBlocks  uint32
	FreeBlocks  uint32
	BlockSize   uint32
	MountCount  uint32
}

func (c *Context) findFreeSlot() int {
	for i, f := range c.open {
		if f == nil {
			return i
		}
	}
	return -1
}

// commitLogAndWear flushes the transaction log and then persists the
// wear table, so the erase counters the data writes just bumped
// survive a remount.
func commitLogAndWear(io *partition.IO, j *txlog.Journal, wt *wear.Table, tick uint32) error {

	if err := j.Commit(io, tick); err != nil {
		return err
	}

	return wear.Save(io, wt)

}
