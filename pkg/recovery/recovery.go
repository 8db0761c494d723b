// Package recovery implements the startup scan run from mount when
// the superblock's clean-unmount flag is zero, and the stronger
// on-demand check() / fsck variant. Neither replays
// anything -- the block allocator's copy-on-write discipline means an
// interrupted transaction leaves the prior on-disk state intact, so
// the log is diagnostic only.
package recovery

import (
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/superblock"
	"github.com/corefs/corefs/pkg/txlog"
	"github.com/corefs/corefs/pkg/wear"
)

// Report is the diagnostic outcome of a startup recovery scan.
type Report struct {
	Interrupted  bool
	LogEntries   []txlog.Entry
	SuperblockOK bool
}

// Scan reads the transaction log and reports whether the last BEGIN
// lacked a matching COMMIT. It re-verifies the superblock's CRC and
// returns BadCrc if that check fails -- the caller (lifecycle's Mount)
// aborts the mount on that error.
func Scan(io *partition.IO) (*Report, error) {

	entries, err := txlog.Load(io)
	if err != nil {
		return nil, err
	}

	if _, err := superblock.Read(io); err != nil {
		return nil, err
	}

	return &Report{
		Interrupted:  txlog.InterruptedTransaction(entries),
		LogEntries:   entries,
		SuperblockOK: true,
	}, nil

}

// CheckReport is the result of an on-demand fsck pass.
type CheckReport struct {
	SuperblockOK bool
	WearHealth   wear.Health
}

// Check performs the on-demand check(): verifies the superblock magic
// and CRC (reported, not fatal, unlike mount-time recovery) and
// reports wear-health deviation. Deeper checks (B-tree consistency,
// per-inode CRC sweep, orphan-block detection) are left as
// implementer extensions.
func Check(io *partition.IO, wt *wear.Table) (*CheckReport, error) {

	_, err := superblock.Read(io)
	superblockOK := err == nil

	report := &CheckReport{
		SuperblockOK: superblockOK,
		WearHealth:   wt.HealthCheck(),
	}

	if !superblockOK {
		return report, err
	}

	return report, nil

}
