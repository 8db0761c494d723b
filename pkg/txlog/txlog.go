// Package txlog implements an in-memory transaction journal that is
// copy-on-write over the log block -- the block is rewritten in a
// single erase-and-write pass at commit, so a torn commit leaves a
// CRC-invalid log rather than a half-updated one. It is diagnostic
// only; recovery uses it to detect an interrupted transaction, never
// to replay one.
package txlog

import (
	"encoding/binary"

	"github.com/corefs/corefs/pkg/checksum"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wire"
)

// OpCode identifies a logged operation's kind. The full set is wider
// than recovery currently consumes; the unused codes are reserved for
// a future replay-capable version.
type OpCode uint8

const (
	OpNone OpCode = iota
	OpBegin
	OpWrite
	OpDelete
	OpCommit
)

// entrySize is the on-disk width of one log entry: op(1) + pad(3) +
// inode number(4) + block number(4) + timestamp(4).
const entrySize = 1 + 3 + 4 + 4 + 4

// EntriesPerBlock is (BLOCK_SIZE - 4) / sizeof(entry), computed rather
// than hardcoded: the block's last 4 bytes hold the log's CRC.
const EntriesPerBlock = (wire.BlockSize - 4) / entrySize

// Entry is one logged mutation intent.
type Entry struct {
	Op        OpCode
	InodeNum  uint32
	BlockNum  uint32
	Timestamp uint32
}

// Journal holds the in-memory log for the transaction currently being
// assembled (or just completed).
type Journal struct {
	entries []Entry
	active  bool
}

// New returns an empty, inactive journal.
func New() *Journal {
	return &Journal{}
}

// Active reports whether a transaction is currently open.
func (j *Journal) Active() bool {
	return j.active
}

// Entries exposes the in-memory log, for recovery scanning and tests.
func (j *Journal) Entries() []Entry {
	return j.entries
}

// Begin clears the in-memory log and appends a BEGIN entry. Re-entering
// Begin with an already-open transaction rolls back first.
func (j *Journal) Begin(tick uint32) {
	if j.active {
		j.Rollback()
	}
	j.entries = []Entry{{Op: OpBegin, Timestamp: tick}}
	j.active = true
}

// Log appends an entry recording op against inodeNum/blockNum.
// Overflow past EntriesPerBlock-worth of ops silently drops further
// entries, a documented capacity limit on how many ops a single
// transaction may span.
func (j *Journal) Log(op OpCode, inodeNum, blockNum, tick uint32) {
	if len(j.entries) >= EntriesPerBlock {
		return
	}
	j.entries = append(j.entries, Entry{Op: op, InodeNum: inodeNum, BlockNum: blockNum, Timestamp: tick})
}

// Rollback discards the in-memory log without touching flash.
func (j *Journal) Rollback() {
	j.entries = nil
	j.active = false
}

// Commit appends a COMMIT entry and writes the whole log atomically to
// the log block.
func (j *Journal) Commit(io *partition.IO, tick uint32) error {

	commit := Entry{Op: OpCommit, Timestamp: tick}
	if len(j.entries) < EntriesPerBlock {
		j.entries = append(j.entries, commit)
	} else {
		// A full log gives up its last logged op so the block still
		// ends in COMMIT.
		j.entries[len(j.entries)-1] = commit
	}

	if err := save(io, j.entries); err != nil {
		return err
	}

	j.active = false

	return nil

}

func save(io *partition.IO, entries []Entry) error {

	buf := make([]byte, wire.BlockSize)
	bo := binary.LittleEndian

	for i, e := range entries {
		if i >= EntriesPerBlock {
			break
		}
		base := i * entrySize
		buf[base] = byte(e.Op)
		bo.PutUint32(buf[base+4:], e.InodeNum)
		bo.PutUint32(buf[base+8:], e.BlockNum)
		bo.PutUint32(buf[base+12:], e.Timestamp)
	}

	crcOff := wire.BlockSize - 4
	crc := checksum.Compute(buf, crcOff)
	bo.PutUint32(buf[crcOff:], crc)

	return io.BlockRewrite(wire.TxnLogNumber, buf)

}

// Load reads the log block and decodes its entries, stopping at the
// first OpNone sentinel (an unwritten/cleared slot) or the block's
// capacity, whichever comes first. CRC mismatches are treated as an
// empty log: a log that never committed cleanly carries no usable
// diagnostic content anyway.
func Load(io *partition.IO) ([]Entry, error) {

	buf := make([]byte, wire.BlockSize)
	if err := io.BlockRead(wire.TxnLogNumber, buf); err != nil {
		return nil, err
	}

	crcOff := wire.BlockSize - 4
	bo := binary.LittleEndian
	want := bo.Uint32(buf[crcOff:])
	if !checksum.Verify(buf, crcOff, want) {
		return nil, nil
	}

	var entries []Entry
	for i := 0; i < EntriesPerBlock; i++ {
		base := i * entrySize
		op := OpCode(buf[base])
		if op == OpNone {
			break
		}
		entries = append(entries, Entry{
			Op:        op,
			InodeNum:  bo.Uint32(buf[base+4:]),
			BlockNum:  bo.Uint32(buf[base+8:]),
			Timestamp: bo.Uint32(buf[base+12:]),
		})
	}

	return entries, nil

}

// InterruptedTransaction reports whether the last BEGIN in entries was
// not followed by a matching COMMIT -- a diagnostic used by recovery
// but never to replay anything.
func InterruptedTransaction(entries []Entry) bool {

	sawBegin := false
	for _, e := range entries {
		switch e.Op {
		case OpBegin:
			sawBegin = true
		case OpCommit:
			sawBegin = false
		}
	}

	return sawBegin

}
