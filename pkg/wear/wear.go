// Package wear implements the per-block erase counter table, the
// best-block wear-leveling policy the allocator consumes, and a
// health check flagging partitions whose erase counts have spread
// beyond a configurable deviation threshold.
package wear

import (
	"encoding/binary"

	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wire"
)

// DefaultThreshold is the deviation (max-min erase count) above which
// HealthCheck reports the partition unhealthy.
const DefaultThreshold = 1000

// Table holds one erase counter per block. It is the in-memory mirror
// of block 3, the reserved wear-count table.
type Table struct {
	counts    []uint16
	Threshold uint32
}

// New allocates a zeroed wear table for totalBlocks blocks.
func New(totalBlocks uint32) *Table {
	return &Table{
		counts:    make([]uint16, totalBlocks),
		Threshold: DefaultThreshold,
	}
}

// Count returns the erase count recorded for block b.
func (t *Table) Count(b uint32) uint16 {
	return t.counts[b]
}

// Increment bumps the erase counter for block b by one, saturating at
// u16::MAX rather than wrapping.
func (t *Table) Increment(b uint32) {
	if t.counts[b] < 0xFFFF {
		t.counts[b]++
	}
}

// BestBlock returns the free block (per the freeFn predicate) with the
// lowest wear count at or above floor, tie-broken by lowest index, or
// false if none qualifies. It implements a first-fit-over-wear
// allocation policy, factored out here because the wear manager owns
// the freeness-weighted view the allocator consumes.
func (t *Table) BestBlock(floor uint32, freeFn func(b uint32) bool) (uint32, bool) {

	best := uint32(0)
	bestCount := uint16(0xFFFF)
	found := false

	for b := floor; b < uint32(len(t.counts)); b++ {
		if !freeFn(b) {
			continue
		}
		if !found || t.counts[b] < bestCount {
			best = b
			bestCount = t.counts[b]
			found = true
		}
	}

	return best, found

}

// Health summarizes the wear table's spread.
type Health struct {
	Min       uint16
	Max       uint16
	Avg       uint16
	Unhealthy bool
}

// HealthCheck computes min/max/avg erase counts and flags a deviation
// beyond t.Threshold as unhealthy.
func (t *Table) HealthCheck() Health {

	if len(t.counts) == 0 {
		return Health{}
	}

	min, max := t.counts[0], t.counts[0]
	var sum uint64

	for _, c := range t.counts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
		sum += uint64(c)
	}

	avg := uint16(sum / uint64(len(t.counts)))

	return Health{
		Min:       min,
		Max:       max,
		Avg:       avg,
		Unhealthy: uint32(max)-uint32(min) > t.Threshold,
	}

}

// entriesPerBlock is how many u16 counters fit in one block; a table
// larger than that is truncated to fit.
const entriesPerBlock = wire.BlockSize / 2

// Load reads the wear table from block 3, truncating to whatever fits
// in one block. Blocks beyond the table's capacity simply keep an
// implicit wear count of zero in memory.
func Load(io *partition.IO, totalBlocks uint32) (*Table, error) {

	buf := make([]byte, wire.BlockSize)
	if err := io.BlockRead(wire.WearTableNumber, buf); err != nil {
		return nil, err
	}

	t := New(totalBlocks)
	n := int(totalBlocks)
	if n > entriesPerBlock {
		n = entriesPerBlock
	}

	for i := 0; i < n; i++ {
		t.counts[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}

	return t, nil

}

// Save persists the wear table to block 3, truncating to fit one
// block if the table holds more entries than one block can store.
func Save(io *partition.IO, t *Table) error {

	buf := make([]byte, wire.BlockSize)
	for i := range buf {
		buf[i] = 0
	}

	n := len(t.counts)
	if n > entriesPerBlock {
		n = entriesPerBlock
	}

	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], t.counts[i])
	}

	return io.BlockRewrite(wire.WearTableNumber, buf)

}
