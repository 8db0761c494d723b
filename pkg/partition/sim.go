package partition

import (
	"io"

	"github.com/corefs/corefs/pkg/streamio"
	"github.com/corefs/corefs/pkg/wire"
)

// SimPartition is an in-memory NOR-flash partition simulator: it starts
// fully erased (all 0xFF), rejects writes that would clear a bit that
// is already clear (mimicking flash's write-only-zeroes-over-ones
// limitation), and requires EraseRange to be sector-aligned on both
// ends. It is the Raw backing store the package-level tests use,
// backing them with an in-memory byte slice instead of a real device;
// the CLI uses its own file-backed image instead.
type SimPartition struct {
	buf  []byte
	addr int64
}

// NewSimPartition allocates a simulated partition of size bytes,
// initialized to the erased state (all 0xFF).
func NewSimPartition(size int64) *SimPartition {
	buf := make([]byte, size)
	_, _ = io.ReadFull(streamio.Erased, buf)
	return &SimPartition{buf: buf}
}

// ErrNotErased is returned by WriteAt when the destination holds a bit
// that is already zero and the incoming byte needs it set, which real
// NOR flash cannot do without an intervening erase.
var ErrNotErased = simError("partition: destination byte is not erased")

type simError string

func (e simError) Error() string { return string(e) }

func (p *SimPartition) Size() int64 { return int64(len(p.buf)) }

// Address reports the simulated partition's base flash offset. Tests
// that don't care about absolute addressing can leave it at zero.
func (p *SimPartition) Address() int64 { return p.addr }

// SetAddress fixes the base address reported by Address, for tests
// that exercise BlockFlashAddr.
func (p *SimPartition) SetAddress(addr int64) { p.addr = addr }

func (p *SimPartition) ReadAt(off int64, buf []byte) error {
	if off < 0 || off+int64(len(buf)) > int64(len(p.buf)) {
		return simError("partition: read out of range")
	}
	copy(buf, p.buf[off:off+int64(len(buf))])
	return nil
}

func (p *SimPartition) WriteAt(off int64, buf []byte) error {

	if off < 0 || off+int64(len(buf)) > int64(len(p.buf)) {
		return simError("partition: write out of range")
	}

	for i, b := range buf {
		cur := p.buf[off+int64(i)]
		if cur&b != b {
			return ErrNotErased
		}
	}

	copy(p.buf[off:off+int64(len(buf))], buf)
	return nil

}

func (p *SimPartition) EraseRange(off, length int64) error {

	if off%wire.SectorSize != 0 || length%wire.SectorSize != 0 {
		return simError("partition: erase range must be sector-aligned")
	}
	if off < 0 || off+length > int64(len(p.buf)) {
		return simError("partition: erase out of range")
	}

	_, _ = io.ReadFull(streamio.Erased, p.buf[off:off+length])

	return nil

}

// RawBytes exposes the backing slice directly, for assertions in tests
// that need to inspect bytes the IO layer wouldn't otherwise surface.
func (p *SimPartition) RawBytes() []byte {
	return p.buf
}
