package corefs

import (
	"io"
	"testing"

	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/elog"
	"github.com/corefs/corefs/pkg/partition"
	"github.com/corefs/corefs/pkg/wire"
)

// testClock returns a Clock closure over an incrementing counter, so
// successive calls observe a strictly monotonic tick without depending
// on wall-clock resolution.
func testClock() Clock {
	var tick uint32
	return func() uint32 {
		tick++
		return tick
	}
}

func formatAndMount(t *testing.T, blocks uint32) (*partition.SimPartition, *Context) {
	t.Helper()

	sim := partition.NewSimPartition(int64(blocks) * wire.BlockSize)

	if err := Format(sim, blocks, sim.Size(), sim.Address(), elog.Nil); err != nil {
		t.Fatalf("format: %v", err)
	}

	c := New()
	if err := c.Mount(sim, blocks, testClock(), elog.Nil); err != nil {
		t.Fatalf("mount: %v", err)
	}

	return sim, c
}

// TestScenarioWriteReadRoundTrip is end-to-end scenario 1: write then
// read back the same bytes through a fresh open.
func TestScenarioWriteReadRoundTrip(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, err := c.Open("/a.txt", CREAT|WRONLY)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := f.Write([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = c.Open("/a.txt", RDONLY)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	if n, err := f.Read(buf); err != nil || n != 5 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if string(buf) != "hello" {
		t.Errorf("got %q, want %q", buf, "hello")
	}
	if f.Size() != 5 {
		t.Errorf("got size=%d, want 5", f.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

}

// TestScenarioAppend is end-to-end scenario 2: a second open under
// APPEND extends the file rather than overwriting it.
func TestScenarioAppend(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("hello"))
	f.Close()

	f, err := c.Open("/a.txt", WRONLY|APPEND)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := f.Write([]byte(" world")); err != nil || n != 6 {
		t.Fatalf("append write: n=%d err=%v", n, err)
	}
	f.Close()

	f, _ = c.Open("/a.txt", RDONLY)
	buf := make([]byte, 64)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello world" {
		t.Errorf("got %q, want %q", buf[:n], "hello world")
	}
	if f.Size() != 11 {
		t.Errorf("got size=%d, want 11", f.Size())
	}
	f.Close()

}

// TestScenarioExistsAndUnlink is end-to-end scenarios 3 and 4.
func TestScenarioExistsAndUnlink(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("hello"))
	f.Close()

	if !c.Exists("/a.txt") {
		t.Errorf("expected /a.txt to exist")
	}
	if c.Exists("/nope") {
		t.Errorf("expected /nope to not exist")
	}

	if err := c.Unlink("/a.txt"); err != nil {
		t.Fatal(err)
	}
	if c.Exists("/a.txt") {
		t.Errorf("expected /a.txt to be gone after unlink")
	}

	_, err := c.Open("/a.txt", RDONLY)
	if !cferr.Is(err, cferr.NotFound) {
		t.Errorf("expected NotFound opening an unlinked file, got %v", err)
	}

}

// TestScenarioDirectoryFillsAndRollsBack is end-to-end scenario 5: the
// (Order-1)th entry succeeds, the next fails OutOfSpace, and the
// rolled-back inode leaves BlocksUsed unchanged from before the
// attempt.
func TestScenarioDirectoryFillsAndRollsBack(t *testing.T) {

	_, c := formatAndMount(t, 64)

	for i := 0; i < wire.Order-1; i++ {
		name := string([]byte{'/', byte('a' + i)})
		f, err := c.Open(name, CREAT|WRONLY)
		if err != nil {
			t.Fatalf("creating entry %d (%s): %v", i, name, err)
		}
		f.Close()
	}

	before := c.alloc.BlocksUsed

	_, err := c.Open("/overflow", CREAT|WRONLY)
	if !cferr.Is(err, cferr.OutOfSpace) {
		t.Fatalf("expected OutOfSpace on the %dth entry, got %v", wire.Order, err)
	}

	if c.alloc.BlocksUsed != before {
		t.Errorf("got BlocksUsed=%d after rollback, want %d (unchanged)", c.alloc.BlocksUsed, before)
	}

}

// TestScenarioCrashRecovery is end-to-end scenario 6: dropping
// in-memory state without calling Unmount leaves clean_unmount unset,
// and a subsequent Mount runs recovery and still reads back
// pre-crash content.
func TestScenarioCrashRecovery(t *testing.T) {

	blocks := uint32(32)
	sim := partition.NewSimPartition(int64(blocks) * wire.BlockSize)

	if err := Format(sim, blocks, sim.Size(), sim.Address(), elog.Nil); err != nil {
		t.Fatal(err)
	}

	c := New()
	if err := c.Mount(sim, blocks, testClock(), elog.Nil); err != nil {
		t.Fatal(err)
	}

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("hello"))
	f.Close()

	// Simulate a power cut: drop the in-memory context without Unmount.
	c = New()

	if err := c.Mount(sim, blocks, testClock(), elog.Nil); err != nil {
		t.Fatalf("mount after crash: %v", err)
	}

	f, err := c.Open("/a.txt", RDONLY)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Errorf("post-crash read: n=%d err=%v buf=%q", n, err, buf)
	}
	f.Close()

}

// TestFormatMountUnmountMountRoundTrip covers the clean format ->
// mount -> unmount -> mount durability property.
func TestFormatMountUnmountMountRoundTrip(t *testing.T) {

	sim, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("persisted"))
	f.Close()

	if err := c.Unmount(); err != nil {
		t.Fatal(err)
	}

	c2 := New()
	if err := c2.Mount(sim, 32, testClock(), elog.Nil); err != nil {
		t.Fatal(err)
	}

	f, err := c2.Open("/a.txt", RDONLY)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 9)
	f.Read(buf)
	if string(buf) != "persisted" {
		t.Errorf("got %q, want %q", buf, "persisted")
	}
	f.Close()
	c2.Unmount()

}

// TestTruncateOpenResetsSize covers "open CREAT|WRONLY|TRUNC yields
// size==0 whether or not the path existed".
func TestTruncateOpenResetsSize(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("some content"))
	f.Close()

	f, err := c.Open("/a.txt", CREAT|WRONLY|TRUNC)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 0 {
		t.Errorf("got size=%d after TRUNC, want 0", f.Size())
	}
	f.Close()

	f, _ = c.Open("/a.txt", RDONLY)
	if f.Size() != 0 {
		t.Errorf("got size=%d after reopen, want 0", f.Size())
	}
	f.Close()

}

// TestNameTooLong covers the fixed-width boundary: a name at exactly
// MaxNameLength-1 succeeds, one at MaxNameLength fails.
func TestNameTooLong(t *testing.T) {

	_, c := formatAndMount(t, 32)

	fillName := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return "/" + string(b)
	}

	atLimit := fillName(wire.MaxNameLength - 1)
	f, err := c.Open(atLimit, CREAT|WRONLY)
	if err != nil {
		t.Fatalf("name at width-1 should succeed: %v", err)
	}
	f.Close()

	overLimit := fillName(wire.MaxNameLength)
	_, err = c.Open(overLimit, CREAT|WRONLY)
	if !cferr.Is(err, cferr.NameTooLong) {
		t.Errorf("expected NameTooLong at exactly MaxNameLength, got %v", err)
	}

}

// TestTooManyOpenFiles covers the MaxOpenFiles+1-th open failing.
func TestTooManyOpenFiles(t *testing.T) {

	_, c := formatAndMount(t, 512)

	seed, err := c.Open("/shared", CREAT|WRONLY)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seed.Close()

	var handles []*File
	for i := 0; i < wire.MaxOpenFiles; i++ {
		f, err := c.Open("/shared", RDONLY)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		handles = append(handles, f)
	}

	_, err = c.Open("/shared", RDONLY)
	if !cferr.Is(err, cferr.TooManyOpen) {
		t.Errorf("expected TooManyOpen on the %dth open, got %v", wire.MaxOpenFiles+1, err)
	}

	for _, f := range handles {
		f.Close()
	}

}

// TestReadAtEOFReturnsZero covers "read at EOF returns 0".
func TestReadAtEOFReturnsZero(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("abc"))
	f.Close()

	f, _ = c.Open("/a.txt", RDONLY)
	buf := make([]byte, 3)
	f.Read(buf)

	n, err := f.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("got n=%d err=%v, want n=0 err=io.EOF", n, err)
	}
	f.Close()

}

// TestSeekBoundary covers "seek to size succeeds, to size+1 fails".
func TestSeekBoundary(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write([]byte("abc"))
	f.Close()

	f, _ = c.Open("/a.txt", RDONLY)

	if _, err := f.Seek(3, SeekSet); err != nil {
		t.Errorf("seek to size should succeed: %v", err)
	}
	if _, err := f.Seek(4, SeekSet); err == nil {
		t.Errorf("seek past size should fail")
	}

	f.Close()

}

// TestWriteOnlyHandleCannotRead and TestReadOnlyHandleCannotWrite cover
// the access-mode refusals on Read and Write.
func TestWriteOnlyHandleCannotRead(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	defer f.Close()

	buf := make([]byte, 1)
	if _, err := f.Read(buf); !cferr.Is(err, cferr.Unsupported) {
		t.Errorf("expected Unsupported reading a write-only handle, got %v", err)
	}

}

func TestReadOnlyHandleCannotWrite(t *testing.T) {

	_, c := formatAndMount(t, 32)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Close()

	f, _ = c.Open("/a.txt", RDONLY)
	defer f.Close()

	if _, err := f.Write([]byte("x")); !cferr.Is(err, cferr.Unsupported) {
		t.Errorf("expected Unsupported writing a read-only handle, got %v", err)
	}

}

// TestFileTooLarge covers the per-file block cap: a write landing past
// wire.MaxFileBlocks returns the bytes written so far and FileTooLarge,
// not a silent truncation.
func TestFileTooLarge(t *testing.T) {

	_, c := formatAndMount(t, wire.MaxFileBlocks+wire.MetadataBlocks+4)

	f, _ := c.Open("/big.bin", CREAT|WRONLY)
	defer f.Close()

	payload := make([]byte, (wire.MaxFileBlocks+1)*wire.BlockSize)
	n, err := f.Write(payload)

	if !cferr.Is(err, cferr.FileTooLarge) {
		t.Errorf("expected FileTooLarge, got %v", err)
	}
	if n != wire.MaxFileBlocks*wire.BlockSize {
		t.Errorf("got partial write n=%d, want exactly %d bytes (MaxFileBlocks worth)", n, wire.MaxFileBlocks*wire.BlockSize)
	}

}

// TestBlocksUsedInvariant exercises testable property: after any
// sequence, blocks_used equals popcount(bitmap).
func TestBlocksUsedInvariant(t *testing.T) {

	_, c := formatAndMount(t, 64)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write(make([]byte, wire.BlockSize*3+10))
	f.Close()

	popcount := uint32(0)
	bitmap := c.alloc.Bitmap()
	for _, b := range bitmap {
		for b != 0 {
			popcount += uint32(b & 1)
			b >>= 1
		}
	}

	if popcount != c.alloc.BlocksUsed {
		t.Errorf("got popcount=%d, alloc.BlocksUsed=%d, want equal", popcount, c.alloc.BlocksUsed)
	}

	// wire.MetadataBlocks (superblock/root/log/wear) + 1 inode block +
	// 4 data blocks (3 full blocks plus a 10-byte tail block).
	want := uint32(wire.MetadataBlocks + 1 + 4)
	if c.alloc.BlocksUsed != want {
		t.Errorf("got BlocksUsed=%d, want %d", c.alloc.BlocksUsed, want)
	}

}

// TestUnlinkFreesBlocksForReuse covers "the blocks it owned become
// allocatable again" after unlink.
func TestUnlinkFreesBlocksForReuse(t *testing.T) {

	_, c := formatAndMount(t, wire.MetadataBlocks+2)

	f, _ := c.Open("/a.txt", CREAT|WRONLY)
	f.Write(make([]byte, wire.BlockSize))
	f.Close()

	if err := c.Unlink("/a.txt"); err != nil {
		t.Fatal(err)
	}

	// The first file's inode+data pair consumed every non-metadata
	// block, so a second file of the same shape only fits if the freed
	// blocks came back.
	f, err := c.Open("/b.txt", CREAT|WRONLY)
	if err != nil {
		t.Fatalf("expected freed blocks to be reusable: %v", err)
	}
	if _, err := f.Write(make([]byte, wire.BlockSize)); err != nil {
		t.Fatal(err)
	}
	f.Close()

}

// TestDoubleMountRefused covers AlreadyMounted.
func TestDoubleMountRefused(t *testing.T) {

	sim, c := formatAndMount(t, 32)

	if err := c.Mount(sim, 32, testClock(), elog.Nil); !cferr.Is(err, cferr.AlreadyMounted) {
		t.Errorf("expected AlreadyMounted, got %v", err)
	}

}

// TestStructuralFaultDegradesMountToReadOnly corrupts an inode block on
// flash and checks that, after the bad CRC surfaces, further mutations
// are refused while reads of intact files keep working.
func TestStructuralFaultDegradesMountToReadOnly(t *testing.T) {

	sim, c := formatAndMount(t, 32)

	f, _ := c.Open("/good.txt", CREAT|WRONLY)
	f.Write([]byte("intact"))
	f.Close()

	f, _ = c.Open("/bad.txt", CREAT|WRONLY)
	f.Write([]byte("doomed"))
	f.Close()

	badBlock, ok := c.root.Find("/bad.txt")
	if !ok {
		t.Fatal("expected /bad.txt in the index")
	}

	// Flip a bit in the inode's CRC field directly on the backing
	// store, bypassing the partition layer's erase discipline.
	raw := sim.RawBytes()
	raw[int64(badBlock+1)*wire.BlockSize-1] ^= 0xFF

	_, err := c.Open("/bad.txt", RDONLY)
	if !cferr.Is(err, cferr.BadCrc) {
		t.Fatalf("expected BadCrc opening the corrupted file, got %v", err)
	}

	if _, err := c.Open("/new.txt", CREAT|WRONLY); !cferr.Is(err, cferr.BadCrc) {
		t.Errorf("expected the degraded mount to refuse creating files, got %v", err)
	}
	if err := c.Unlink("/good.txt"); !cferr.Is(err, cferr.BadCrc) {
		t.Errorf("expected the degraded mount to refuse unlink, got %v", err)
	}

	f, err = c.Open("/good.txt", RDONLY)
	if err != nil {
		t.Fatalf("reads should survive the degradation: %v", err)
	}
	buf := make([]byte, 6)
	if n, err := f.Read(buf); err != nil || n != 6 || string(buf) != "intact" {
		t.Errorf("post-fault read: n=%d err=%v buf=%q", n, err, buf)
	}
	f.Close()

}

// TestCheckReportsHealthyFreshFormat exercises the fsck-adjacent
// check() path end to end through the Context.
func TestCheckReportsHealthyFreshFormat(t *testing.T) {

	_, c := formatAndMount(t, 32)

	report, err := c.Check()
	if err != nil {
		t.Fatal(err)
	}
	if !report.SuperblockOK {
		t.Errorf("expected a freshly formatted superblock to check OK")
	}
	if report.WearHealth.Unhealthy {
		t.Errorf("a freshly formatted partition should not be wear-unhealthy")
	}

}
