package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/corefs/corefs/pkg/streamio"
	"github.com/corefs/corefs/pkg/wire"
)

// fileImage backs partition.Raw with a plain host file, the demo
// binary's stand-in for the real flash partition driver treated as an
// external collaborator. It enforces the same
// write-only-zeroes-over-ones discipline partition.SimPartition does,
// so a bug that writes to an unerased region is caught here exactly as
// it would be against real NOR flash.
type fileImage struct {
	f    *os.File
	size int64
}

func openImage(path string) (*fileImage, error) {

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &fileImage{f: f, size: fi.Size()}, nil

}

// createImage creates a new image file of size bytes, pre-filled to
// the erased state (all 0xFF), refusing to overwrite an existing file
// unless force is set.
func createImage(path string, size int64, force bool) (*fileImage, error) {

	flags := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	erased := make([]byte, wire.SectorSize)
	_, _ = io.ReadFull(streamio.Erased, erased)

	var written int64
	for written < size {
		n := int64(len(erased))
		if size-written < n {
			n = size - written
		}
		if _, err := f.WriteAt(erased[:n], written); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		written += n
	}

	return &fileImage{f: f, size: size}, nil

}

func (img *fileImage) Close() error {
	return img.f.Close()
}

func (img *fileImage) Size() int64 {
	return img.size
}

func (img *fileImage) Address() int64 {
	return 0
}

func (img *fileImage) ReadAt(off int64, buf []byte) error {
	_, err := img.f.ReadAt(buf, off)
	return err
}

func (img *fileImage) WriteAt(off int64, buf []byte) error {

	existing := make([]byte, len(buf))
	if _, err := img.f.ReadAt(existing, off); err != nil {
		return err
	}
	for i, b := range buf {
		if existing[i]&b != b {
			return fmt.Errorf("corefs: write at offset %d targets an unerased byte", off+int64(i))
		}
	}

	_, err := img.f.WriteAt(buf, off)
	return err

}

func (img *fileImage) EraseRange(off, length int64) error {

	if off%wire.SectorSize != 0 || length%wire.SectorSize != 0 {
		return fmt.Errorf("corefs: erase range must be sector-aligned (off=%d len=%d)", off, length)
	}

	erased := make([]byte, wire.SectorSize)
	_, _ = io.ReadFull(streamio.Erased, erased)

	for o := off; o < off+length; o += wire.SectorSize {
		if _, err := img.f.WriteAt(erased, o); err != nil {
			return err
		}
	}

	return nil

}

// parseSize parses a human size like "2MB", "512KB", or a bare byte
// count, rounding the result up to a whole number of sectors the way
// the lifecycle layer requires.
func parseSize(s string) (int64, error) {

	s = strings.TrimSpace(strings.ToUpper(s))

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corefs: invalid size %q: %w", s, err)
	}

	bytes := n * mult
	return wire.Align(bytes, wire.SectorSize), nil

}
