package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corefs/corefs/pkg/corefs"
	"github.com/corefs/corefs/pkg/elog"
	"github.com/corefs/corefs/pkg/wire"
)

func TestParseSize(t *testing.T) {

	cases := map[string]int64{
		"2MB":    2 * 1024 * 1024,
		"512KB":  512 * 1024,
		"4096":   wire.SectorSize,
		"4096B":  wire.SectorSize,
		"1GB":    1024 * 1024 * 1024,
		"1000":   wire.SectorSize, // rounds up to the next sector
	}

	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := parseSize("not-a-size")
	require.Error(t, err)

}

func TestFormatInfoShellRoundTrip(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "test.img")

	size := int64(256 * 1024)
	totalBlocks := uint32(size / wire.BlockSize)

	img, err := createImage(path, size, false)
	require.NoError(t, err)

	require.NoError(t, corefs.Format(img, totalBlocks, size, img.Address(), elog.Nil))
	require.NoError(t, img.Close())

	img2, err := openImage(path)
	require.NoError(t, err)
	defer img2.Close()

	c := corefs.New()
	require.NoError(t, c.Mount(img2, totalBlocks, wallClock, elog.Nil))

	f, err := c.Open("/hello.txt", corefs.CREAT|corefs.WRONLY)
	require.NoError(t, err)
	n, err := f.Write([]byte("hello shell"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.NoError(t, f.Close())

	require.True(t, c.Exists("/hello.txt"))

	names, err := c.List()
	require.NoError(t, err)
	require.Equal(t, []string{"/hello.txt"}, names)

	info, err := c.Info()
	require.NoError(t, err)
	require.Equal(t, totalBlocks, info.TotalBlocks)

	require.NoError(t, c.Unmount())

}

func TestShellPutGet(t *testing.T) {

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "test.img")
	hostSrc := filepath.Join(dir, "src.txt")
	hostDst := filepath.Join(dir, "dst.txt")

	require.NoError(t, ioutil.WriteFile(hostSrc, []byte("round trip payload"), 0644))

	size := int64(256 * 1024)
	totalBlocks := uint32(size / wire.BlockSize)

	img, err := createImage(imgPath, size, false)
	require.NoError(t, err)
	require.NoError(t, corefs.Format(img, totalBlocks, size, img.Address(), elog.Nil))
	require.NoError(t, img.Close())

	img2, err := openImage(imgPath)
	require.NoError(t, err)
	defer img2.Close()

	c := corefs.New()
	require.NoError(t, c.Mount(img2, totalBlocks, wallClock, elog.Nil))
	defer c.Unmount()

	require.NoError(t, shellPut(c, hostSrc, "/src.txt"))
	require.NoError(t, shellGet(c, "/src.txt", hostDst))

	got, err := ioutil.ReadFile(hostDst)
	require.NoError(t, err)
	require.Equal(t, "round trip payload", string(got))

}

func TestCreateImageRefusesOverwriteWithoutForce(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "test.img")

	_, err := createImage(path, int64(wire.SectorSize), false)
	require.NoError(t, err)

	_, err = createImage(path, int64(wire.SectorSize), false)
	require.Error(t, err)
	require.True(t, os.IsExist(err))

	img, err := createImage(path, int64(wire.SectorSize), true)
	require.NoError(t, err)
	require.NoError(t, img.Close())

}
