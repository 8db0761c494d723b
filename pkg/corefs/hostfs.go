package corefs

import (
	"io"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/corefs/corefs/pkg/cferr"
	"github.com/corefs/corefs/pkg/inode"
)

// Fs adapts a mounted Context to afero.Fs: the file API alone covers
// reads, writes, and lifecycle, but every consumer in the surrounding
// Go ecosystem expects to plug an afero.Fs into its pipeline rather
// than a bespoke interface. CoreFS has no subdirectory hierarchy, so
// every path is used verbatim as the directory-index key; nested
// components are not interpreted.
type Fs struct {
	c *Context
}

// NewFs wraps a mounted Context as an afero.Fs.
func NewFs(c *Context) *Fs {
	return &Fs{c: c}
}

var _ afero.Fs = (*Fs)(nil)

func posixToOpenFlag(flag int) OpenFlag {

	var f OpenFlag

	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_WRONLY:
		f |= WRONLY
	case os.O_RDWR:
		f |= RDWR
	default:
		f |= RDONLY
	}

	if flag&os.O_CREATE != 0 {
		f |= CREAT
	}
	if flag&os.O_TRUNC != 0 {
		f |= TRUNC
	}
	if flag&os.O_APPEND != 0 {
		f |= APPEND
	}

	return f

}

func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0)
}

// Mkdir and MkdirAll are no-ops: the flat namespace has no directories
// to create, and the root always exists.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return nil
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {

	f, err := fs.c.Open(name, posixToOpenFlag(flag))
	if err != nil {
		return nil, err
	}

	return &hostFile{f: f, name: name}, nil

}

func (fs *Fs) Remove(name string) error {
	return fs.c.Unlink(name)
}

// RemoveAll removes the single file at path; it exists for afero.Fs
// compliance, not because the flat namespace has a subtree to recurse
// into.
func (fs *Fs) RemoveAll(path string) error {
	if !fs.c.Exists(path) {
		return nil
	}
	return fs.c.Unlink(path)
}

// Rename is unsupported: CoreFS's directory index has no atomic
// two-entry swap, so Rename always fails rather than silently doing
// an unlink+create that could lose the file on a power-cut between
// the two.
func (fs *Fs) Rename(oldname, newname string) error {
	return cferr.New("rename", cferr.Unsupported)
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {

	block, ok := fs.c.root.Find(name)
	if !ok {
		return nil, cferr.New("stat", cferr.NotFound)
	}

	n, err := inode.Read(fs.c.disk(), block)
	if err != nil {
		return nil, fs.c.fault(err)
	}

	return fileInfo{name: name, size: int64(n.Size), modified: n.Modified}, nil

}

func (fs *Fs) Name() string {
	return "corefs"
}

// Chmod and Chtimes are accepted but not persisted: the inode's
// mode/flags words are carried through, not interpreted, and there is
// no mtime field beyond the tick-resolution Modified counter already
// set on every write.
func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	if !fs.c.Exists(name) {
		return cferr.New("chmod", cferr.NotFound)
	}
	return nil
}

func (fs *Fs) Chtimes(name string, atime, mtime time.Time) error {
	if !fs.c.Exists(name) {
		return cferr.New("chtimes", cferr.NotFound)
	}
	return nil
}

// fileInfo is the minimal os.FileInfo CoreFS can back honestly: no
// directories, no real permission bits.
type fileInfo struct {
	name     string
	size     int64
	modified uint32
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() os.FileMode  { return 0644 }
func (fi fileInfo) ModTime() time.Time { return time.Unix(int64(fi.modified), 0) }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() interface{}   { return nil }

// hostFile adapts *corefs.File to afero.File.
type hostFile struct {
	f    *File
	name string
}

var _ afero.File = (*hostFile)(nil)

func (h *hostFile) Close() error { return h.f.Close() }

func (h *hostFile) Read(p []byte) (int, error) { return h.f.Read(p) }

func (h *hostFile) ReadAt(p []byte, off int64) (int, error) {
	if _, err := h.f.Seek(off, SeekSet); err != nil {
		return 0, err
	}
	return h.f.Read(p)
}

func (h *hostFile) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, Whence(whence))
}

func (h *hostFile) Write(p []byte) (int, error) { return h.f.Write(p) }

func (h *hostFile) WriteAt(p []byte, off int64) (int, error) {
	if _, err := h.f.Seek(off, SeekSet); err != nil {
		return 0, err
	}
	return h.f.Write(p)
}

func (h *hostFile) Name() string { return h.name }

// Readdir and Readdirnames only make sense against the root of a flat
// namespace; CoreFS has no handle-relative listing, so both return
// Unsupported rather than silently returning an empty slice.
func (h *hostFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, cferr.New("readdir", cferr.Unsupported)
}

func (h *hostFile) Readdirnames(n int) ([]string, error) {
	return nil, cferr.New("readdirnames", cferr.Unsupported)
}

func (h *hostFile) Stat() (os.FileInfo, error) {
	return fileInfo{name: h.name, size: h.f.Size(), modified: h.f.n.Modified}, nil
}

func (h *hostFile) Sync() error {
	return nil
}

func (h *hostFile) Truncate(size int64) error {
	if size != 0 {
		return cferr.New("truncate", cferr.Unsupported)
	}
	return h.f.c.truncate(h.f.inodeBlock, h.f.n)
}

func (h *hostFile) WriteString(s string) (int, error) {
	return h.f.Write([]byte(s))
}

var _ io.ReaderAt = (*hostFile)(nil)
var _ io.WriterAt = (*hostFile)(nil)
