package corefs

import (
	"os"
	"testing"

	"github.com/spf13/afero"

	"github.com/corefs/corefs/pkg/cferr"
)

func TestHostFsRoundTrip(t *testing.T) {

	_, c := formatAndMount(t, 32)
	var fs afero.Fs = NewFs(c)

	f, err := fs.OpenFile("/host.txt", os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("via afero"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := afero.ReadFile(fs, "/host.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "via afero" {
		t.Errorf("got %q, want %q", got, "via afero")
	}

	fi, err := fs.Stat("/host.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 9 {
		t.Errorf("got size=%d, want 9", fi.Size())
	}

	if err := fs.Remove("/host.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat("/host.txt"); !cferr.Is(err, cferr.NotFound) {
		t.Errorf("expected NotFound after Remove, got %v", err)
	}

}

func TestHostFsRenameUnsupported(t *testing.T) {

	_, c := formatAndMount(t, 32)
	fs := NewFs(c)

	err := fs.Rename("/a", "/b")
	if !cferr.Is(err, cferr.Unsupported) {
		t.Errorf("expected Unsupported, got %v", err)
	}

}

func TestHostFsCreateTruncatesExisting(t *testing.T) {

	_, c := formatAndMount(t, 32)
	fs := NewFs(c)

	if err := afero.WriteFile(fs, "/t.txt", []byte("long original content"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := fs.Create("/t.txt")
	if err != nil {
		t.Fatal(err)
	}
	fi, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 0 {
		t.Errorf("got size=%d after Create, want 0", fi.Size())
	}
	f.Close()

}
