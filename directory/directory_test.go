package directory

import (
	"strings"
	"testing"

	"github.com/rtprakash/minifs/bitmap"
	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/descriptor"
	"github.com/rtprakash/minifs/fserr"
	"github.com/rtprakash/minifs/layout"
	"github.com/rtprakash/minifs/oft"
)

type harness struct {
	dev *block.Device
	bm  *bitmap.Bitmap
	dt  *descriptor.Table
	oft *oft.Table
	dir *Directory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dev := block.New()

	bm, err := bitmap.Load(dev)
	if err != nil {
		t.Fatal(err)
	}
	bm.Format()

	dt, err := descriptor.Load(dev)
	if err != nil {
		t.Fatal(err)
	}
	dt.Format()

	oftTable := oft.New()
	root, err := oftTable.Open(dev, dt, layout.RootDescriptor)
	if err != nil {
		t.Fatal(err)
	}
	if root != layout.RootHandle {
		t.Fatalf("expected root to bind to handle %d, got %d", layout.RootHandle, root)
	}

	dir := New(dev, bm, dt, oftTable)
	return &harness{dev: dev, bm: bm, dt: dt, oft: oftTable, dir: dir}
}

func TestCreateOpenReadWriteRoundTrip(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("abc"); err != nil {
		t.Fatal(err)
	}

	fh, err := h.dir.Open("abc")
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("123456")
	n, err := h.oft.Write(h.dev, h.dt, h.bm, fh, payload)
	if err != nil || n != len(payload) {
		t.Fatalf("unexpected write result n=%d err=%v", n, err)
	}

	if err := h.oft.Seek(h.dev, h.dt, fh, 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(payload))
	n, err = h.oft.Read(h.dev, h.dt, fh, buf)
	if err != nil || n != len(payload) || string(buf) != "123456" {
		t.Fatalf("unexpected read result n=%d buf=%q err=%v", n, buf, err)
	}

	if err := h.dir.Close(fh); err != nil {
		t.Fatal(err)
	}
}

func TestCreateDuplicateAlreadyExists(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("abc"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Create("abc"); err != fserr.ErrAlreadyExists {
		t.Fatalf("expected already-exists, got %v", err)
	}
}

func TestCreatePathTooLong(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("toolong"); err != fserr.ErrPathTooLong {
		t.Fatalf("expected path-too-long, got %v", err)
	}
}

func TestDestroyThenOpenNotFound(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("a"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Destroy("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.dir.Open("a"); err != fserr.ErrNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDestroyUnknownNotFound(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Destroy("ghost"); err != fserr.ErrNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDestroyReleasesBlocks(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("a"); err != nil {
		t.Fatal(err)
	}
	fh, err := h.dir.Open("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.oft.Write(h.dev, h.dt, h.bm, fh, []byte("xyz")); err != nil {
		t.Fatal(err)
	}

	d := h.dt.Get(h.oft.Descriptor(fh))
	blk := d.Block[0]
	if blk == layout.FreeSentinel {
		t.Fatal("expected a data block to have been acquired")
	}
	if err := h.dir.Close(fh); err != nil {
		t.Fatal(err)
	}

	if !h.bm.Test(int(blk)) {
		t.Fatal("expected the acquired block to be marked used before destroy")
	}

	if err := h.dir.Destroy("a"); err != nil {
		t.Fatal(err)
	}

	if h.bm.Test(int(blk)) {
		t.Fatal("expected destroy to release the block")
	}
}

func TestDirectoryListing(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("a"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Create("b"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Destroy("a"); err != nil {
		t.Fatal(err)
	}

	listing, count := h.dir.List()
	if count != 1 {
		t.Fatalf("expected 1 live entry, got %d", count)
	}
	if strings.TrimSpace(listing) != "b 0" {
		t.Fatalf("expected listing %q, got %q", "b 0", listing)
	}
}

func TestDestroySlotIsReusedByCreate(t *testing.T) {
	h := newHarness(t)

	if err := h.dir.Create("a"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Create("b"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Destroy("a"); err != nil {
		t.Fatal(err)
	}
	if err := h.dir.Create("c"); err != nil {
		t.Fatal(err)
	}

	listing, count := h.dir.List()
	if count != 2 {
		t.Fatalf("expected 2 live entries, got %d (%q)", count, listing)
	}
	if strings.Contains(listing, "a ") {
		t.Fatalf("did not expect destroyed name to reappear: %q", listing)
	}
	if strings.TrimSpace(listing) != "c 0 b 0" {
		t.Fatalf("expected c to take a's freed first slot, got %q", listing)
	}
}
