package bitmap

import (
	"testing"

	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/fserr"
	"github.com/rtprakash/minifs/layout"
)

func freshBitmap(t *testing.T) (*Bitmap, *block.Device) {
	t.Helper()
	dev := block.New()
	bm, err := Load(dev)
	if err != nil {
		t.Fatal("unexpected error", err)
	}
	bm.Format()
	return bm, dev
}

func TestFormatReservesBootBlocks(t *testing.T) {
	bm, _ := freshBitmap(t)

	for i := 0; i < reservedThrough; i++ {
		if !bm.Test(i) {
			t.Fatalf("expected block %d to be reserved", i)
		}
	}

	if bm.Test(reservedThrough) {
		t.Fatalf("expected block %d to be free", reservedThrough)
	}
}

func TestAcquireSkipsReservedRange(t *testing.T) {
	bm, _ := freshBitmap(t)

	got, err := bm.Acquire()
	if err != nil {
		t.Fatal("unexpected error", err)
	}
	if got != reservedThrough {
		t.Fatalf("expected first-fit to return %d, got %d", reservedThrough, got)
	}
	if !bm.Test(got) {
		t.Fatal("expected acquired block to be marked used")
	}
}

func TestAcquireFirstFitAfterRelease(t *testing.T) {
	bm, _ := freshBitmap(t)

	a, _ := bm.Acquire()
	b, _ := bm.Acquire()
	if b != a+1 {
		t.Fatalf("expected sequential first-fit, got %d then %d", a, b)
	}

	bm.Release(a)

	c, err := bm.Acquire()
	if err != nil {
		t.Fatal("unexpected error", err)
	}
	if c != a {
		t.Fatalf("expected released block %d to be reused first, got %d", a, c)
	}
}

func TestAcquireDiskFull(t *testing.T) {
	bm, _ := freshBitmap(t)

	for {
		if _, err := bm.Acquire(); err != nil {
			if err != fserr.ErrDiskFull {
				t.Fatal("expected disk-full sentinel", "got", err)
			}
			break
		}
	}
}

func TestReleaseOnAlreadyClearBitIsSafe(t *testing.T) {
	bm, _ := freshBitmap(t)
	bm.Release(reservedThrough + 3)
	bm.Release(reservedThrough + 3)
}

func TestFlushLoadRoundTrip(t *testing.T) {
	bm, dev := freshBitmap(t)

	acquired, _ := bm.Acquire()

	if err := bm.Flush(dev); err != nil {
		t.Fatal("unexpected error", err)
	}

	reloaded, err := Load(dev)
	if err != nil {
		t.Fatal("unexpected error", err)
	}

	if !reloaded.Test(acquired) {
		t.Fatal("expected flushed allocation to survive reload")
	}
	for i := 0; i < reservedThrough; i++ {
		if !reloaded.Test(i) {
			t.Fatalf("expected reserved block %d to survive reload", i)
		}
	}
}

func TestReservedThroughMatchesLayout(t *testing.T) {
	if reservedThrough != layout.FirstDataBlock+1 {
		t.Fatalf("reservedThrough drifted from layout: %d vs %d", reservedThrough, layout.FirstDataBlock+1)
	}
}
