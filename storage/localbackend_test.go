package storage

import (
	"bytes"
	"testing"

	"github.com/dreamware/brightvault/build"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(build.TempDir("storage", "backend", t.Name()))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	return b
}

func TestLocalBackendImmutableShareLifecycle(t *testing.T) {
	b := newTestBackend(t)
	si := testSI(10)

	if b.HasImmutableShare(si, 0) {
		t.Fatalf("expected no share before creation")
	}

	w, err := b.CreateImmutableShare(si, 0, 32)
	if err != nil {
		t.Fatalf("CreateImmutableShare: %v", err)
	}
	if err := w.WriteAt(0, []byte("hello, immutable share")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !b.HasImmutableShare(si, 0) {
		t.Fatalf("expected share to exist after close")
	}
	if _, err := b.CreateImmutableShare(si, 0, 32); err == nil {
		t.Fatalf("expected ErrShareExists on duplicate create")
	}

	r, size, err := b.OpenImmutableShare(si, 0)
	if err != nil {
		t.Fatalf("OpenImmutableShare: %v", err)
	}
	if size != 32 {
		t.Fatalf("expected size 32, got %d", size)
	}
	got := make([]byte, len("hello, immutable share"))
	if _, err := r.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, []byte("hello, immutable share")) {
		t.Fatalf("contents mismatch: got %q", got)
	}

	nums := b.ImmutableShareNumbers(si)
	if len(nums) != 1 || nums[0] != 0 {
		t.Fatalf("expected [0], got %v", nums)
	}
}

func TestLocalBackendMutableSlotRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	si := testSI(11)

	if _, err := b.ReadSlot(si, 0); err == nil {
		t.Fatalf("expected ErrNoSuchSlot for unwritten slot")
	}

	if err := b.WriteSlotAtomic(si, 0, []byte("first version")); err != nil {
		t.Fatalf("WriteSlotAtomic: %v", err)
	}
	data, err := b.ReadSlot(si, 0)
	if err != nil {
		t.Fatalf("ReadSlot: %v", err)
	}
	if string(data) != "first version" {
		t.Fatalf("expected %q, got %q", "first version", data)
	}

	if err := b.WriteSlotAtomic(si, 0, []byte("second")); err != nil {
		t.Fatalf("WriteSlotAtomic overwrite: %v", err)
	}
	data, err = b.ReadSlot(si, 0)
	if err != nil {
		t.Fatalf("ReadSlot after overwrite: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected overwritten contents %q, got %q", "second", data)
	}

	nums := b.SlotShareNumbers(si)
	if len(nums) != 1 || nums[0] != 0 {
		t.Fatalf("expected [0], got %v", nums)
	}
}

func TestLocalBackendShareNumbersAreIsolatedPerIndex(t *testing.T) {
	b := newTestBackend(t)
	siA, siB := testSI(20), testSI(21)

	if err := b.WriteSlotAtomic(siA, 0, []byte("a")); err != nil {
		t.Fatalf("WriteSlotAtomic: %v", err)
	}
	if nums := b.SlotShareNumbers(siB); len(nums) != 0 {
		t.Fatalf("expected no slots under an untouched storage index, got %v", nums)
	}
}
