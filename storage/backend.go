// Package storage implements the storage-server side of the protocol: the
// bucket allocate/write/read/close calls used by immutable uploads and
// downloads, the lease bookkeeping that lets a share expire, and the
// test-and-set slot operation that is the system's sole concurrency
// primitive for mutable files. None of it assumes a particular transport;
// StorageServer's methods take plain Go arguments and are meant to be
// mounted behind whatever RPC framing a caller wants (net/rpc, grpc, an
// in-process call from a client test).
package storage

import (
	"io"

	"github.com/dreamware/brightvault/crypto"
)

// Backend is the pluggable contract a share-storage implementation (local
// filesystem, S3, Azure blob, OpenStack Swift) must satisfy. Shares persist
// as opaque byte containers keyed by (storage-index, share-number); the
// backend owns atomic whole-share writes for mutable slots and append-only
// chunked writes for immutable allocation. An eventually-consistent backend
// (most object stores) must serialize reads-after-writes per key itself --
// StorageServer only serializes at storage-index granularity, not within
// the backend.
type Backend interface {
	// CreateImmutableShare allocates storage for a new immutable share of
	// at most maxSize bytes and returns a writer for it. It is an error to
	// call CreateImmutableShare for a share that already exists; the caller
	// (AllocateBuckets) is responsible for checking HasImmutableShare first
	// and reporting it in already_have instead.
	CreateImmutableShare(si crypto.StorageIndex, shareNum int, maxSize uint64) (ImmutableWriter, error)

	// OpenImmutableShare returns a random-access reader over a share
	// previously created (and closed) by CreateImmutableShare, plus its
	// current size in bytes.
	OpenImmutableShare(si crypto.StorageIndex, shareNum int) (io.ReaderAt, int64, error)

	// HasImmutableShare reports whether a closed immutable share already
	// exists for (si, shareNum).
	HasImmutableShare(si crypto.StorageIndex, shareNum int) bool

	// ImmutableShareNumbers lists the share numbers held for si.
	ImmutableShareNumbers(si crypto.StorageIndex) []int

	// ReadSlot returns the raw bytes of a mutable slot, or ErrNoSuchSlot if
	// none has ever been written for (si, shareNum).
	ReadSlot(si crypto.StorageIndex, shareNum int) ([]byte, error)

	// WriteSlotAtomic overwrites a mutable slot's entire contents in one
	// atomic operation. It is the backend's only write primitive for
	// mutable data; there is no partial/offset write for slots.
	WriteSlotAtomic(si crypto.StorageIndex, shareNum int, data []byte) error

	// SlotShareNumbers lists the share numbers with a mutable slot written
	// for si.
	SlotShareNumbers(si crypto.StorageIndex) []int
}

// ImmutableWriter is the append-only write handle CreateImmutableShare
// returns. Writes before Close are not guaranteed visible to readers;
// after Close, the share is immutable for the rest of its life.
type ImmutableWriter interface {
	WriteAt(offset int64, p []byte) error
	Close() error
}

// ErrNoSuchSlot is returned by ReadSlot when no mutable slot has been
// written yet for the requested (storage-index, share-number).
type ErrNoSuchSlot struct{}

func (ErrNoSuchSlot) Error() string { return "storage: no such mutable slot" }

// ErrShareExists is returned when a caller tries to create an immutable
// share that a backend already holds.
type ErrShareExists struct{}

func (ErrShareExists) Error() string { return "storage: immutable share already exists" }
