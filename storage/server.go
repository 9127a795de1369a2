package storage

import (
	"io"
	"sync"
	"time"

	"github.com/dreamware/brightvault/crypto"
)

// StorageServer is the RPC surface a storage node exposes: bucket
// allocation and lease management for immutable shares, and the single
// test-and-set primitive mutable files rely on for coordination. Every
// method is safe for concurrent use; operations on distinct storage
// indices proceed fully in parallel, while operations on the same index
// are serialized against each other so a racing pair of writers can't
// interleave a read and a write of the same slot.
type StorageServer struct {
	backend Backend
	clock   func() time.Time

	mu        sync.Mutex
	perIndex  map[crypto.StorageIndex]*sync.Mutex
	leases    map[crypto.StorageIndex]map[int]*leaseSet
	leasePeriod time.Duration
}

// NewStorageServer wraps a Backend with the RPC table described by the
// protocol, defaulting the lease period to DefaultLeasePeriod.
func NewStorageServer(backend Backend) *StorageServer {
	return &StorageServer{
		backend:     backend,
		clock:       time.Now,
		perIndex:    make(map[crypto.StorageIndex]*sync.Mutex),
		leases:      make(map[crypto.StorageIndex]map[int]*leaseSet),
		leasePeriod: DefaultLeasePeriod,
	}
}

func (s *StorageServer) indexLock(si crypto.StorageIndex) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.perIndex[si]
	if !ok {
		l = &sync.Mutex{}
		s.perIndex[si] = l
	}
	return l
}

func (s *StorageServer) leaseSetFor(si crypto.StorageIndex, shareNum int) *leaseSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShare, ok := s.leases[si]
	if !ok {
		byShare = make(map[int]*leaseSet)
		s.leases[si] = byShare
	}
	ls, ok := byShare[shareNum]
	if !ok {
		ls = newLeaseSet()
		byShare[shareNum] = ls
	}
	return ls
}

// AllocateResult is the response to AllocateBuckets: which requested share
// numbers the server already holds (the client can skip uploading these --
// this is the already_have path that makes convergent re-uploads cheap),
// and which ones it has allocated fresh write buckets for.
type AllocateResult struct {
	AlreadyHave []int
	Allocated   map[int]ImmutableWriter
}

// AllocateBuckets implements the allocate_buckets RPC: for each requested
// share number, report it as already-held or open a fresh write bucket of
// maxSize bytes for it. A lease covering renewSecret/cancelSecret is
// installed (or renewed) for every share named, whether freshly allocated
// or already present, matching the protocol's "allocate implies lease"
// convention.
func (s *StorageServer) AllocateBuckets(si crypto.StorageIndex, shareNums []int, maxSize uint64, renewSecret, cancelSecret crypto.Hash) (AllocateResult, error) {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()

	res := AllocateResult{Allocated: make(map[int]ImmutableWriter)}
	now := s.clock()
	for _, num := range shareNums {
		s.leaseSetFor(si, num).Add(renewSecret, cancelSecret, now, s.leasePeriod)
		if s.backend.HasImmutableShare(si, num) {
			res.AlreadyHave = append(res.AlreadyHave, num)
			continue
		}
		w, err := s.backend.CreateImmutableShare(si, num, maxSize)
		if err != nil {
			return AllocateResult{}, err
		}
		res.Allocated[num] = w
	}
	return res, nil
}

// GetBuckets implements the get_buckets RPC: readers for every share
// number the server holds for si.
func (s *StorageServer) GetBuckets(si crypto.StorageIndex) (map[int]BucketReader, error) {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()

	out := make(map[int]BucketReader)
	for _, num := range s.backend.ImmutableShareNumbers(si) {
		r, size, err := s.backend.OpenImmutableShare(si, num)
		if err != nil {
			return nil, err
		}
		out[num] = BucketReader{Reader: r, Size: size}
	}
	return out, nil
}

// BucketReader is a random-access handle onto one immutable share, as
// returned by get_buckets.
type BucketReader struct {
	Reader io.ReaderAt
	Size   int64
}

// AddLease installs or renews a lease on an already-allocated share. It is
// the RPC a client calls on its own schedule to keep a share from being
// garbage collected, independent of any upload activity.
func (s *StorageServer) AddLease(si crypto.StorageIndex, shareNum int, renewSecret, cancelSecret crypto.Hash) {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()
	s.leaseSetFor(si, shareNum).Add(renewSecret, cancelSecret, s.clock(), s.leasePeriod)
}

// RenewLease implements the renew_lease RPC.
func (s *StorageServer) RenewLease(si crypto.StorageIndex, shareNum int, renewSecret crypto.Hash) error {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()
	return s.leaseSetFor(si, shareNum).Renew(renewSecret, s.clock(), s.leasePeriod)
}

// CancelLease implements the cancel_lease RPC.
func (s *StorageServer) CancelLease(si crypto.StorageIndex, shareNum int, cancelSecret crypto.Hash) error {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()
	return s.leaseSetFor(si, shareNum).Cancel(cancelSecret)
}

// TestVector is one entry of a testv_and_readv_and_writev test vector: the
// slot must contain expected at [offset, offset+len(expected)) for the
// whole operation to proceed as a write; otherwise it degrades to a
// read-only probe.
type TestVector struct {
	Offset   int
	Expected []byte
}

// WriteVector describes a whole-slot replacement. Mutable slots have no
// partial-write primitive at the backend layer, so Data must be the
// complete new contents of the share.
type WriteVector struct {
	Data []byte
}

// TestWriteResult is the outcome of TestvAndReadvAndWritev: whether the
// test vectors passed (and so the write was applied), plus the prior
// contents of every share named in the read vector, read before any write
// took effect.
type TestWriteResult struct {
	TestPassed bool
	Reads      map[int][]byte
}

// TestvAndReadvAndWritev implements the protocol's sole mutable-file
// coordination primitive. For each share number present in tests, the
// corresponding TestVector is checked against the slot's current bytes;
// if every test passes, every entry in writev is applied as a whole-slot
// replacement. Reads (of readv's share numbers) are always taken before
// any write, whether or not the test passed, so a caller can tell what
// the prior value was even on a failed test -- this is what lets a
// publisher detect UncoordinatedWriteError and retry against the version
// actually on disk.
func (s *StorageServer) TestvAndReadvAndWritev(si crypto.StorageIndex, tests map[int]TestVector, writev map[int]WriteVector, readv []int) (TestWriteResult, error) {
	lock := s.indexLock(si)
	lock.Lock()
	defer lock.Unlock()

	passed := true
	for num, tv := range tests {
		cur, err := s.backend.ReadSlot(si, num)
		if err != nil {
			if _, ok := err.(ErrNoSuchSlot); ok {
				cur = nil
			} else {
				return TestWriteResult{}, err
			}
		}
		if !testVectorMatches(cur, tv) {
			passed = false
		}
	}

	reads := make(map[int][]byte, len(readv))
	for _, num := range readv {
		cur, err := s.backend.ReadSlot(si, num)
		if err != nil {
			if _, ok := err.(ErrNoSuchSlot); ok {
				cur = nil
			} else {
				return TestWriteResult{}, err
			}
		}
		reads[num] = cur
	}

	if passed {
		for num, wv := range writev {
			if err := s.backend.WriteSlotAtomic(si, num, wv.Data); err != nil {
				return TestWriteResult{}, err
			}
		}
	}

	return TestWriteResult{TestPassed: passed, Reads: reads}, nil
}

func testVectorMatches(current []byte, tv TestVector) bool {
	if tv.Offset < 0 {
		return false
	}
	end := tv.Offset + len(tv.Expected)
	if len(tv.Expected) == 0 {
		// An empty expected value tests for an empty (nonexistent) slot.
		return len(current) == 0
	}
	if end > len(current) {
		return false
	}
	for i, b := range tv.Expected {
		if current[tv.Offset+i] != b {
			return false
		}
	}
	return true
}
