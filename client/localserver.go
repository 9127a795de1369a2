package client

import (
	"encoding/binary"
	"io"
	"io/ioutil"

	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/peers"
	"github.com/dreamware/brightvault/share"
	"github.com/dreamware/brightvault/storage"
)

// LocalPeer adapts an in-process storage.StorageServer to the three
// narrow server interfaces the uploader, downloader and mutable packages
// each need. A deployment with a real transport would implement the same
// three interfaces against RPC calls instead; nothing upstream of this
// file needs to change to support that.
type LocalPeer struct {
	Ann    peers.Announcement
	Server *storage.StorageServer
}

func (p *LocalPeer) ID() string { return p.Ann.ServerID }

func (p *LocalPeer) PermutationSeed() [32]byte { return p.Ann.PermutationSeed }

// AllocateBuckets implements uploader.Server.
func (p *LocalPeer) AllocateBuckets(si crypto.StorageIndex, shareNums []int, maxSize uint64, renewSecret, cancelSecret crypto.Hash) (storage.AllocateResult, error) {
	return p.Server.AllocateBuckets(si, shareNums, maxSize, renewSecret, cancelSecret)
}

// GetShare implements downloader.Server: the whole of one immutable share,
// read in one call since the in-process backend has no partial-fetch cost
// worth pipelining.
func (p *LocalPeer) GetShare(si crypto.StorageIndex, shareNum int) ([]byte, bool) {
	buckets, err := p.Server.GetBuckets(si)
	if err != nil {
		return nil, false
	}
	r, ok := buckets[shareNum]
	if !ok {
		return nil, false
	}
	data, err := ioutil.ReadAll(io.NewSectionReader(r.Reader, 0, r.Size))
	if err != nil {
		return nil, false
	}
	return data, true
}

// ReadSlotHeader implements mutable.Server: a read-only probe of a slot's
// signed prefix, via a testv_and_readv_and_writev call with empty test and
// write vectors.
func (p *LocalPeer) ReadSlotHeader(si crypto.StorageIndex, shareNum int) (share.SignedPrefix, bool, error) {
	ms, ok, err := p.ReadFullSlot(si, shareNum)
	if err != nil || !ok {
		return share.SignedPrefix{}, ok, err
	}
	return ms.SignedPrefix, true, nil
}

// ReadFullSlot implements mutable.Server.
func (p *LocalPeer) ReadFullSlot(si crypto.StorageIndex, shareNum int) (share.MutableShare, bool, error) {
	res, err := p.Server.TestvAndReadvAndWritev(si, nil, nil, []int{shareNum})
	if err != nil {
		return share.MutableShare{}, false, err
	}
	raw := res.Reads[shareNum]
	if len(raw) == 0 {
		return share.MutableShare{}, false, nil
	}
	ms, err := share.DecodeMutableShare(raw)
	if err != nil {
		return share.MutableShare{}, false, err
	}
	return ms, true, nil
}

// TestAndWriteSlot implements mutable.Server. oldSeqnum 0 means "the slot
// must not yet exist"; the test vector is against the 8-byte seqnum field
// that leads every encoded MutableShare, per the protocol's
// offset-of-seqnum convention.
func (p *LocalPeer) TestAndWriteSlot(si crypto.StorageIndex, shareNum int, oldSeqnum uint64, newShare share.MutableShare) (bool, uint64, error) {
	var expected []byte
	if oldSeqnum != 0 {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], oldSeqnum)
		expected = b[:]
	}

	tests := map[int]storage.TestVector{shareNum: {Offset: 0, Expected: expected}}
	writev := map[int]storage.WriteVector{shareNum: {Data: newShare.Encode()}}
	res, err := p.Server.TestvAndReadvAndWritev(si, tests, writev, []int{shareNum})
	if err != nil {
		return false, 0, err
	}
	if res.TestPassed {
		return true, newShare.Seqnum, nil
	}

	raw := res.Reads[shareNum]
	if len(raw) < 8 {
		return false, 0, nil
	}
	return false, binary.BigEndian.Uint64(raw[:8]), nil
}

