// Package mutable implements the SDMF publish/retrieve/repair protocol:
// versioned slots coordinated by a monotonically increasing sequence
// number, signed by the file's Ed25519 key, erasure-coded and Merkle-
// verified the same way an immutable file's segments are.
package mutable

import (
	"github.com/NebulousLabs/errors"

	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/erasure"
	"github.com/dreamware/brightvault/merkle"
	"github.com/dreamware/brightvault/share"
)

// MaxPublishAttempts bounds how many times Publish will recompute new_seq
// and retry after losing a race with another writer before giving up with
// UncoordinatedWriteError.
const MaxPublishAttempts = 7

// UncoordinatedWriteError is returned when Publish cannot win a quorum of
// servers within MaxPublishAttempts because another writer kept winning
// the race. WinningSeqnum is the highest seqnum a server reported on a
// failed test across all attempts.
type UncoordinatedWriteError struct {
	WinningSeqnum uint64
	Err           error
}

func (e UncoordinatedWriteError) Error() string {
	return errors.AddContext(e.Err, "uncoordinated write").Error()
}

// Identity is everything Publish/Retrieve need to know about one mutable
// file's signing key.
type Identity struct {
	SecretKey crypto.SecretKey
	PublicKey crypto.PublicKey
	Readkey   [crypto.WriteKeySize]byte
}

// StorageIndex derives the file's storage-index from its public key.
func (id Identity) StorageIndex() crypto.StorageIndex {
	return crypto.StorageIndexFromPublicKey(crypto.HashObject(id.PublicKey))
}

// Server is the subset of the storage-server slot RPC a publish/retrieve
// needs.
type Server interface {
	ID() string
	ReadSlotHeader(si crypto.StorageIndex, shareNum int) (share.SignedPrefix, bool, error)
	ReadFullSlot(si crypto.StorageIndex, shareNum int) (share.MutableShare, bool, error)
	TestAndWriteSlot(si crypto.StorageIndex, shareNum int, oldSeqnum uint64, newShare share.MutableShare) (bool, uint64, error)
}

// Publish writes a new version of contents to the mutable file named by
// id, retrying with a recomputed sequence number whenever it loses a race
// against a concurrent writer.
func Publish(id Identity, contents []byte, k, n, happy int, servers []Server) (uint64, error) {
	si := id.StorageIndex()

	var lastWinner uint64
	var lastErr error
	for attempt := 0; attempt < MaxPublishAttempts; attempt++ {
		seqnum, observedMax, err := nextSeqnum(si, servers)
		if err != nil {
			lastErr = err
		}

		encShares, rootHash, err := encodeVersion(id, contents, k, n, seqnum)
		if err != nil {
			return 0, err
		}

		ackedServers := make(map[string]bool)
		var failures error
		for shareNum, ms := range encShares {
			for _, srv := range serversFor(shareNum, servers) {
				ok, srvSeqnum, err := srv.TestAndWriteSlot(si, shareNum, observedMax, ms)
				if err != nil {
					failures = errors.Compose(failures, errors.AddContext(err, "server "+srv.ID()))
					continue
				}
				if ok {
					ackedServers[srv.ID()] = true
					break
				}
				if srvSeqnum > lastWinner {
					lastWinner = srvSeqnum
				}
			}
		}

		if len(ackedServers) >= happy {
			return seqnum, nil
		}
		lastErr = errors.Compose(lastErr, failures)
	}

	return 0, UncoordinatedWriteError{WinningSeqnum: lastWinner, Err: lastErr}
}

// serversFor returns the servers a given share number should be written to,
// in preference order: it rotates the server list by shareNum so that
// consecutive share numbers prefer distinct servers first, falling back to
// the rest of the list only if the preferred server refuses. This is what
// lets acked servers (not just acked attempts) spread across the happy
// count instead of piling every share onto servers[0].
func serversFor(shareNum int, servers []Server) []Server {
	if len(servers) == 0 {
		return nil
	}
	rotated := make([]Server, len(servers))
	offset := shareNum % len(servers)
	for i := range servers {
		rotated[i] = servers[(offset+i)%len(servers)]
	}
	return rotated
}

// nextSeqnum reads the current seqnum from every reachable server's slot
// header and returns one past the highest seen, plus that highest value
// itself (used as the test-vector's expected old value).
func nextSeqnum(si crypto.StorageIndex, servers []Server) (next, observedMax uint64, err error) {
	var failures error
	seen := false
	for _, srv := range servers {
		prefix, ok, rerr := srv.ReadSlotHeader(si, 0)
		if rerr != nil {
			failures = errors.Compose(failures, rerr)
			continue
		}
		if !ok {
			continue
		}
		seen = true
		if prefix.Seqnum > observedMax {
			observedMax = prefix.Seqnum
		}
	}
	if !seen {
		return 1, 0, failures
	}
	return observedMax + 1, observedMax, failures
}

// encodeVersion erasure-codes, trees, and signs one version of a mutable
// file's contents, returning the per-share container ready to write.
func encodeVersion(id Identity, contents []byte, k, n int, seqnum uint64) (map[int]share.MutableShare, crypto.Hash, error) {
	coder, err := erasure.NewCoder(k, n)
	if err != nil {
		return nil, crypto.Hash{}, err
	}

	cipherKey := crypto.CipherKey(id.Readkey)
	ct := cipherKey.EncryptBytes(contents)
	blocks, err := coder.Encode(ct)
	if err != nil {
		return nil, crypto.Hash{}, err
	}

	blockRoots := make([]crypto.Hash, n)
	blockTrees := make([]*merkle.Tree, n)
	for i, b := range blocks {
		blockTrees[i] = merkle.New(crypto.TagBlockHash, [][]byte{b})
		blockRoots[i] = blockTrees[i].Root()
	}
	shareTree := merkle.NewFromHashes(crypto.TagShareHash, blockRoots)

	params := share.EncodingParams{K: uint16(k), N: uint16(n), SegmentSize: uint64(len(contents)), DataLength: uint64(len(contents))}
	prefix := share.SignedPrefix{Seqnum: seqnum, RootHash: shareTree.Root(), EncodingParams: params}
	sig, err := crypto.SignHash(prefix.Digest(), id.SecretKey)
	if err != nil {
		return nil, crypto.Hash{}, err
	}

	encPrivkey := cipherKey.EncryptBytes(id.SecretKey[:])

	out := make(map[int]share.MutableShare, n)
	for i, b := range blocks {
		chain, err := shareTree.NeededHashes(i)
		if err != nil {
			return nil, crypto.Hash{}, err
		}
		entries := make([]share.HashChainEntry, len(chain))
		for j, h := range chain {
			entries[j] = share.HashChainEntry{Index: uint64(j), Hash: h}
		}
		out[i] = share.MutableShare{
			SignedPrefix:   prefix,
			Signature:      sig,
			EncPrivkey:     []byte(encPrivkey),
			ShareHashChain: entries,
			BlockHashTree:  encodeSingleLeaf(blockTrees[i].Root()),
			ShareData:      b,
		}
	}
	return out, shareTree.Root(), nil
}

func encodeSingleLeaf(h crypto.Hash) []byte {
	return share.EncodeHashChain([]share.HashChainEntry{{Index: 0, Hash: h}})
}
