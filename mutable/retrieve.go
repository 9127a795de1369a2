package mutable

import (
	"github.com/NebulousLabs/errors"

	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/erasure"
	"github.com/dreamware/brightvault/merkle"
	"github.com/dreamware/brightvault/share"
)

// UnrecoverableFileError is returned when no (seqnum, root-hash) group has
// at least k validly-signed shares, or when more than one such group is
// found at the highest seqnum (an uncoordinated write).
type UnrecoverableFileError struct {
	Reason string
}

func (e UnrecoverableFileError) Error() string { return "mutable file unrecoverable: " + e.Reason }

type versionKey struct {
	seqnum   uint64
	rootHash crypto.Hash
}

type versionGroup struct {
	prefix  share.SignedPrefix
	shares  map[int]share.MutableShare
	servers map[int]string
}

// Retrieve reads the highest-seqnum recoverable version of the mutable
// file named by id and returns its plaintext contents along with the
// seqnum it was retrieved at.
func Retrieve(id Identity, k, n int, servers []Server) ([]byte, uint64, error) {
	si := id.StorageIndex()
	groups, err := gatherVersions(si, n, servers)
	if err != nil {
		return nil, 0, err
	}

	best, bestKey, tie, err := pickHighestRecoverable(groups, k, id.PublicKey)
	if err != nil {
		return nil, 0, err
	}
	if tie {
		return nil, 0, UnrecoverableFileError{Reason: "uncoordinated write: multiple root-hashes at the same seqnum"}
	}

	plaintext, err := decodeGroup(best, k, n, id.Readkey)
	if err != nil {
		return nil, 0, err
	}
	return plaintext, bestKey.seqnum, nil
}

func gatherVersions(si crypto.StorageIndex, n int, servers []Server) (map[versionKey]*versionGroup, error) {
	groups := make(map[versionKey]*versionGroup)
	var failures error
	for _, srv := range servers {
		for shareNum := 0; shareNum < n; shareNum++ {
			ms, ok, err := srv.ReadFullSlot(si, shareNum)
			if err != nil {
				failures = errors.Compose(failures, errors.AddContext(err, "server "+srv.ID()))
				continue
			}
			if !ok {
				continue
			}
			key := versionKey{seqnum: ms.Seqnum, rootHash: ms.RootHash}
			g, ok := groups[key]
			if !ok {
				g = &versionGroup{prefix: ms.SignedPrefix, shares: make(map[int]share.MutableShare), servers: make(map[int]string)}
				groups[key] = g
			}
			g.shares[shareNum] = ms
			g.servers[shareNum] = srv.ID()
		}
	}
	if len(groups) == 0 {
		return nil, UnrecoverableFileError{Reason: errors.AddContext(failures, "no servers returned a slot").Error()}
	}
	return groups, nil
}

// pickHighestRecoverable finds the highest seqnum for which at least one
// (seqnum, root-hash) group has >= k validly-signed shares. tie reports
// whether more than one root-hash shares that same highest seqnum.
func pickHighestRecoverable(groups map[versionKey]*versionGroup, k int, pub crypto.PublicKey) (*versionGroup, versionKey, bool, error) {
	var bestKey versionKey
	var best *versionGroup
	found := false
	atBestSeqnum := 0

	for key, g := range groups {
		if !validSignature(g.prefix, pub, representativeSignature(g)) {
			continue
		}
		if len(g.shares) < k {
			continue
		}
		switch {
		case !found || key.seqnum > bestKey.seqnum:
			bestKey, best, found, atBestSeqnum = key, g, true, 1
		case key.seqnum == bestKey.seqnum:
			atBestSeqnum++
		}
	}

	if !found {
		return nil, versionKey{}, false, UnrecoverableFileError{Reason: "no version has k shares with a valid signature"}
	}
	return best, bestKey, atBestSeqnum > 1, nil
}

func representativeSignature(g *versionGroup) crypto.Signature {
	for _, ms := range g.shares {
		return ms.Signature
	}
	return crypto.Signature{}
}

func validSignature(prefix share.SignedPrefix, pub crypto.PublicKey, sig crypto.Signature) bool {
	return crypto.VerifyHash(prefix.Digest(), pub, sig) == nil
}

func decodeGroup(g *versionGroup, k, n int, readkey [crypto.WriteKeySize]byte) ([]byte, error) {
	coder, err := erasure.NewCoder(k, n)
	if err != nil {
		return nil, err
	}

	present := make([][]byte, n)
	have := 0
	for shareNum, ms := range g.shares {
		if !verifyMutableShare(ms, g.prefix.RootHash, shareNum, n) {
			continue
		}
		present[shareNum] = ms.ShareData
		have++
	}
	if have < k {
		return nil, UnrecoverableFileError{Reason: "fewer than k shares pass hash-chain verification"}
	}

	decoded, err := coder.Decode(present, int(g.prefix.EncodingParams.DataLength))
	if err != nil {
		return nil, err
	}

	cipherKey := crypto.CipherKey(readkey)
	return cipherKey.DecryptBytes(decoded), nil
}

func verifyMutableShare(ms share.MutableShare, rootHash crypto.Hash, shareNum, n int) bool {
	leaves, err := share.DecodeHashChain(ms.BlockHashTree)
	if err != nil || len(leaves) != 1 {
		return false
	}
	blockRoot := leaves[0].Hash
	blockTree := merkle.New(crypto.TagBlockHash, [][]byte{ms.ShareData})
	if blockTree.Root() != blockRoot {
		return false
	}

	chain := make([]crypto.Hash, len(ms.ShareHashChain))
	for i, e := range ms.ShareHashChain {
		chain[i] = e.Hash
	}
	return merkle.VerifyHashed(crypto.TagShareHash, blockRoot, chain, shareNum, n, rootHash)
}
