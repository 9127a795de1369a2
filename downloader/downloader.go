// Package downloader implements the immutable-file fetch/verify/decode
// pipeline: server discovery for a storage-index, UEB retrieval and
// validation, per-segment k-of-n share fetch with hash-chain verification,
// erasure decode, and AES-CTR decryption. No byte it returns has skipped a
// verified hash chain rooted in the UEB the caller's readcap names.
package downloader

import (
	"github.com/NebulousLabs/errors"

	"github.com/dreamware/brightvault/capability"
	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/erasure"
	"github.com/dreamware/brightvault/merkle"
	"github.com/dreamware/brightvault/share"
)

// UnrecoverableFileError is returned when fewer than k distinct valid
// shares remain after evicting every share that failed integrity.
type UnrecoverableFileError struct {
	Needed, Have int
	Err          error
}

func (e UnrecoverableFileError) Error() string {
	return errors.AddContext(e.Err, "file unrecoverable: not enough valid shares").Error()
}

// Server is the subset of the storage-server RPC table the downloader
// needs: random access into whatever shares a server holds for si.
type Server interface {
	ID() string
	GetShare(si crypto.StorageIndex, shareNum int) ([]byte, bool)
}

// Download fetches, verifies and decodes the file named by cap, which must
// be a CHK or LIT capability. A LIT capability's LiteralData is returned
// directly without contacting any server; any other Kind is rejected.
func Download(cap capability.Capability, servers []Server) ([]byte, error) {
	if cap.Kind == capability.KindLIT {
		return cap.LiteralData, nil
	}
	if cap.Kind != capability.KindCHK {
		return nil, errors.New("downloader: capability is not a CHK readcap")
	}

	var readkey [crypto.WriteKeySize]byte
	copy(readkey[:], cap.Primary)
	var uebHash crypto.Hash
	copy(uebHash[:], cap.Secondary)
	si := crypto.StorageIndexFromReadKey(readkey)

	ueb, err := fetchAndVerifyUEB(si, uebHash, servers)
	if err != nil {
		return nil, err
	}

	coder, err := erasure.NewCoder(int(ueb.K), int(ueb.N))
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, 0, ueb.Size)
	for segIdx := uint64(0); segIdx < ueb.NumSegments; segIdx++ {
		segLen := int(ueb.SegmentSize)
		if segIdx == ueb.NumSegments-1 {
			segLen = int(ueb.TailSegmentSize)
		}
		ct, err := fetchAndDecodeSegment(si, int(segIdx), segLen, ueb, coder, servers)
		if err != nil {
			return nil, err
		}
		cipherKey := crypto.CipherKey(readkey)
		pt := cipherKey.DecryptBytes(ct)
		plaintext = append(plaintext, pt...)
	}

	return plaintext, nil
}

// fetchAndVerifyUEB asks every candidate server for any one share, reads
// its UEB section, and accepts the first one whose hash matches uebHash.
func fetchAndVerifyUEB(si crypto.StorageIndex, uebHash crypto.Hash, servers []Server) (share.UEB, error) {
	var failures error
	for _, srv := range servers {
		for shareNum := 0; shareNum < 256; shareNum++ {
			raw, ok := srv.GetShare(si, shareNum)
			if !ok {
				continue
			}
			layout, err := share.DecodeImmutableHeader(raw)
			if err != nil {
				failures = errors.Compose(failures, err)
				continue
			}
			uebBytes, err := sliceSection(raw, layout.UEBOffset, layout.UEBLength)
			if err != nil {
				failures = errors.Compose(failures, err)
				continue
			}
			if crypto.UEBHash(uebBytes) != uebHash {
				failures = errors.Compose(failures, errors.New("UEB hash mismatch from server "+srv.ID()))
				continue
			}
			ueb, err := share.DecodeUEB(uebBytes)
			if err != nil {
				failures = errors.Compose(failures, err)
				continue
			}
			return ueb, nil
		}
	}
	return share.UEB{}, UnrecoverableFileError{Needed: 1, Have: 0, Err: failures}
}

func sliceSection(raw []byte, offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(raw)) {
		return nil, share.IntegrityError{Reason: "section extends past end of share"}
	}
	return raw[offset : offset+length], nil
}

// fetchAndDecodeSegment gathers k valid blocks for segment segIdx, evicting
// any share that fails header parsing, hash-chain verification, or a
// UEB-root mismatch, and decodes them into the segment's ciphertext.
func fetchAndDecodeSegment(si crypto.StorageIndex, segIdx, segLen int, ueb share.UEB, coder *erasure.Coder, servers []Server) ([]byte, error) {
	present := make([][]byte, ueb.N)
	have := 0
	var failures error

	for shareNum := 0; shareNum < int(ueb.N) && have < int(ueb.K); shareNum++ {
		block, ok := fetchVerifiedBlock(si, shareNum, segIdx, ueb, coder, servers, &failures)
		if !ok {
			continue
		}
		present[shareNum] = block
		have++
	}

	if have < int(ueb.K) {
		return nil, UnrecoverableFileError{Needed: int(ueb.K), Have: have, Err: failures}
	}

	return coder.Decode(present, segLen)
}

// segmentByteRange returns [start, end) of segIdx's block within a share's
// concatenated data section. Every segment but the last erasure-codes to
// BlockSize(SegmentSize) bytes; the last uses BlockSize(TailSegmentSize),
// which is usually smaller -- so offsets must be accumulated rather than
// computed by uniform division.
func segmentByteRange(segIdx int, ueb share.UEB, coder *erasure.Coder) (start, end int) {
	full := coder.BlockSize(int(ueb.SegmentSize))
	start = segIdx * full
	if segIdx == int(ueb.NumSegments)-1 {
		end = start + coder.BlockSize(int(ueb.TailSegmentSize))
	} else {
		end = start + full
	}
	return start, end
}

// fetchVerifiedBlock asks every server in turn for shareNum until one
// produces a block for segIdx whose block-hash and share-hash-chain both
// check out against the UEB's roots.
func fetchVerifiedBlock(si crypto.StorageIndex, shareNum, segIdx int, ueb share.UEB, coder *erasure.Coder, servers []Server, failures *error) ([]byte, bool) {
	for _, srv := range servers {
		raw, ok := srv.GetShare(si, shareNum)
		if !ok {
			continue
		}
		block, err := verifyAndExtractBlock(raw, shareNum, segIdx, ueb, coder)
		if err != nil {
			*failures = errors.Compose(*failures, errors.AddContext(err, "server "+srv.ID()))
			continue
		}
		return block, true
	}
	return nil, false
}

func verifyAndExtractBlock(raw []byte, shareNum, segIdx int, ueb share.UEB, coder *erasure.Coder) ([]byte, error) {
	layout, err := share.DecodeImmutableHeader(raw)
	if err != nil {
		return nil, err
	}

	blockHashBytes, err := sliceSection(raw, layout.BlockHashTreeOffset, layout.BlockHashTreeLength)
	if err != nil {
		return nil, err
	}
	blockLeaves, err := share.DecodeHashChain(blockHashBytes)
	if err != nil {
		return nil, err
	}
	leafHashes := make([]crypto.Hash, len(blockLeaves))
	for _, e := range blockLeaves {
		if int(e.Index) >= len(leafHashes) {
			return nil, share.IntegrityError{Reason: "block hash chain index out of range"}
		}
		leafHashes[e.Index] = e.Hash
	}
	blockTree := merkle.NewFromHashes(crypto.TagBlockHash, leafHashes)

	shareHashChainBytes, err := sliceSection(raw, layout.ShareHashChainOffset, layout.ShareHashChainLength)
	if err != nil {
		return nil, err
	}
	chainEntries, err := share.DecodeHashChain(shareHashChainBytes)
	if err != nil {
		return nil, err
	}
	chain := make([]crypto.Hash, len(chainEntries))
	for i, e := range chainEntries {
		chain[i] = e.Hash
	}
	if !merkle.VerifyHashed(crypto.TagShareHash, blockTree.Root(), chain, shareNum, int(ueb.N), ueb.ShareHashRoot) {
		return nil, share.IntegrityError{Reason: "share-hash-chain does not verify against UEB share-hash root"}
	}

	start, end := segmentByteRange(segIdx, ueb, coder)
	if end > int(layout.DataLength) || start > end {
		return nil, share.IntegrityError{Reason: "segment index out of range for share data"}
	}
	block := raw[int(layout.DataOffset)+start : int(layout.DataOffset)+end]

	if segIdx >= len(leafHashes) {
		return nil, share.IntegrityError{Reason: "segment index out of range for block hash tree"}
	}
	if crypto.TaggedHash(crypto.TagBlockHash, block) != leafHashes[segIdx] {
		return nil, share.IntegrityError{Reason: "block hash mismatch"}
	}

	return append([]byte(nil), block...), nil
}
