// Package uploader implements the immutable-file encode/upload pipeline:
// segment buffering, convergent or random readkey derivation, AES-CTR
// encryption, Reed-Solomon coding, the four hash trees anchored in the UEB,
// peer selection, and the allocate/write/close sequence against a set of
// storage servers. It returns the file's readcap; nothing above this layer
// ever sees a share's raw bytes.
package uploader

import (
	"github.com/NebulousLabs/errors"

	"github.com/dreamware/brightvault/capability"
	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/erasure"
	"github.com/dreamware/brightvault/merkle"
	"github.com/dreamware/brightvault/peers"
	"github.com/dreamware/brightvault/share"
	"github.com/dreamware/brightvault/storage"
)

// DefaultSegmentSize is the default segment size: 128 KiB, a power of two
// as the protocol requires.
const DefaultSegmentSize = 128 * 1024

// LITThreshold is the largest file size emitted as a LIT capability instead
// of being erasure-coded and uploaded: the point past which a CHK URI is
// actually shorter than inlining the bytes.
const LITThreshold = 55

// NotEnoughSharesError is returned when fewer than happy distinct servers
// can be found to hold shares. Err composes every per-server failure
// encountered along the way, so a caller can see why each candidate was
// skipped rather than just the final count.
type NotEnoughSharesError struct {
	Happy, Placed int
	Err           error
}

func (e NotEnoughSharesError) Error() string {
	msg := errors.AddContext(e.Err, "upload failed: placed shares on too few servers")
	return msg.Error()
}

// Params configures one upload.
type Params struct {
	K, Happy, N int
	SegmentSize uint64

	// ConvergenceSecret, if non-nil, makes the readkey (and therefore the
	// capability and storage-index) a deterministic function of the
	// plaintext, so that two uploaders of the same file with the same
	// secret converge on the same shares. Nil means a random readkey.
	ConvergenceSecret []byte

	// Preferred servers are tried first, ahead of the permutation order.
	Preferred map[string]bool
}

// Server is the subset of the storage-server RPC table the uploader needs.
// A caller wires this to whatever transport carries the real allocate_
// buckets call; LocalServer below wires it directly to an in-process
// storage.StorageServer for tests and single-process deployments.
type Server interface {
	ID() string
	PermutationSeed() [32]byte
	AllocateBuckets(si crypto.StorageIndex, shareNums []int, maxSize uint64, renewSecret, cancelSecret crypto.Hash) (storage.AllocateResult, error)
}

// LocalServer adapts an in-process StorageServer to the Server interface.
type LocalServer struct {
	Server *storage.StorageServer
	Ann    peers.Announcement
}

func (l LocalServer) ID() string { return l.Ann.ServerID }

func (l LocalServer) PermutationSeed() [32]byte { return l.Ann.PermutationSeed }

func (l LocalServer) AllocateBuckets(si crypto.StorageIndex, shareNums []int, maxSize uint64, renewSecret, cancelSecret crypto.Hash) (storage.AllocateResult, error) {
	return l.Server.AllocateBuckets(si, shareNums, maxSize, renewSecret, cancelSecret)
}

// Upload encodes plaintext per p and disperses it across servers (tried in
// permutation order for storage-index si), returning the resulting
// capability.
func Upload(plaintext []byte, p Params, servers []Server) (capability.Capability, error) {
	if len(plaintext) <= LITThreshold {
		return capability.NewLIT(plaintext), nil
	}

	segmentSize := p.SegmentSize
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}

	plaintextHash := crypto.SHA256d(plaintext)
	readkey := deriveReadkey(plaintext, p, plaintextHash)

	segments := splitSegments(plaintext, segmentSize)
	cipherKey := crypto.CipherKey(readkey)

	coder, err := erasure.NewCoder(p.K, p.N)
	if err != nil {
		return capability.Capability{}, err
	}

	plaintextLeaves := make([][]byte, len(segments))
	crypttextLeaves := make([][]byte, len(segments))
	blocksByShare := make([][][]byte, p.N)
	for i := range blocksByShare {
		blocksByShare[i] = make([][]byte, len(segments))
	}

	for segIdx, seg := range segments {
		plaintextLeaves[segIdx] = append([]byte(nil), seg...)
		ct := cipherKey.EncryptBytes(seg)
		crypttextLeaves[segIdx] = []byte(ct)

		blocks, err := coder.Encode(ct)
		if err != nil {
			return capability.Capability{}, err
		}
		for shareNum, b := range blocks {
			blocksByShare[shareNum][segIdx] = b
		}
	}

	plaintextTree := merkle.New(crypto.TagPlaintextHash, plaintextLeaves)
	crypttextTree := merkle.New(crypto.TagCrypttextHash, crypttextLeaves)

	blockTrees := make([]*merkle.Tree, p.N)
	blockRoots := make([]crypto.Hash, p.N)
	for shareNum := range blockTrees {
		blockTrees[shareNum] = merkle.New(crypto.TagBlockHash, blocksByShare[shareNum])
		blockRoots[shareNum] = blockTrees[shareNum].Root()
	}
	shareHashTree := merkle.NewFromHashes(crypto.TagShareHash, blockRoots)

	tailLen := len(segments[len(segments)-1])
	ueb := share.UEB{
		K:                 uint16(p.K),
		N:                 uint16(p.N),
		SegmentSize:       segmentSize,
		TailSegmentSize:   uint64(tailLen),
		NumSegments:       uint64(len(segments)),
		Size:              uint64(len(plaintext)),
		ShareHashRoot:     shareHashTree.Root(),
		CrypttextHashRoot: crypttextTree.Root(),
		PlaintextHashRoot: plaintextTree.Root(),
	}
	uebBytes := ueb.Encode()
	uebHash := ueb.Hash()

	si := crypto.StorageIndexFromReadKey(readkey)

	placement, placeErr := placeShares(si, readkey, p, servers, blocksByShare, blockTrees, shareHashTree, plaintextLeaves, crypttextLeaves, uebBytes)
	if !peers.Happy(placement, p.Happy) {
		return capability.Capability{}, NotEnoughSharesError{Happy: p.Happy, Placed: peers.DistinctServers(placement), Err: placeErr}
	}

	return capability.NewCHK(readkey, uebHash, p.K, p.N, uint64(len(plaintext))), nil
}

func deriveReadkey(plaintext []byte, p Params, plaintextHash crypto.Hash) [crypto.WriteKeySize]byte {
	if p.ConvergenceSecret != nil {
		return crypto.ConvergentReadKey(p.ConvergenceSecret, p.K, p.N, p.SegmentSize, plaintextHash)
	}
	var readkey [crypto.WriteKeySize]byte
	crypto.Read(readkey[:])
	return readkey
}

func splitSegments(data []byte, segmentSize uint64) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var segments [][]byte
	for off := uint64(0); off < uint64(len(data)); off += segmentSize {
		end := off + segmentSize
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		segments = append(segments, data[off:end])
	}
	return segments
}

// placeShares walks the permutation for si, allocating and filling buckets
// on each server in turn until every share number has a home or the server
// list is exhausted. Servers that fail are simply skipped; their shares
// fall to the next candidate.
func placeShares(
	si crypto.StorageIndex,
	readkey [crypto.WriteKeySize]byte,
	p Params,
	servers []Server,
	blocksByShare [][][]byte,
	blockTrees []*merkle.Tree,
	shareHashTree *merkle.Tree,
	plaintextLeaves, crypttextLeaves [][]byte,
	uebBytes []byte,
) (peers.Placement, error) {
	anns := make([]peers.Announcement, len(servers))
	byID := make(map[string]Server, len(servers))
	for i, s := range servers {
		anns[i] = peers.Announcement{ServerID: s.ID(), PermutationSeed: s.PermutationSeed()}
		byID[s.ID()] = s
	}
	order := peers.Permute(anns, si, p.Preferred)

	remaining := make(map[int]bool, p.N)
	for i := 0; i < p.N; i++ {
		remaining[i] = true
	}

	placement := make(peers.Placement)
	// Lease secrets are derived from the readkey, not generated fresh, so a
	// second client holding the same capability (a different process, the
	// same client after a restart) recomputes identical secrets and can
	// renew or cancel the same lease without a shared secret store.
	renewSecret, cancelSecret := crypto.DeriveLeaseSecrets(readkey)

	var failures error
	for _, ann := range order {
		if len(remaining) == 0 {
			break
		}
		srv := byID[ann.ServerID]

		want := make([]int, 0, 1)
		for num := range remaining {
			want = append(want, num)
			break // one share per server per pass, as the protocol directs
		}
		if len(want) == 0 {
			continue
		}

		maxSize := shareSize(blocksByShare[want[0]])
		res, err := srv.AllocateBuckets(si, want, maxSize, renewSecret, cancelSecret)
		if err != nil {
			failures = errors.Compose(failures, errors.AddContext(err, "server "+srv.ID()+" refused allocation"))
			continue
		}
		for _, num := range res.AlreadyHave {
			placement[num] = srv.ID()
			delete(remaining, num)
		}
		for num, w := range res.Allocated {
			if err := writeShare(w, num, blocksByShare[num], blockTrees[num], shareHashTree, plaintextLeaves, crypttextLeaves, uebBytes); err != nil {
				failures = errors.Compose(failures, errors.AddContext(err, "server "+srv.ID()+" write failed"))
				continue
			}
			placement[num] = srv.ID()
			delete(remaining, num)
		}
	}

	return placement, failures
}

func shareSize(blocks [][]byte) uint64 {
	var total uint64
	for _, b := range blocks {
		total += uint64(len(b))
	}
	return total
}

// writeShare assembles and writes one complete share container: header,
// this share's ciphertext blocks, the shared plaintext/crypttext hash
// trees, this share's own block-hash tree, its share-hash-chain siblings,
// and the UEB -- in that order, matching the on-wire layout.
func writeShare(
	w storage.ImmutableWriter,
	shareNum int,
	blocks [][]byte,
	blockTree *merkle.Tree,
	shareHashTree *merkle.Tree,
	plaintextLeaves, crypttextLeaves [][]byte,
	uebBytes []byte,
) error {
	var data []byte
	for _, b := range blocks {
		data = append(data, b...)
	}

	plaintextHashBytes := encodeLeafHashes(crypto.TagPlaintextHash, plaintextLeaves)
	crypttextHashBytes := encodeLeafHashes(crypto.TagCrypttextHash, crypttextLeaves)
	blockHashBytes := encodeHashes(blockTree.Leaves())

	chain, err := shareHashTree.NeededHashes(shareNum)
	if err != nil {
		return err
	}
	entries := make([]share.HashChainEntry, len(chain))
	for i, h := range chain {
		entries[i] = share.HashChainEntry{Index: uint64(i), Hash: h}
	}
	shareHashChainBytes := share.EncodeHashChain(entries)

	const headerLen = 1 + 8 + 12*8
	layout := share.ImmutableLayout{
		DataOffset:              headerLen,
		DataLength:              uint64(len(data)),
		PlaintextHashTreeOffset: headerLen + uint64(len(data)),
		PlaintextHashTreeLength: uint64(len(plaintextHashBytes)),
	}
	layout.CrypttextHashTreeOffset = layout.PlaintextHashTreeOffset + layout.PlaintextHashTreeLength
	layout.CrypttextHashTreeLength = uint64(len(crypttextHashBytes))
	layout.BlockHashTreeOffset = layout.CrypttextHashTreeOffset + layout.CrypttextHashTreeLength
	layout.BlockHashTreeLength = uint64(len(blockHashBytes))
	layout.ShareHashChainOffset = layout.BlockHashTreeOffset + layout.BlockHashTreeLength
	layout.ShareHashChainLength = uint64(len(shareHashChainBytes))
	layout.UEBOffset = layout.ShareHashChainOffset + layout.ShareHashChainLength
	layout.UEBLength = uint64(len(uebBytes))

	header := share.EncodeImmutableHeader(layout)

	if err := w.WriteAt(0, header); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.DataOffset), data); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.PlaintextHashTreeOffset), plaintextHashBytes); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.CrypttextHashTreeOffset), crypttextHashBytes); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.BlockHashTreeOffset), blockHashBytes); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.ShareHashChainOffset), shareHashChainBytes); err != nil {
		return err
	}
	if err := w.WriteAt(int64(layout.UEBOffset), uebBytes); err != nil {
		return err
	}
	return w.Close()
}

// encodeLeafHashes hashes each leaf with tag and serializes the resulting
// list, so a downloader can recompute the same tree (merkle.NewFromHashes)
// without needing the raw leaves of a tree it isn't itself verifying
// against input it already has in hand.
func encodeLeafHashes(tag string, leaves [][]byte) []byte {
	entries := make([]share.HashChainEntry, len(leaves))
	for i, leaf := range leaves {
		entries[i] = share.HashChainEntry{Index: uint64(i), Hash: crypto.TaggedHash(tag, leaf)}
	}
	return share.EncodeHashChain(entries)
}

// encodeHashes serializes an already-hashed leaf list (e.g. a block-hash
// tree's leaves) so a downloader can rebuild the identical tree via
// merkle.NewFromHashes without re-hashing anything.
func encodeHashes(leaves []crypto.Hash) []byte {
	entries := make([]share.HashChainEntry, len(leaves))
	for i, h := range leaves {
		entries[i] = share.HashChainEntry{Index: uint64(i), Hash: h}
	}
	return share.EncodeHashChain(entries)
}
