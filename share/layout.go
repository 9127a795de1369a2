// Package share implements the bit-exact on-wire container formats that
// live on a storage server: the append-only immutable share and the
// versioned mutable slot. Every multi-byte integer here is big-endian, per
// the wire format -- the one place in this module where that matters, since
// every other internal structure uses the module's generic little-endian
// encoding package. Getting a single offset wrong here breaks
// interoperability with any other client or server, so layout.go and
// mutableslot.go do their own explicit byte-packing rather than reflecting
// over a struct.
package share

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dreamware/brightvault/crypto"
)

// IntegrityError indicates that a share's header, an offset it named, or a
// hash/signature found there does not match what the reader expected. The
// share is evicted; decoding continues with whatever shares remain.
type IntegrityError struct {
	Reason string
}

func (e IntegrityError) Error() string { return "integrity error: " + e.Reason }

// ErrShortHeader is returned when a buffer is too small to contain even the
// fixed-size prefix of a share header.
var ErrShortHeader = errors.New("share: buffer too short for header")

// headerVersion1 uses 32-bit offsets; headerVersion2 uses 64-bit offsets
// for shares that might exceed 4GiB. Writers always emit version 2.
const (
	headerVersion1 = 1
	headerVersion2 = 2
)

// ImmutableLayout describes where each section of an immutable share lives,
// relative to the start of the share. The header itself declares these
// offsets so a reader can seek directly to any section without decoding
// the ones before it.
type ImmutableLayout struct {
	Version uint8

	DataOffset, DataLength                         uint64
	PlaintextHashTreeOffset, PlaintextHashTreeLength uint64
	CrypttextHashTreeOffset, CrypttextHashTreeLength uint64
	BlockHashTreeOffset, BlockHashTreeLength         uint64
	ShareHashChainOffset, ShareHashChainLength       uint64
	UEBOffset, UEBLength                             uint64
}

// numSections is the count of (offset,length) pairs in the offsets table,
// data included.
const numSections = 6

// EncodeImmutableHeader serializes l as the fixed prefix plus offsets table
// that opens every immutable share: a 1-byte version, an own-size field,
// then six (offset, length) pairs -- data, plaintext-hash-tree,
// crypttext-hash-tree, block-hash-tree, share-hash-chain, UEB -- each a
// 64-bit big-endian pair when Version is headerVersion2.
func EncodeImmutableHeader(l ImmutableLayout) []byte {
	fields := []uint64{
		l.DataOffset, l.DataLength,
		l.PlaintextHashTreeOffset, l.PlaintextHashTreeLength,
		l.CrypttextHashTreeOffset, l.CrypttextHashTreeLength,
		l.BlockHashTreeOffset, l.BlockHashTreeLength,
		l.ShareHashChainOffset, l.ShareHashChainLength,
		l.UEBOffset, l.UEBLength,
	}
	ownSize := uint64(1+8) + uint64(len(fields))*8
	buf := make([]byte, 0, ownSize)
	buf = append(buf, headerVersion2)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], ownSize)
	buf = append(buf, tmp[:]...)
	for _, f := range fields {
		binary.BigEndian.PutUint64(tmp[:], f)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// DecodeImmutableHeader parses the header written by EncodeImmutableHeader.
// It supports both header versions: version 1 stores each offset/length as
// 32 bits, version 2 as 64 bits.
func DecodeImmutableHeader(b []byte) (ImmutableLayout, error) {
	if len(b) < 1 {
		return ImmutableLayout{}, ErrShortHeader
	}
	version := b[0]
	var width int
	switch version {
	case headerVersion1:
		width = 4
	case headerVersion2:
		width = 8
	default:
		return ImmutableLayout{}, IntegrityError{Reason: fmt.Sprintf("unrecognized share header version %d", version)}
	}

	readUint := func(off int) (uint64, error) {
		if off+width > len(b) {
			return 0, ErrShortHeader
		}
		if width == 4 {
			return uint64(binary.BigEndian.Uint32(b[off : off+4])), nil
		}
		return binary.BigEndian.Uint64(b[off : off+8]), nil
	}

	ownSize, err := readUint(1)
	if err != nil {
		return ImmutableLayout{}, err
	}
	_ = ownSize

	vals := make([]uint64, numSections*2)
	off := 1 + width
	for i := range vals {
		v, err := readUint(off)
		if err != nil {
			return ImmutableLayout{}, err
		}
		vals[i] = v
		off += width
	}

	return ImmutableLayout{
		Version:                  version,
		DataOffset:               vals[0],
		DataLength:               vals[1],
		PlaintextHashTreeOffset:  vals[2],
		PlaintextHashTreeLength:  vals[3],
		CrypttextHashTreeOffset:  vals[4],
		CrypttextHashTreeLength:  vals[5],
		BlockHashTreeOffset:      vals[6],
		BlockHashTreeLength:      vals[7],
		ShareHashChainOffset:     vals[8],
		ShareHashChainLength:     vals[9],
		UEBOffset:                vals[10],
		UEBLength:                vals[11],
	}, nil
}

// HashChainEntry is one (index, hash) pair in a serialized hash list. In a
// list of leaf hashes Index is the leaf number; in a share-hash-chain (the
// sibling hashes from the leaf up to the share-hash-tree root) it is the
// entry's position in the chain. Verification derives which side of each
// combine a sibling sits on from the leaf's own index, not from Index.
type HashChainEntry struct {
	Index uint64
	Hash  crypto.Hash
}

// EncodeHashChain serializes a slice of hashes (block-hash-tree or
// share-hash-chain siblings) as a length-prefixed, big-endian-indexed list.
func EncodeHashChain(entries []HashChainEntry) []byte {
	buf := make([]byte, 8, 8+len(entries)*(8+crypto.HashSize))
	binary.BigEndian.PutUint64(buf, uint64(len(entries)))
	for _, e := range entries {
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], e.Index)
		buf = append(buf, idx[:]...)
		buf = append(buf, e.Hash[:]...)
	}
	return buf
}

// DecodeHashChain is the inverse of EncodeHashChain.
func DecodeHashChain(b []byte) ([]HashChainEntry, error) {
	if len(b) < 8 {
		return nil, IntegrityError{Reason: "hash chain buffer too short"}
	}
	n := binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	entrySize := 8 + crypto.HashSize
	if uint64(len(b)) < n*uint64(entrySize) {
		return nil, IntegrityError{Reason: "hash chain buffer truncated"}
	}
	entries := make([]HashChainEntry, n)
	for i := range entries {
		off := i * entrySize
		entries[i].Index = binary.BigEndian.Uint64(b[off : off+8])
		copy(entries[i].Hash[:], b[off+8:off+entrySize])
	}
	return entries, nil
}
