package share

// mutableslot.go implements the SDMF mutable slot container: the versioned,
// signed record a storage server holds for one share of one mutable file.
// The signed portion is exactly (seqnum || root-hash || encoding-params);
// everything else in the container rides alongside but isn't covered by the
// signature itself. The share data and its hash chains get their integrity
// from being summarized into root-hash, which is signed; the IV and the
// encrypted private key are covered by neither.

import (
	"encoding/binary"

	"github.com/dreamware/brightvault/crypto"
)

// EncodingParams are the erasure-coding parameters bound into every signed
// mutable-file version, so a reader can't be fed a share encoded with
// different (k, n, segmentSize) than the ones the writer signed.
type EncodingParams struct {
	K, N        uint16
	SegmentSize uint64
	DataLength  uint64
}

func (p EncodingParams) encode() []byte {
	b := make([]byte, 2+2+8+8)
	binary.BigEndian.PutUint16(b[0:2], p.K)
	binary.BigEndian.PutUint16(b[2:4], p.N)
	binary.BigEndian.PutUint64(b[4:12], p.SegmentSize)
	binary.BigEndian.PutUint64(b[12:20], p.DataLength)
	return b
}

func decodeEncodingParams(b []byte) (EncodingParams, error) {
	if len(b) < 20 {
		return EncodingParams{}, IntegrityError{Reason: "encoding params buffer too short"}
	}
	return EncodingParams{
		K:           binary.BigEndian.Uint16(b[0:2]),
		N:           binary.BigEndian.Uint16(b[2:4]),
		SegmentSize: binary.BigEndian.Uint64(b[4:12]),
		DataLength:  binary.BigEndian.Uint64(b[12:20]),
	}, nil
}

// SignedPrefix is the tuple (seqnum || root-hash || encoding-params) that a
// mutable file's signing key signs for every published version. It is
// deliberately small and fixed-shape so that verifying a version never
// requires touching the (potentially large) share data.
type SignedPrefix struct {
	Seqnum         uint64
	RootHash       crypto.Hash
	EncodingParams EncodingParams
}

// Bytes returns the exact byte sequence that gets hashed and signed.
func (p SignedPrefix) Bytes() []byte {
	buf := make([]byte, 0, 8+crypto.HashSize+20)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], p.Seqnum)
	buf = append(buf, seq[:]...)
	buf = append(buf, p.RootHash[:]...)
	buf = append(buf, p.EncodingParams.encode()...)
	return buf
}

// Digest returns the hash that is actually fed to SignHash/VerifyHash.
func (p SignedPrefix) Digest() crypto.Hash {
	return crypto.SHA256d(p.Bytes())
}

// MutableShare is everything a storage server holds for one share of one
// version of a mutable file.
type MutableShare struct {
	SignedPrefix

	IV        [16]byte
	Signature crypto.Signature

	// EncPrivkey holds the signing private key, itself encrypted with the
	// file's readkey, so that any reader holding the readkey (not just the
	// writekey holder) can recover it and participate in SDMF's
	// read-then-rewrite convention. Empty for MDMF slots that omit it.
	EncPrivkey []byte

	ShareHashChain []HashChainEntry
	BlockHashTree  []byte
	ShareData      []byte
}

// Encode serializes a MutableShare as
// seqnum || root-hash || encoding-params || IV || signature || enc-privkey
// (length-prefixed) || share-hash-chain (length-prefixed) ||
// block-hash-tree (length-prefixed) || share-data (length-prefixed).
func (s MutableShare) Encode() []byte {
	buf := append([]byte{}, s.SignedPrefix.Bytes()...)
	buf = append(buf, s.IV[:]...)
	buf = append(buf, s.Signature[:]...)
	buf = appendPrefixed(buf, s.EncPrivkey)
	buf = appendPrefixed(buf, EncodeHashChain(s.ShareHashChain))
	buf = appendPrefixed(buf, s.BlockHashTree)
	buf = appendPrefixed(buf, s.ShareData)
	return buf
}

func appendPrefixed(buf, data []byte) []byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	buf = append(buf, n[:]...)
	return append(buf, data...)
}

func readPrefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 8 {
		return nil, nil, IntegrityError{Reason: "mutable share buffer too short for length prefix"}
	}
	n := binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	if uint64(len(b)) < n {
		return nil, nil, IntegrityError{Reason: "mutable share buffer truncated"}
	}
	return b[:n], b[n:], nil
}

// DecodeMutableShare is the inverse of Encode.
func DecodeMutableShare(b []byte) (MutableShare, error) {
	const prefixLen = 8 + crypto.HashSize + 20
	if len(b) < prefixLen+16+crypto.SignatureSize {
		return MutableShare{}, IntegrityError{Reason: "mutable share buffer too short for fixed fields"}
	}
	seqnum := binary.BigEndian.Uint64(b[0:8])
	var root crypto.Hash
	copy(root[:], b[8:8+crypto.HashSize])
	ep, err := decodeEncodingParams(b[8+crypto.HashSize : prefixLen])
	if err != nil {
		return MutableShare{}, err
	}
	off := prefixLen
	var iv [16]byte
	copy(iv[:], b[off:off+16])
	off += 16
	var sig crypto.Signature
	copy(sig[:], b[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize

	rest := b[off:]
	encPrivkey, rest, err := readPrefixed(rest)
	if err != nil {
		return MutableShare{}, err
	}
	shareHashChainBytes, rest, err := readPrefixed(rest)
	if err != nil {
		return MutableShare{}, err
	}
	shareHashChain, err := DecodeHashChain(shareHashChainBytes)
	if err != nil {
		return MutableShare{}, err
	}
	blockHashTree, rest, err := readPrefixed(rest)
	if err != nil {
		return MutableShare{}, err
	}
	shareData, _, err := readPrefixed(rest)
	if err != nil {
		return MutableShare{}, err
	}

	return MutableShare{
		SignedPrefix: SignedPrefix{
			Seqnum:         seqnum,
			RootHash:       root,
			EncodingParams: ep,
		},
		IV:             iv,
		Signature:      sig,
		EncPrivkey:     encPrivkey,
		ShareHashChain: shareHashChain,
		BlockHashTree:  blockHashTree,
		ShareData:      shareData,
	}, nil
}

// PersistContainerMagic opens every on-disk mutable slot file, mirroring
// the wire format's own magic string so that pointing a hex editor at a
// slot file on disk immediately identifies it.
const PersistContainerMagic = "brightvault mutable container v1\n"

// PersistedSlot is the storage server's on-disk wrapper around a
// MutableShare: the magic, the write-enabler fields that gate who may
// overwrite the slot, and the signed share itself.
type PersistedSlot struct {
	WriteEnablerNodeID [20]byte
	WriteEnabler       [32]byte
	Share              MutableShare
}

// Encode serializes a PersistedSlot exactly as a storage server would
// write it to disk: magic || write-enabler-nodeid(20) || write-enabler(32)
// || data-length(8) || data-area.
func (p PersistedSlot) Encode() []byte {
	data := p.Share.Encode()
	buf := append([]byte{}, []byte(PersistContainerMagic)...)
	buf = append(buf, p.WriteEnablerNodeID[:]...)
	buf = append(buf, p.WriteEnabler[:]...)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	buf = append(buf, n[:]...)
	return append(buf, data...)
}

// DecodePersistedSlot is the inverse of Encode.
func DecodePersistedSlot(b []byte) (PersistedSlot, error) {
	magicLen := len(PersistContainerMagic)
	if len(b) < magicLen+20+32+8 {
		return PersistedSlot{}, IntegrityError{Reason: "persisted slot buffer too short"}
	}
	if string(b[:magicLen]) != PersistContainerMagic {
		return PersistedSlot{}, IntegrityError{Reason: "bad magic in persisted slot container"}
	}
	off := magicLen
	var nodeID [20]byte
	copy(nodeID[:], b[off:off+20])
	off += 20
	var we [32]byte
	copy(we[:], b[off:off+32])
	off += 32
	dataLen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if uint64(len(b)-off) < dataLen {
		return PersistedSlot{}, IntegrityError{Reason: "persisted slot data area truncated"}
	}
	share, err := DecodeMutableShare(b[off : off+int(dataLen)])
	if err != nil {
		return PersistedSlot{}, err
	}
	return PersistedSlot{WriteEnablerNodeID: nodeID, WriteEnabler: we, Share: share}, nil
}
