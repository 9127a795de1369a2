package share

// ueb.go implements the URI Extension Block: the terminal metadata of an
// immutable file that anchors every hash tree built over it. Its hash
// (computed by crypto.UEBHash) is what actually gets embedded in a CHK
// readcap -- the UEB itself is fetched and checked against that hash before
// any of its contents (k, n, segment sizes, tree roots) are trusted.

import (
	"encoding/binary"

	"github.com/dreamware/brightvault/crypto"
)

// UEB is the URI Extension Block.
type UEB struct {
	K, N               uint16
	SegmentSize        uint64
	TailSegmentSize    uint64
	NumSegments        uint64
	Size               uint64
	ShareHashRoot      crypto.Hash
	CrypttextHashRoot  crypto.Hash
	PlaintextHashRoot  crypto.Hash
}

// Encode serializes the UEB in the fixed big-endian layout that gets
// hashed into UEB-hash and shipped alongside every share.
func (u UEB) Encode() []byte {
	buf := make([]byte, 0, 2+2+8*4+crypto.HashSize*3)
	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], u.K)
	buf = append(buf, b2[:]...)
	binary.BigEndian.PutUint16(b2[:], u.N)
	buf = append(buf, b2[:]...)
	for _, v := range []uint64{u.SegmentSize, u.TailSegmentSize, u.NumSegments, u.Size} {
		var b8 [8]byte
		binary.BigEndian.PutUint64(b8[:], v)
		buf = append(buf, b8[:]...)
	}
	buf = append(buf, u.ShareHashRoot[:]...)
	buf = append(buf, u.CrypttextHashRoot[:]...)
	buf = append(buf, u.PlaintextHashRoot[:]...)
	return buf
}

// Hash returns the UEB-hash that gets embedded in the file's readcap.
func (u UEB) Hash() crypto.Hash {
	return crypto.UEBHash(u.Encode())
}

// DecodeUEB is the inverse of Encode.
func DecodeUEB(b []byte) (UEB, error) {
	const fixedLen = 2 + 2 + 8*4 + crypto.HashSize*3
	if len(b) < fixedLen {
		return UEB{}, IntegrityError{Reason: "UEB buffer too short"}
	}
	var u UEB
	u.K = binary.BigEndian.Uint16(b[0:2])
	u.N = binary.BigEndian.Uint16(b[2:4])
	off := 4
	vals := make([]uint64, 4)
	for i := range vals {
		vals[i] = binary.BigEndian.Uint64(b[off : off+8])
		off += 8
	}
	u.SegmentSize, u.TailSegmentSize, u.NumSegments, u.Size = vals[0], vals[1], vals[2], vals[3]
	copy(u.ShareHashRoot[:], b[off:off+crypto.HashSize])
	off += crypto.HashSize
	copy(u.CrypttextHashRoot[:], b[off:off+crypto.HashSize])
	off += crypto.HashSize
	copy(u.PlaintextHashRoot[:], b[off:off+crypto.HashSize])
	return u, nil
}

// NumSegmentsForSize returns how many fixed-size segments (plus a possible
// short tail) a file of the given size is split into.
func NumSegmentsForSize(size, segmentSize uint64) uint64 {
	if size == 0 {
		return 1
	}
	n := size / segmentSize
	if size%segmentSize != 0 {
		n++
	}
	return n
}
