// Package erasure wraps Reed-Solomon coding over GF(2^8), turning a
// ciphertext segment into n shares such that any k reconstruct it. The
// actual matrix math is handled by klauspost/reedsolomon; this package
// layers on the padding and share-bookkeeping semantics the storage
// protocol expects: blocks of segmentSize/k bytes, zero-padded to a
// multiple of k, and a Decode that fails closed rather than returning
// corrupt output when fewer than k shares survive.
package erasure

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

// DecodingError is returned by Decode when the input shares cannot be
// reconstructed: fewer than k are present, or the caller's bookkeeping
// disagrees with what was actually supplied.
type DecodingError struct {
	Reason string
}

func (e DecodingError) Error() string { return "erasure decoding failed: " + e.Reason }

// Coder erasure-codes segments of a fixed size into n blocks, k of which
// suffice to reconstruct the segment. A Coder is safe for concurrent use;
// the underlying reedsolomon.Encoder is stateless matrix math.
type Coder struct {
	k, n int
	enc  reedsolomon.Encoder
}

// NewCoder builds a Coder for the given (k, n). It fails only if the
// parameters themselves are invalid (k <= 0, n < k, or n too large for a
// single byte share index).
func NewCoder(k, n int) (*Coder, error) {
	if k <= 0 || n < k {
		return nil, errors.New("erasure: invalid parameters: need 0 < k <= n")
	}
	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, err
	}
	return &Coder{k: k, n: n, enc: enc}, nil
}

// K returns the number of data blocks.
func (c *Coder) K() int { return c.k }

// N returns the total number of blocks (data + parity).
func (c *Coder) N() int { return c.n }

// BlockSize returns the size of each of the n blocks for a segment of the
// given length: ceil(segmentLen/k), so that the zero-padded data fits
// evenly across all k data blocks.
func (c *Coder) BlockSize(segmentLen int) int {
	return (segmentLen + c.k - 1) / c.k
}

// Encode splits ciphertext segment data into n blocks, zero-padding data
// to a multiple of k before splitting, then computing the n-k parity
// blocks. The result is deterministic: identical input always yields
// identical block bytes, which convergent uploads rely on for
// reproducible shares across independent uploaders.
func (c *Coder) Encode(data []byte) ([][]byte, error) {
	blockSize := c.BlockSize(len(data))
	padded := make([]byte, blockSize*c.k)
	copy(padded, data)

	shards := make([][]byte, c.n)
	for i := 0; i < c.k; i++ {
		shards[i] = padded[i*blockSize : (i+1)*blockSize]
	}
	for i := c.k; i < c.n; i++ {
		shards[i] = make([]byte, blockSize)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// Decode reconstructs a segment of segmentLen bytes from a sparse set of
// blocks. present[i] is nil for any share not available; Decode fails with
// a DecodingError if fewer than k of the n entries are present.
func (c *Coder) Decode(present [][]byte, segmentLen int) ([]byte, error) {
	if len(present) != c.n {
		return nil, DecodingError{Reason: "expected exactly n share slots"}
	}
	have := 0
	for _, s := range present {
		if s != nil {
			have++
		}
	}
	if have < c.k {
		return nil, DecodingError{Reason: "fewer than k shares available"}
	}

	shards := make([][]byte, c.n)
	copy(shards, present)
	if err := c.enc.Reconstruct(shards); err != nil {
		return nil, DecodingError{Reason: err.Error()}
	}

	blockSize := len(shards[0])
	out := make([]byte, 0, blockSize*c.k)
	for i := 0; i < c.k; i++ {
		out = append(out, shards[i]...)
	}
	if len(out) > segmentLen {
		out = out[:segmentLen]
	}
	return out, nil
}
