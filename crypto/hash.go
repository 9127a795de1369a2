package crypto

// hash.go supplies the hashing primitives used throughout the module. The
// protocol hashes tree nodes and capability derivations with SHA-256d, so
// that is the only algorithm here (lease secrets are derived separately,
// with HKDF-SHA256, in lease.go).
// Unlike the rest of the module's crypto, this choice isn't ours to make:
// interoperability with any other implementation of the wire format depends
// on it bit-for-bit.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/dreamware/brightvault/encoding"
)

const (
	HashSize = 32
)

type (
	Hash [HashSize]byte

	// HashSlice is used for sorting.
	HashSlice []Hash
)

var (
	ErrHashWrongLen = errors.New("encoded value has the wrong length to be a hash")
)

// SHA256d returns SHA-256(SHA-256(data)).
func SHA256d(data []byte) Hash {
	first := sha256.Sum256(data)
	return Hash(sha256.Sum256(first[:]))
}

// TaggedHash returns SHA256d(tag || parts...). Every keyed derivation and
// every hash-tree node in the protocol is computed this way so that a tag
// collision in one subsystem (say, the block-hash-tree) can never be
// confused with a hash computed for another (say, a readkey derivation).
func TaggedHash(tag string, parts ...[]byte) Hash {
	var buf bytes.Buffer
	buf.WriteString(tag)
	for _, p := range parts {
		buf.Write(p)
	}
	return SHA256d(buf.Bytes())
}

// HashAll takes a set of objects as input, encodes them all using the
// encoding package, and then hashes the result.
func HashAll(objs ...interface{}) Hash {
	var b []byte
	for _, obj := range objs {
		b = append(b, encoding.Marshal(obj)...)
	}
	return SHA256d(b)
}

// HashObject takes an object as input, encodes it using the encoding
// package, and then hashes the result.
func HashObject(obj interface{}) Hash {
	return SHA256d(encoding.Marshal(obj))
}

// These functions implement sort.Interface, allowing hashes to be sorted.
func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return bytes.Compare(hs[i][:], hs[j][:]) < 0 }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// MarshalJSON marshals a hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// String prints the hash in hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// UnmarshalJSON decodes the json hex string of the hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	// *2 because there are 2 hex characters per byte.
	// +2 because the encoded JSON string has a `"` added at the beginning and end.
	if len(b) != HashSize*2+2 {
		return ErrHashWrongLen
	}

	hBytes, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return errors.New("could not unmarshal crypto.Hash: " + err.Error())
	}
	copy(h[:], hBytes)
	return nil
}
