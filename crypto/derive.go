package crypto

// derive.go implements the one-way derivation lattice that anchors the
// whole capability system: writekey -> readkey -> storage-index, plus the
// convergent CHK key derivation and the UEB hash. Every tag string here is
// part of the wire format; changing one breaks interop with every other
// implementation of the protocol, so they are compile-time constants rather
// than configuration.

const (
	tagWritekeyToReadkey     = "allmydata_mutable_writekey_to_readkey_v1"
	tagReadkeyToStorageIndex = "allmydata_immutable_readkey_to_storage_index_v1"
	tagPubkeyToFingerprint   = "allmydata_mutable_pubkey_to_fingerprint_v1"
	tagCHKKey                = "CHK_key_v1"
	tagUEB                   = "UEB_v1"
	tagSSKStorageIndex       = "SSK_storage_index_v1"

	// TagBlockHash, TagShareHash, TagPlaintextHash and TagCrypttextHash
	// domain-separate the four hash trees built over an immutable file so
	// that a node from one tree can never be replayed as a node of another.
	TagBlockHash     = "block_hash_v1"
	TagShareHash     = "share_hash_v1"
	TagPlaintextHash = "plaintext_hash_v1"
	TagCrypttextHash = "crypttext_hash_v1"
)

// StorageIndexSize is the length in bytes of a storage-index.
const StorageIndexSize = 16

// WriteKeySize is the length in bytes of a mutable-file writekey and an
// immutable-file readkey; both are 128-bit AES-CTR keys.
const WriteKeySize = 16

// StorageIndex identifies a file's shares on every storage server.
type StorageIndex [StorageIndexSize]byte

func (si StorageIndex) String() string { return Hash(mustPad(si[:])).String()[:StorageIndexSize*2] }

func mustPad(b []byte) [HashSize]byte {
	var h [HashSize]byte
	copy(h[:], b)
	return h
}

// ReadKeyFromWriteKey derives the readkey of a mutable file from its
// writekey: readkey = SHA256d(tag || writekey)[:16].
func ReadKeyFromWriteKey(writekey [WriteKeySize]byte) (readkey [WriteKeySize]byte) {
	h := TaggedHash(tagWritekeyToReadkey, writekey[:])
	copy(readkey[:], h[:WriteKeySize])
	return
}

// StorageIndexFromReadKey derives the storage-index of an immutable file
// from its readkey: storage-index = SHA256d(tag || readkey)[:16].
func StorageIndexFromReadKey(readkey [WriteKeySize]byte) (si StorageIndex) {
	h := TaggedHash(tagReadkeyToStorageIndex, readkey[:])
	copy(si[:], h[:StorageIndexSize])
	return
}

// StorageIndexFromPublicKey derives the storage-index of a mutable file
// from the hash of its signing public key.
func StorageIndexFromPublicKey(pubkeyHash Hash) (si StorageIndex) {
	h := TaggedHash(tagSSKStorageIndex, pubkeyHash[:])
	copy(si[:], h[:StorageIndexSize])
	return
}

// PublicKeyFingerprint derives the stable fingerprint of a mutable file's
// signing public key: SHA256d(tag || pubkey).
func PublicKeyFingerprint(pubkey []byte) Hash {
	return TaggedHash(tagPubkeyToFingerprint, pubkey)
}

// ConvergentReadKey derives the deterministic readkey used by convergent
// encryption: identical (plaintext, convergence secret, k, n, segmentSize)
// always yields the same readkey, and therefore the same capability.
//
//	readkey = SHA256d("CHK_key_v1" || secret || k || n || segmentSize || SHA256d(plaintext))[:16]
func ConvergentReadKey(secret []byte, k, n int, segmentSize uint64, plaintextHash Hash) (readkey [WriteKeySize]byte) {
	kn := make([]byte, 0, 8+8+8)
	kn = appendUint64(kn, uint64(k))
	kn = appendUint64(kn, uint64(n))
	kn = appendUint64(kn, segmentSize)
	h := TaggedHash(tagCHKKey, secret, kn, plaintextHash[:])
	copy(readkey[:], h[:WriteKeySize])
	return
}

// UEBHash hashes the serialized URI Extension Block that terminates an
// immutable file's share; this hash is embedded in the file's readcap.
func UEBHash(uebBytes []byte) Hash {
	return TaggedHash(tagUEB, uebBytes)
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
