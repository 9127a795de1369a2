package crypto

// signatures.go supplies the two mutable-file signature schemes the
// protocol accepts: Ed25519 for every new file, and RSA-2048 so files
// published by an older client remain verifiable. Ed25519 signs and
// verifies through SignHash/VerifyHash; RSA is verify-only, through
// RSAVerifyHash.

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
)

type (
	PublicKey [PublicKeySize]byte
	SecretKey [SecretKeySize]byte
	Signature [SignatureSize]byte
)

var (
	ErrNilInput         = errors.New("cannot use nil input")
	ErrInvalidSignature = errors.New("invalid signature")
)

// GenerateKeyPair creates a fresh Ed25519 signing keypair for a new mutable
// file. Every new file uses Ed25519; RSA-2048 exists only to verify files
// published by older clients.
func GenerateKeyPair() (sk SecretKey, pk PublicKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return
	}
	copy(sk[:], priv)
	copy(pk[:], pub)
	return
}

// GenerateKeyPairDeterministic derives a keypair from 32 bytes of seed
// entropy, e.g. entropy held by the writecap itself.
func GenerateKeyPairDeterministic(seed [32]byte) (sk SecretKey, pk PublicKey) {
	priv := ed25519.NewKeyFromSeed(seed[:])
	copy(sk[:], priv)
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return
}

// SignHash signs data with an Ed25519 secret key.
func SignHash(data Hash, sk SecretKey) (sig Signature, err error) {
	s := ed25519.Sign(ed25519.PrivateKey(sk[:]), data[:])
	copy(sig[:], s)
	return
}

// VerifyHash verifies an Ed25519 signature produced by SignHash.
func VerifyHash(data Hash, pk PublicKey, sig Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(pk[:]), data[:], sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKey returns the public key half of an Ed25519 secret key.
func (sk SecretKey) PublicKey() (pk PublicKey) {
	copy(pk[:], sk[32:])
	return
}

// RSAVerifyHash verifies the signature of a legacy RSA-2048 mutable file.
// RSA signing is deliberately omitted: no new file is ever published with
// an RSA key, only old ones read.
func RSAVerifyHash(data Hash, pub *rsa.PublicKey, sig []byte) error {
	digest := sha256.Sum256(data[:])
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
