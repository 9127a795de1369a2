package crypto

// encrypt.go contains functions for encrypting and decrypting plaintext to
// crypttext with AES-CTR. The protocol fixes the cipher: a 128-bit key, a
// 128-bit counter initialized to zero, no IV. Safety comes entirely from the
// key never being reused across two different plaintexts, which convergent
// encryption and per-file random readkeys both guarantee.

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"io"

	"github.com/NebulousLabs/fastrand"
)

var (
	ErrInsufficientLen = errors.New("supplied ciphertext is not long enough to contain a nonce")
)

type (
	// Ciphertext is the AES-CTR encryption of a plaintext segment.
	Ciphertext []byte

	// CipherKey is a 128-bit AES-CTR key: a file's readkey.
	CipherKey [WriteKeySize]byte
)

// GenerateCipherKey produces a random 128-bit key suitable for non-convergent
// uploads.
func GenerateCipherKey() (key CipherKey, err error) {
	fastrand.Read(key[:])
	return key, nil
}

// NewCipher creates a new AES block cipher from the key.
func (key CipherKey) NewCipher() cipher.Block {
	// NOTE: aes.NewCipher only returns an error if len(key) != 16, 24, or 32;
	// CipherKey is always 16 bytes.
	c, _ := aes.NewCipher(key[:])
	return c
}

// zeroCounterStream returns the AES-CTR stream for key, counter initialized
// to all zero bytes as required by the wire format.
func (key CipherKey) zeroCounterStream() cipher.Stream {
	iv := make([]byte, aes.BlockSize)
	return cipher.NewCTR(key.NewCipher(), iv)
}

// EncryptBytes encrypts plaintext in place of a fresh buffer using AES-CTR
// with a zero counter. Since AES-CTR is a stream cipher, the same method
// decrypts crypttext back to plaintext.
func (key CipherKey) EncryptBytes(plaintext []byte) Ciphertext {
	ct := make([]byte, len(plaintext))
	key.zeroCounterStream().XORKeyStream(ct, plaintext)
	return ct
}

// DecryptBytes decrypts crypttext produced by EncryptBytes.
func (key CipherKey) DecryptBytes(ct Ciphertext) []byte {
	pt := make([]byte, len(ct))
	key.zeroCounterStream().XORKeyStream(pt, ct)
	return pt
}

// NewWriter returns a writer that encrypts (or decrypts) its input stream
// using AES-CTR with a zero counter.
func (key CipherKey) NewWriter(w io.Writer) io.Writer {
	return &cipher.StreamWriter{S: key.zeroCounterStream(), W: w}
}

// NewReader returns a reader that encrypts (or decrypts) its input stream
// using AES-CTR with a zero counter.
func (key CipherKey) NewReader(r io.Reader) io.Reader {
	return &cipher.StreamReader{S: key.zeroCounterStream(), R: r}
}

func (c Ciphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal([]byte(c))
}

func (c *Ciphertext) UnmarshalJSON(b []byte) error {
	var umarB []byte
	err := json.Unmarshal(b, &umarB)
	if err != nil {
		return err
	}
	*c = Ciphertext(umarB)
	return nil
}
