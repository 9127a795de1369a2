package crypto

// lease.go resolves a gap the reference lattice leaves incomplete: lease
// renew/cancel secrets are derived from the file's own readkey rather than
// generated and discarded per upload, so any client holding the same
// capability — a second process, a future session with no persisted
// secret store — recomputes the identical secrets and can renew or cancel
// the same lease. Derivation goes through HKDF-SHA256 rather than a single
// tagged hash because two independent outputs (renew, cancel) are needed
// from one input key, which is exactly HKDF's expand step.

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	leaseHKDFSalt   = "brightvault_lease_secret_v1"
	leaseInfoRenew  = "renew"
	leaseInfoCancel = "cancel"
)

// DeriveLeaseSecrets derives the (renew, cancel) secret pair for leases a
// client places on shares of the file identified by readkey. Convergent
// uploads of the same file by different clients (or the same client
// across restarts) derive the same pair, so lease renewal never depends
// on a side-channel secret store.
func DeriveLeaseSecrets(readkey [WriteKeySize]byte) (renewSecret, cancelSecret Hash) {
	r := hkdf.New(sha256.New, readkey[:], []byte(leaseHKDFSalt), []byte(leaseInfoRenew))
	io.ReadFull(r, renewSecret[:])

	c := hkdf.New(sha256.New, readkey[:], []byte(leaseHKDFSalt), []byte(leaseInfoCancel))
	io.ReadFull(c, cancelSecret[:])
	return
}
