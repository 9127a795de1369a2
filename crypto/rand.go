package crypto

// rand.go re-exposes fastrand's cryptographically seeded generator under
// the names the rest of the module expects. fastrand is seeded once from
// the OS CSPRNG and then streams a fast hash-based construction, which is
// exactly what a client generating a readkey per segment or a writer
// picking a storage-index salt needs: unpredictable, and fast enough to
// call in a tight loop without starving on syscalls.

import (
	"github.com/NebulousLabs/fastrand"
)

// Read fills b with random data.
func Read(b []byte) { fastrand.Read(b) }

// RandBytes returns n bytes of random data.
func RandBytes(n int) []byte {
	return fastrand.Bytes(n)
}

// RandIntn returns a uniform random value in [0,n). It panics if n <= 0.
func RandIntn(n int) int {
	return int(fastrand.Intn(n))
}

// Perm returns a random permutation of the integers [0,n).
func Perm(n int) []int {
	return fastrand.Perm(n)
}
