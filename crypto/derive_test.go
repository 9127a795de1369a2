package crypto

import "testing"

func TestReadKeyFromWriteKeyIsDeterministic(t *testing.T) {
	var writekey [WriteKeySize]byte
	copy(writekey[:], "writekey16bytes!")

	a := ReadKeyFromWriteKey(writekey)
	b := ReadKeyFromWriteKey(writekey)
	if a != b {
		t.Fatalf("ReadKeyFromWriteKey is not deterministic")
	}

	si1 := StorageIndexFromReadKey(a)
	si2 := StorageIndexFromReadKey(a)
	if si1 != si2 {
		t.Fatalf("StorageIndexFromReadKey is not deterministic")
	}
}

func TestConvergentReadKeyMatchesOnIdenticalInputs(t *testing.T) {
	plaintextHash := SHA256d([]byte("the same file contents"))
	secret := []byte("shared convergence secret")

	a := ConvergentReadKey(secret, 3, 10, 1<<17, plaintextHash)
	b := ConvergentReadKey(secret, 3, 10, 1<<17, plaintextHash)
	if a != b {
		t.Fatalf("ConvergentReadKey must be deterministic for identical inputs")
	}

	// Any differing parameter must change the derived key.
	c := ConvergentReadKey(secret, 4, 10, 1<<17, plaintextHash)
	if a == c {
		t.Fatalf("ConvergentReadKey must vary with k")
	}
}

func TestDeriveLeaseSecretsAreStableAndDistinct(t *testing.T) {
	var readkey [WriteKeySize]byte
	copy(readkey[:], "readkey16byteslo")

	renew1, cancel1 := DeriveLeaseSecrets(readkey)
	renew2, cancel2 := DeriveLeaseSecrets(readkey)

	if renew1 != renew2 || cancel1 != cancel2 {
		t.Fatalf("DeriveLeaseSecrets must be deterministic for the same readkey")
	}
	if renew1 == cancel1 {
		t.Fatalf("renew and cancel secrets must differ")
	}

	var other [WriteKeySize]byte
	copy(other[:], "otherreadkey1234")
	renew3, _ := DeriveLeaseSecrets(other)
	if renew3 == renew1 {
		t.Fatalf("different readkeys must derive different lease secrets")
	}
}
