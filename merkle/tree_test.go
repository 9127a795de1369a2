package merkle

import "testing"

func TestVerifyAllLeaves(t *testing.T) {
	const tag = "test_tag_v1"
	leaves := [][]byte{
		[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd"), []byte("e"),
	}
	tree := New(tag, leaves)
	root := tree.Root()

	for i, leaf := range leaves {
		chain, err := tree.NeededHashes(i)
		if err != nil {
			t.Fatalf("NeededHashes(%d): %v", i, err)
		}
		if !Verify(tag, leaf, chain, i, len(leaves), root) {
			t.Errorf("Verify failed for leaf %d", i)
		}
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	const tag = "test_tag_v1"
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tree := New(tag, leaves)
	root := tree.Root()

	chain, err := tree.NeededHashes(1)
	if err != nil {
		t.Fatalf("NeededHashes: %v", err)
	}
	if Verify(tag, []byte("not-b"), chain, 1, len(leaves), root) {
		t.Fatalf("Verify should reject a substituted leaf")
	}
}

func TestEmptyTree(t *testing.T) {
	const tag = "test_tag_v1"
	tree := New(tag, nil)
	if tree.NumLeaves() != 1 {
		t.Fatalf("expected the empty-leaf placeholder, got %d leaves", tree.NumLeaves())
	}
}

func TestSingleLeaf(t *testing.T) {
	const tag = "test_tag_v1"
	tree := New(tag, [][]byte{[]byte("solo")})
	chain, err := tree.NeededHashes(0)
	if err != nil {
		t.Fatalf("NeededHashes: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("single-leaf tree should need no sibling hashes, got %d", len(chain))
	}
	if !Verify(tag, []byte("solo"), chain, 0, 1, tree.Root()) {
		t.Fatalf("Verify failed for single-leaf tree")
	}
}

func TestNewFromHashesRebuildsIdenticalTree(t *testing.T) {
	const tag = "test_tag_v1"
	leaves := [][]byte{[]byte("x"), []byte("yy"), []byte("zzz"), []byte("w")}
	original := New(tag, leaves)

	rebuilt := NewFromHashes(tag, original.Leaves())
	if rebuilt.Root() != original.Root() {
		t.Fatalf("rebuilt tree root %x != original root %x", rebuilt.Root(), original.Root())
	}

	chain, err := rebuilt.NeededHashes(2)
	if err != nil {
		t.Fatalf("NeededHashes: %v", err)
	}
	leafHash := original.Leaves()[2]
	if !VerifyHashed(tag, leafHash, chain, 2, rebuilt.NumLeaves(), rebuilt.Root()) {
		t.Fatalf("VerifyHashed failed against rebuilt tree")
	}
}

func TestNeededHashesOutOfRange(t *testing.T) {
	tree := New("test_tag_v1", [][]byte{[]byte("a")})
	if _, err := tree.NeededHashes(-1); err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange for negative index, got %v", err)
	}
	if _, err := tree.NeededHashes(5); err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange for too-large index, got %v", err)
	}
}
