// Package merkle implements the binary hash tree used for every integrity
// structure in the storage protocol: the share-hash tree, each share's
// block-hash tree, and the plaintext/crypttext hash trees anchored in the
// URI Extension Block. Downloads need random access into the tree -- fetch
// segment 9 while segment 3's proof is still warm in a cache, ask for the
// sibling chain of an arbitrary leaf well after the tree was built -- so
// the tree here keeps every leaf and internal node in memory, indexed by
// (level, index), and answers NeededHashes for any leaf at any time.
package merkle

import (
	"errors"

	"github.com/dreamware/brightvault/crypto"
)

// ErrIndexOutOfRange is returned by NeededHashes when asked to prove a leaf
// beyond the tree's leaf count.
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Tree is a binary hash tree built bottom-up from an ordered list of
// leaves. All nodes are tag-prefixed SHA-256d, per TaggedHash.
type Tree struct {
	tag    string
	levels [][]crypto.Hash // levels[0] = leaf hashes, levels[len-1] = root
}

// emptyLeafHash is the hash of an empty tree: SHA256d(tag || "").
func emptyLeafHash(tag string) crypto.Hash {
	return crypto.TaggedHash(tag)
}

// New builds a Tree over leaves, which are hashed with tag before being
// placed at level 0. Passing already-hashed leaves (e.g. block hashes
// rather than raw data) is the caller's responsibility: New always hashes
// its input, so feed it raw leaf bytes, not hashes you've already computed
// elsewhere.
func New(tag string, leaves [][]byte) *Tree {
	t := &Tree{tag: tag}
	if len(leaves) == 0 {
		t.levels = [][]crypto.Hash{{emptyLeafHash(tag)}}
		return t
	}

	level0 := make([]crypto.Hash, len(leaves))
	for i, leaf := range leaves {
		level0[i] = crypto.TaggedHash(tag, leaf)
	}
	return newFromHashes(tag, level0)
}

// NewFromHashes builds a Tree directly from pre-hashed leaves, used when
// the leaves are themselves the roots of other trees (e.g. the share-hash
// tree's leaves are each share's block-hash-tree root).
func NewFromHashes(tag string, leaves []crypto.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{tag: tag, levels: [][]crypto.Hash{{emptyLeafHash(tag)}}}
	}
	return newFromHashes(tag, leaves)
}

func newFromHashes(tag string, level0 []crypto.Hash) *Tree {
	levels := [][]crypto.Hash{level0}
	cur := level0
	for len(cur) > 1 {
		next := make([]crypto.Hash, (len(cur)+1)/2)
		for i := range next {
			left := cur[2*i]
			if 2*i+1 < len(cur) {
				right := cur[2*i+1]
				next[i] = crypto.TaggedHash(tag, left[:], right[:])
			} else {
				// Odd node out: it has no sibling this round, so it is
				// carried up unchanged rather than rehashed.
				next[i] = left
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return &Tree{tag: tag, levels: levels}
}

// Root returns the tree's root hash.
func (t *Tree) Root() crypto.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// NumLeaves returns the number of leaves the tree was built over.
func (t *Tree) NumLeaves() int {
	return len(t.levels[0])
}

// Leaves returns the tree's level-0 hashes, in order. For a tree built with
// New, these are tag-prefixed hashes of the raw leaf bytes, not the raw
// bytes themselves; a holder of this list and the tag can rebuild an
// identical tree via NewFromHashes without re-hashing anything.
func (t *Tree) Leaves() []crypto.Hash {
	out := make([]crypto.Hash, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// NeededHashes returns the sibling chain needed to prove that the leaf at
// index i is part of the tree, ordered from the leaf's sibling up to the
// next-to-root level.
func (t *Tree) NeededHashes(i int) ([]crypto.Hash, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, ErrIndexOutOfRange
	}
	var chain []crypto.Hash
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		cur := t.levels[level]
		siblingIdx := idx ^ 1
		if siblingIdx < len(cur) {
			chain = append(chain, cur[siblingIdx])
		}
		// If there is no sibling (odd node carried up), no hash is needed
		// at this level: Verify must apply the same carry-up rule.
		idx /= 2
	}
	return chain, nil
}

// Verify checks that leaf, combined with chain, the node's position i, and
// the known leaf count numLeaves, hashes up to root. tag must match the one
// the tree was built with.
func Verify(tag string, leaf []byte, chain []crypto.Hash, i, numLeaves int, root crypto.Hash) bool {
	return VerifyHashed(tag, crypto.TaggedHash(tag, leaf), chain, i, numLeaves, root)
}

// VerifyHashed is Verify for a leaf that has already been hashed, used when
// verifying a share-hash-tree proof whose leaves are block-hash-tree roots.
func VerifyHashed(tag string, leafHash crypto.Hash, chain []crypto.Hash, i, numLeaves int, root crypto.Hash) bool {
	if i < 0 || i >= numLeaves {
		return false
	}
	levelSize := numLeaves
	idx := i
	cur := leafHash
	ci := 0
	for levelSize > 1 {
		siblingIdx := idx ^ 1
		hasSibling := siblingIdx < levelSize
		if hasSibling {
			if ci >= len(chain) {
				return false
			}
			sibling := chain[ci]
			ci++
			if idx%2 == 0 {
				cur = crypto.TaggedHash(tag, cur[:], sibling[:])
			} else {
				cur = crypto.TaggedHash(tag, sibling[:], cur[:])
			}
		}
		// else: odd node carried up unchanged, cur stays the same.
		idx /= 2
		levelSize = (levelSize + 1) / 2
	}
	return ci == len(chain) && cur == root
}
