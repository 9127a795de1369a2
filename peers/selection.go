// Package peers implements the deterministic server permutation that
// decides where a file's shares land, and the happiness predicate that
// decides whether a given placement is acceptable. Every client computes
// the same permutation for the same storage-index, so two independent
// uploaders of the same convergent file pick the same servers in the same
// order -- which is what makes "second uploader sees already_have" work at
// all.
package peers

import (
	"crypto/sha256"
	"sort"

	"github.com/dreamware/brightvault/crypto"
)

// Announcement is what the introduction/discovery subsystem hands back for
// each reachable storage server: enough to place shares on it and to
// reconnect to it later. Everything past these three fields (transport
// address, protocol version, advertised price) belongs to the discovery
// subsystem, not to peer selection.
type Announcement struct {
	ServerID         string
	FURL             string
	PermutationSeed  [32]byte
}

// Permute returns the servers in the deterministic order the upload/download
// path should try them for storage-index si: ascending by
// SHA-256(permutation_seed || si). preferred, if non-empty, is moved to the
// front of the result while preserving each group's internal relative
// order.
func Permute(servers []Announcement, si crypto.StorageIndex, preferred map[string]bool) []Announcement {
	type keyed struct {
		ann Announcement
		key crypto.Hash
	}
	keys := make([]keyed, len(servers))
	for i, a := range servers {
		keys[i] = keyed{ann: a, key: crypto.Hash(sha256.Sum256(append(append([]byte{}, a.PermutationSeed[:]...), si[:]...)))}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return lessHash(keys[i].key, keys[j].key)
	})

	if len(preferred) == 0 {
		out := make([]Announcement, len(keys))
		for i, k := range keys {
			out[i] = k.ann
		}
		return out
	}

	var front, back []Announcement
	for _, k := range keys {
		if preferred[k.ann.ServerID] {
			front = append(front, k.ann)
		} else {
			back = append(back, k.ann)
		}
	}
	return append(front, back...)
}

func lessHash(a, b crypto.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Placement records, for a single upload, which server (if any) ended up
// holding each share number.
type Placement map[int]string // share number -> server ID

// Happy reports whether a placement satisfies the happiness predicate: the
// bipartite graph of shares-to-servers admits a matching of size >= happy
// in which every matched server is distinct. Since Placement already maps
// each share to at most one server, a matching of servers simply means
// counting each server at most once -- the distinct-server count is the
// matching size.
func Happy(p Placement, happy int) bool {
	return DistinctServers(p) >= happy
}

// DistinctServers counts the number of distinct servers holding at least
// one share in the placement.
func DistinctServers(p Placement) int {
	seen := make(map[string]bool, len(p))
	for _, server := range p {
		if server != "" {
			seen[server] = true
		}
	}
	return len(seen)
}
