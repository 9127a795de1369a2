// Package capability parses and emits the URI grammar that names files and
// directories in the store. A capability is a tagged, base32-encoded
// structured string; which tag it carries determines both what kind of
// object it names (immutable CHK, mutable SSK/MDMF, a tiny inlined LIT, or
// a DIR2 wrapping any of those) and what privilege level the holder has
// over it (write, read, or verify-only). Capabilities form a one-way
// lattice -- write implies read implies verify -- enforced by the
// derivations in the crypto package, not by anything in this package; this
// package only ever encodes/decodes, it never derives.
package capability

import (
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/brightvault/crypto"
)

// Kind identifies which of the capability variants a Capability holds.
type Kind int

const (
	KindLIT Kind = iota
	KindCHK
	KindCHKVerifier
	KindSSK
	KindSSKReadOnly
	KindSSKVerifier
	KindMDMF
	KindMDMFReadOnly
	KindMDMFVerifier
	KindDIR2
	KindDIR2ReadOnly
	KindDIR2Verifier
	KindDIR2MDMF
	KindDIR2MDMFReadOnly
	KindDIR2MDMFVerifier
)

var tagNames = map[Kind]string{
	KindLIT:              "LIT",
	KindCHK:              "CHK",
	KindCHKVerifier:      "CHK-Verifier",
	KindSSK:              "SSK",
	KindSSKReadOnly:      "SSK-RO",
	KindSSKVerifier:      "SSK-Verifier",
	KindMDMF:             "MDMF",
	KindMDMFReadOnly:     "MDMF-RO",
	KindMDMFVerifier:     "MDMF-Verifier",
	KindDIR2:             "DIR2",
	KindDIR2ReadOnly:     "DIR2-RO",
	KindDIR2Verifier:     "DIR2-Verifier",
	KindDIR2MDMF:         "DIR2-MDMF",
	KindDIR2MDMFReadOnly: "DIR2-MDMF-RO",
	KindDIR2MDMFVerifier: "DIR2-MDMF-Verifier",
}

var namesToTag = func() map[string]Kind {
	m := make(map[string]Kind, len(tagNames))
	for k, v := range tagNames {
		m[v] = k
	}
	return m
}()

// CapabilityParseError is returned for any malformed capability string. It
// is fatal to the operation that produced it: a capability either parses or
// it doesn't, there is no partial-credit recovery.
type CapabilityParseError struct {
	Input  string
	Reason string
}

func (e CapabilityParseError) Error() string {
	return fmt.Sprintf("capability parse error: %s (input: %q)", e.Reason, e.Input)
}

// Capability is the parsed form of a "URI:TAG:..." string. Not every field
// is populated for every Kind; see the per-kind constructors below for
// which fields apply.
type Capability struct {
	Kind Kind

	// Primary carries the writekey (SSK/MDMF), the readkey (CHK and the
	// -RO variants) or the storage-index (*-Verifier variants). Its meaning
	// is Kind-dependent.
	Primary []byte

	// Secondary carries the UEB-hash for CHK-family capabilities.
	Secondary []byte

	K, N int
	Size uint64

	// LiteralData holds the inlined file contents of a LIT capability.
	LiteralData []byte

	// Wrapped is the file capability a DIR2 capability wraps.
	Wrapped *Capability

	// opaque is set for a ro.-prefixed capability this client doesn't
	// understand the internals of but must still round-trip byte-for-byte,
	// per the forward-compatibility requirement in the grammar.
	opaque string
}

var b32encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func b32encode(b []byte) string { return strings.ToLower(b32encoding.EncodeToString(b)) }

func b32decode(s string) ([]byte, error) { return b32encoding.DecodeString(strings.ToUpper(s)) }

// NewCHK builds a CHK (immutable read) capability.
func NewCHK(readkey [crypto.WriteKeySize]byte, uebHash crypto.Hash, k, n int, size uint64) Capability {
	return Capability{Kind: KindCHK, Primary: append([]byte(nil), readkey[:]...), Secondary: append([]byte(nil), uebHash[:]...), K: k, N: n, Size: size}
}

// NewCHKVerifier builds a CHK-Verifier capability.
func NewCHKVerifier(si crypto.StorageIndex, uebHash crypto.Hash, k, n int, size uint64) Capability {
	return Capability{Kind: KindCHKVerifier, Primary: append([]byte(nil), si[:]...), Secondary: append([]byte(nil), uebHash[:]...), K: k, N: n, Size: size}
}

// NewLIT builds a literal capability inlining data directly.
func NewLIT(data []byte) Capability {
	return Capability{Kind: KindLIT, LiteralData: append([]byte(nil), data...)}
}

// NewSSK builds a mutable write capability from a signing secret key.
func NewSSK(writekey []byte) Capability {
	return Capability{Kind: KindSSK, Primary: append([]byte(nil), writekey...)}
}

// NewSSKReadOnly builds a mutable read capability from a readkey.
func NewSSKReadOnly(readkey []byte) Capability {
	return Capability{Kind: KindSSKReadOnly, Primary: append([]byte(nil), readkey...)}
}

// NewSSKVerifier builds a mutable verify-only capability from a
// storage-index.
func NewSSKVerifier(si crypto.StorageIndex) Capability {
	return Capability{Kind: KindSSKVerifier, Primary: append([]byte(nil), si[:]...)}
}

// NewDIR2 wraps a file capability as a directory capability of the
// corresponding privilege level.
func NewDIR2(wrapped Capability) (Capability, error) {
	var kind Kind
	switch wrapped.Kind {
	case KindSSK:
		kind = KindDIR2
	case KindSSKReadOnly:
		kind = KindDIR2ReadOnly
	case KindSSKVerifier:
		kind = KindDIR2Verifier
	case KindMDMF:
		kind = KindDIR2MDMF
	case KindMDMFReadOnly:
		kind = KindDIR2MDMFReadOnly
	case KindMDMFVerifier:
		kind = KindDIR2MDMFVerifier
	default:
		return Capability{}, CapabilityParseError{Reason: "DIR2 can only wrap a mutable file capability"}
	}
	w := wrapped
	return Capability{Kind: kind, Wrapped: &w}, nil
}

// IsMutable reports whether a Kind names a mutable (SSK/MDMF-family)
// capability, including one wrapped in a DIR2. Dispatch on this method or
// on Kind directly; never duck-type by inspecting field presence.
func (c Capability) IsMutable() bool {
	switch c.Kind {
	case KindSSK, KindSSKReadOnly, KindSSKVerifier,
		KindMDMF, KindMDMFReadOnly, KindMDMFVerifier,
		KindDIR2, KindDIR2ReadOnly, KindDIR2Verifier,
		KindDIR2MDMF, KindDIR2MDMFReadOnly, KindDIR2MDMFVerifier:
		return true
	default:
		return false
	}
}

// IsDirectory reports whether a Kind is one of the DIR2 variants.
func (c Capability) IsDirectory() bool {
	switch c.Kind {
	case KindDIR2, KindDIR2ReadOnly, KindDIR2Verifier, KindDIR2MDMF, KindDIR2MDMFReadOnly, KindDIR2MDMFVerifier:
		return true
	default:
		return false
	}
}

// String emits the canonical "URI:TAG:..." form of the capability. Parse
// followed by String is the identity for every valid capability, including
// an opaque ro.-prefixed one round-tripped verbatim.
func (c Capability) String() string {
	if c.opaque != "" {
		return c.opaque
	}
	if c.Wrapped != nil {
		// DIR2 capabilities are flat on the wire: the wrapped file cap's own
		// fields appear directly after the DIR2 tag, not as a nested "URI:..."
		// string.
		return "URI:" + tagNames[c.Kind] + ":" + b32encode(c.Wrapped.Primary)
	}

	tag := tagNames[c.Kind]
	switch c.Kind {
	case KindLIT:
		return "URI:LIT:" + b32encode(c.LiteralData)
	case KindCHK, KindCHKVerifier:
		return fmt.Sprintf("URI:%s:%s:%s:%d:%d:%d", tag, b32encode(c.Primary), b32encode(c.Secondary), c.K, c.N, c.Size)
	default:
		return "URI:" + tag + ":" + b32encode(c.Primary)
	}
}

// Parse decodes a capability string. It rejects malformed input with a
// CapabilityParseError rather than returning a zero-value Capability, so
// callers can never mistake a parse failure for an empty-but-valid cap.
func Parse(s string) (Capability, error) {
	if strings.HasPrefix(s, "ro.") {
		// Forward-compatible opaque readcap: preserved byte-for-byte, never
		// interpreted.
		return Capability{opaque: s}, nil
	}
	if !strings.HasPrefix(s, "URI:") {
		return Capability{}, CapabilityParseError{Input: s, Reason: "missing URI: prefix"}
	}
	rest := strings.TrimPrefix(s, "URI:")

	// DIR2 variants are flat: the DIR2 tag is immediately followed by the
	// wrapped file capability's own fields, not a nested "tag:fields" cap.
	dirWrappedKind := map[string]Kind{
		"DIR2":               KindSSK,
		"DIR2-RO":            KindSSKReadOnly,
		"DIR2-Verifier":      KindSSKVerifier,
		"DIR2-MDMF":          KindMDMF,
		"DIR2-MDMF-RO":       KindMDMFReadOnly,
		"DIR2-MDMF-Verifier": KindMDMFVerifier,
	}
	for _, dirTag := range []string{"DIR2-MDMF-Verifier", "DIR2-MDMF-RO", "DIR2-MDMF", "DIR2-Verifier", "DIR2-RO", "DIR2"} {
		prefix := dirTag + ":"
		if strings.HasPrefix(rest, prefix) {
			primary, err := b32decode(strings.TrimPrefix(rest, prefix))
			if err != nil {
				return Capability{}, CapabilityParseError{Input: s, Reason: "bad base32: " + err.Error()}
			}
			kind := namesToTag[dirTag]
			wrapped := Capability{Kind: dirWrappedKind[dirTag], Primary: primary}
			return Capability{Kind: kind, Wrapped: &wrapped}, nil
		}
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 2 {
		return Capability{}, CapabilityParseError{Input: s, Reason: "too few fields"}
	}
	tag, fields := parts[0], parts[1:]
	kind, ok := namesToTag[tag]
	if !ok {
		return Capability{}, CapabilityParseError{Input: s, Reason: "unrecognized tag " + tag}
	}

	if kind == KindLIT {
		data, err := b32decode(fields[0])
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad base32: " + err.Error()}
		}
		return NewLIT(data), nil
	}

	if kind == KindCHK || kind == KindCHKVerifier {
		if len(fields) != 5 {
			return Capability{}, CapabilityParseError{Input: s, Reason: "CHK capability needs 5 fields"}
		}
		primary, err := b32decode(fields[0])
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad base32 primary: " + err.Error()}
		}
		secondary, err := b32decode(fields[1])
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad base32 secondary: " + err.Error()}
		}
		k, err := strconv.Atoi(fields[2])
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad k: " + err.Error()}
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad n: " + err.Error()}
		}
		size, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return Capability{}, CapabilityParseError{Input: s, Reason: "bad size: " + err.Error()}
		}
		return Capability{Kind: kind, Primary: primary, Secondary: secondary, K: k, N: n, Size: size}, nil
	}

	// SSK/MDMF family: a single base32 primary field (writekey, readkey, or
	// storage-index depending on Kind).
	primary, err := b32decode(fields[0])
	if err != nil {
		return Capability{}, CapabilityParseError{Input: s, Reason: "bad base32: " + err.Error()}
	}
	return Capability{Kind: kind, Primary: primary}, nil
}
