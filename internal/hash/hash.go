// Package hash assigns content-addressed identity to scraped elements and
// screens. Digests are BLAKE3-256 over length-prefixed fields, so identical
// configurations always collapse to one row and adjacent fields can never
// collide across a boundary ("ab"+"c" vs "a"+"bc").
package hash

import (
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"

	"github.com/zeebo/blake3"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// Version is the current hash epoch, stored per row. Epoch 1 was a 32-bit
// FNV checksum used by the legacy command store; the consolidation engine
// remaps epoch-1 rows by recomputing from stored attributes.
const Version = 2

// Element computes the identity digest of an element from its identity
// fields only (class, resource id, text, label, bounds). Capability flags
// and tree position are behavioral and excluded on purpose.
func Element(a types.ElementAttrs) string {
	h := blake3.New()
	writeField(h, a.Class)
	writeField(h, a.ResourceID)
	writeField(h, a.Text)
	writeField(h, a.Label)
	writeField(h, a.Bounds.String())
	return hex.EncodeToString(h.Sum(nil))
}

// Screen computes the identity digest of a logical screen. The title must be
// the stable title; transient window identifiers would split one screen into
// many rows.
func Screen(pkg, stableTitle, activity string) string {
	h := blake3.New()
	writeField(h, pkg)
	writeField(h, stableTitle)
	writeField(h, activity)
	return hex.EncodeToString(h.Sum(nil))
}

// LegacyElement reproduces the epoch-1 digest (32-bit FNV-1a over a pipe
// join). Only the consolidation engine uses it, to match legacy rows before
// remapping them to epoch-2 hashes.
func LegacyElement(a types.ElementAttrs) string {
	h := fnv.New32a()
	h.Write([]byte(a.Class + "|" + a.ResourceID + "|" + a.Text + "|" + a.Label + "|" + a.Bounds.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a uvarint length prefix then the bytes, making field
// boundaries unambiguous in the digest input.
func writeField(h *blake3.Hasher, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	h.Write(buf[:n])
	h.Write([]byte(s))
}
