// Package blockctx resolves caller-supplied block references into the
// concrete block and batch context a VM execution needs, rejecting references
// to data that has been pruned from local storage.
package blockctx

import (
	"fmt"

	"github.com/ava-labs/libevm/common"
)

type refKind uint8

const (
	kindPending refKind = iota
	kindLatest
	kindCommitted
	kindEarliest
	kindNumber
	kindHash
)

// Reference identifies a block by number, hash, or symbolic tag.
type Reference struct {
	kind   refKind
	number uint64
	hash   common.Hash
}

// Pending refers to the in-progress block whose batch has not been sealed.
func Pending() Reference { return Reference{kind: kindPending} }

// Latest refers to the most recent sealed block.
func Latest() Reference { return Reference{kind: kindLatest} }

// Committed refers to the most recent block of a committed batch.
func Committed() Reference { return Reference{kind: kindCommitted} }

// Earliest refers to the oldest block of the chain.
func Earliest() Reference { return Reference{kind: kindEarliest} }

// ByNumber refers to an explicit block number.
func ByNumber(n uint64) Reference { return Reference{kind: kindNumber, number: n} }

// ByHash refers to an explicit block hash.
func ByHash(h common.Hash) Reference { return Reference{kind: kindHash, hash: h} }

// IsPending reports whether the reference is the pending tag.
func (r Reference) IsPending() bool { return r.kind == kindPending }

// Number returns the explicit block number and whether the reference carries one.
func (r Reference) Number() (uint64, bool) {
	return r.number, r.kind == kindNumber
}

// Hash returns the explicit block hash and whether the reference carries one.
func (r Reference) Hash() (common.Hash, bool) {
	return r.hash, r.kind == kindHash
}

// movesWithChainHead reports whether the reference tracks the advancing chain
// head rather than a fixed block.
func (r Reference) movesWithChainHead() bool {
	switch r.kind {
	case kindPending, kindLatest, kindCommitted:
		return true
	default:
		return false
	}
}

func (r Reference) String() string {
	switch r.kind {
	case kindPending:
		return "pending"
	case kindLatest:
		return "latest"
	case kindCommitted:
		return "committed"
	case kindEarliest:
		return "earliest"
	case kindNumber:
		return fmt.Sprintf("#%d", r.number)
	case kindHash:
		return r.hash.Hex()
	default:
		return fmt.Sprintf("unknown(%d)", r.kind)
	}
}
