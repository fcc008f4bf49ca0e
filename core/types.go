// Package core implements the chain core: the ledger, its storage
// change-set engine, the runtime VM bridge, and the epoch/validator
// rotation that drives block production authority.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash is a 32-byte content identifier.
type Hash [32]byte

// NullHash is the distinguished zero hash used for genesis linkage.
var NullHash Hash

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsNull reports whether h is the distinguished null hash.
func (h Hash) IsNull() bool { return h == NullHash }

// HashBytes computes the deterministic content hash used throughout the
// chain core for blocks, transactions and epochs.
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// Address is a 32-byte public-identity token, derived either from a public
// key or from the SHA-256 of a canonical name.
type Address [32]byte

// AddressZero is the reserved all-zero address (module/escrow accounts).
var AddressZero Address

// Hex returns the lowercase hex encoding of the address, prefixed with 0x.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the reserved zero address.
func (a Address) IsZero() bool { return a == AddressZero }

// AddressFromPublicKey derives an Address from a raw public key, hashing it
// down to the fixed 32-byte identity token.
func AddressFromPublicKey(pub []byte) Address {
	return Address(sha256.Sum256(pub))
}

// AddressFromName derives an Address from a canonical chain or contract name
// by hashing its lowercased form, matching the Chain.Address derivation rule.
func AddressFromName(name string) Address {
	return Address(sha256.Sum256([]byte(strings.ToLower(name))))
}
