package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte keccak256 digest. It doubles as a name token identifier
// (the label hash of the canonical name) and as a naming-system node.
type Hash [32]byte

// ZeroHash is the root node of the naming system and the nil token id.
var ZeroHash Hash

// Keccak256 hashes the concatenation of the given byte slices with legacy
// Keccak, the digest the external naming system keys its nodes by.
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// ParseHash validates and returns a Hash from a 0x-prefixed 64-digit hex string.
func ParseHash(s string) (Hash, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Hash{}, fmt.Errorf("hash must be 0x-prefixed: %q", s)
	}
	body := s[2:]
	if len(body) != 64 {
		return Hash{}, fmt.Errorf("hash must be 32 bytes, got %d hex digits", len(body))
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return Hash{}, fmt.Errorf("hash is not valid hex: %q", s)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// String returns the 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns the raw digest.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Subnode derives the child node for a label under a parent node,
// keccak256(parent ++ label), matching the naming-system convention.
func Subnode(parent, label Hash) Hash {
	return Keccak256(parent[:], label[:])
}

// Namehash computes the node for a dotted name ("dcl.eth") by folding labels
// right to left over the root node.
func Namehash(name string) Hash {
	node := ZeroHash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := Keccak256([]byte(labels[i]))
		node = Subnode(node, label)
	}
	return node
}
