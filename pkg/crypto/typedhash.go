package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// EIP-712 typed-data hashing, built by hand rather than through
// apitypes: struct hashes here must match a fixed external schema
// word for word, so the encoding is spelled out explicitly.

// eip712DomainTypeHash is the keccak256 hash of the EIP712Domain type definition.
var eip712DomainTypeHash = crypto.Keccak256Hash(
	[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

// Domain is the EIP-712 domain separator input. It prevents replaying a
// signed order across chains or deployments.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator computes the domain separator struct hash.
func (d Domain) Separator() common.Hash {
	h := NewStructHasher(eip712DomainTypeHash)
	h.PushHash(crypto.Keccak256Hash([]byte(d.Name)))
	h.PushHash(crypto.Keccak256Hash([]byte(d.Version)))
	h.PushUint64(d.ChainID)
	h.PushAddress(d.VerifyingContract)
	return h.Sum()
}

// TypedDigest computes the final signing digest:
// keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDigest(domainSeparator, structHash common.Hash) common.Hash {
	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator[:]...)
	raw = append(raw, structHash[:]...)
	return crypto.Keccak256Hash(raw)
}

// StructHasher accumulates a typehash followed by the struct's fields as
// 32-byte words, abi.encode style. Field order is part of the schema.
type StructHasher struct {
	buf []byte
}

func NewStructHasher(typeHash common.Hash) *StructHasher {
	h := &StructHasher{buf: make([]byte, 0, 32*12)}
	h.buf = append(h.buf, typeHash[:]...)
	return h
}

func (h *StructHasher) pushWord(word [32]byte) {
	h.buf = append(h.buf, word[:]...)
}

func (h *StructHasher) PushHash(v common.Hash) {
	h.pushWord(v)
}

// PushAddress left-pads the 20-byte address to a word.
func (h *StructHasher) PushAddress(a common.Address) {
	var word [32]byte
	copy(word[12:], a.Bytes())
	h.pushWord(word)
}

func (h *StructHasher) PushBool(v bool) {
	var word [32]byte
	if v {
		word[31] = 1
	}
	h.pushWord(word)
}

func (h *StructHasher) PushUint64(v uint64) {
	var word [32]byte
	big.NewInt(0).SetUint64(v).FillBytes(word[:])
	h.pushWord(word)
}

func (h *StructHasher) PushUint32(v uint32) {
	h.PushUint64(uint64(v))
}

// PushU256 pushes a uint256 (also used for uint128 fields, which occupy
// a full word in typed-data encoding).
func (h *StructHasher) PushU256(v *uint256.Int) {
	var word [32]byte
	v.WriteToArray32(&word)
	h.pushWord(word)
}

// Sum returns keccak256(typehash || word_0 || ... || word_n).
func (h *StructHasher) Sum() common.Hash {
	return crypto.Keccak256Hash(h.buf)
}
