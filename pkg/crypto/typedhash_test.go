package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func testDomain() Domain {
	return Domain{
		Name:              "Slipstream",
		Version:           "1",
		ChainID:           1337,
		VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
}

func TestDomainSeparatorDeterministic(t *testing.T) {
	d := testDomain()
	if d.Separator() != d.Separator() {
		t.Fatal("separator not deterministic")
	}

	variants := []Domain{
		{Name: "Other", Version: "1", ChainID: 1337, VerifyingContract: d.VerifyingContract},
		{Name: "Slipstream", Version: "2", ChainID: 1337, VerifyingContract: d.VerifyingContract},
		{Name: "Slipstream", Version: "1", ChainID: 1, VerifyingContract: d.VerifyingContract},
		{Name: "Slipstream", Version: "1", ChainID: 1337, VerifyingContract: common.Address{}},
	}
	for i, v := range variants {
		if v.Separator() == d.Separator() {
			t.Errorf("variant %d collides with base separator", i)
		}
	}
}

func TestStructHasherWordLayout(t *testing.T) {
	typeHash := eth_crypto.Keccak256Hash([]byte("Probe(address a,bool b,uint64 n)"))
	addr := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")

	h := NewStructHasher(typeHash)
	h.PushAddress(addr)
	h.PushBool(true)
	h.PushUint64(513)

	// Reproduce the abi.encode layout by hand and compare digests.
	var want []byte
	want = append(want, typeHash[:]...)
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	want = append(want, word...)
	word = make([]byte, 32)
	word[31] = 1
	want = append(want, word...)
	word = make([]byte, 32)
	word[30], word[31] = 0x02, 0x01
	want = append(want, word...)

	if h.Sum() != eth_crypto.Keccak256Hash(want) {
		t.Error("struct hash does not match hand-built abi.encode layout")
	}
}

func TestStructHasherFieldSensitivity(t *testing.T) {
	typeHash := eth_crypto.Keccak256Hash([]byte("Probe(uint256 q,uint256 p)"))
	base := func(q, p uint64) common.Hash {
		h := NewStructHasher(typeHash)
		h.PushU256(uint256.NewInt(q))
		h.PushU256(uint256.NewInt(p))
		return h.Sum()
	}

	if base(1, 2) != base(1, 2) {
		t.Error("hash not deterministic")
	}
	if base(1, 2) == base(2, 1) {
		t.Error("swapped fields must change the hash")
	}
	if base(1, 2) == base(1, 3) {
		t.Error("changing one field must change the hash")
	}
}

func TestTypedDigestPrefix(t *testing.T) {
	d := testDomain()
	structHash := eth_crypto.Keccak256Hash([]byte("struct"))

	want := eth_crypto.Keccak256Hash(append(append([]byte{0x19, 0x01},
		d.Separator().Bytes()...), structHash.Bytes()...))
	if TypedDigest(d.Separator(), structHash) != want {
		t.Error("typed digest does not follow \\x19\\x01 construction")
	}
}
