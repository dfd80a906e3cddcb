package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	privHex := signer.PrivateKeyHex()
	if len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	signer2, err := FromPrivateKeyHex(privHex)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if signer2.Address() != signer1.Address() {
		t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256([]byte("slipstream order digest"))

	signature, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(signature))
	}

	recovered, err := RecoverAddress(digest, signature)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	// Ethereum 27/28 V convention must recover identically
	shifted := make([]byte, 65)
	copy(shifted, signature)
	shifted[64] += 27
	recovered2, err := RecoverAddress(digest, shifted)
	if err != nil {
		t.Fatalf("failed to recover shifted-v: %v", err)
	}
	if recovered2 != signer.Address() {
		t.Errorf("shifted-v recovered = %s, want %s", recovered2.Hex(), signer.Address().Hex())
	}
}

func TestVerifySignature(t *testing.T) {
	signer, _ := GenerateKey()
	other, _ := GenerateKey()
	digest := eth_crypto.Keccak256([]byte("payload"))
	sig, _ := signer.Sign(digest)

	if !VerifySignature(signer.Address(), digest, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(other.Address(), digest, sig) {
		t.Error("signature accepted for wrong address")
	}

	// Corrupting any byte must break verification
	bad := make([]byte, 65)
	copy(bad, sig)
	bad[10] ^= 0xff
	if VerifySignature(signer.Address(), digest, bad) {
		t.Error("corrupted signature accepted")
	}
}

func TestSignRejectsBadDigestLength(t *testing.T) {
	signer, _ := GenerateKey()
	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("Sign accepted non-32-byte digest")
	}
	if _, err := RecoverAddress([]byte("short"), make([]byte, 65)); err == nil {
		t.Error("RecoverAddress accepted non-32-byte digest")
	}
	if _, err := RecoverAddress(make([]byte, 32), make([]byte, 64)); err == nil {
		t.Error("RecoverAddress accepted 64-byte signature")
	}
}
