package node

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// VerifyFunc decides whether a contract wallet accepts a signature over
// a digest, the off-chain stand-in for an ERC-1271 isValidSignature
// call.
type VerifyFunc func(digest common.Hash, sig []byte) bool

// ValidatorRegistry maps contract wallets to their verification logic.
// Orders from unregistered wallets fail signature validation.
type ValidatorRegistry struct {
	mu      sync.RWMutex
	wallets map[common.Address]VerifyFunc
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{wallets: make(map[common.Address]VerifyFunc)}
}

func (r *ValidatorRegistry) Register(wallet common.Address, verify VerifyFunc) {
	r.mu.Lock()
	r.wallets[wallet] = verify
	r.mu.Unlock()
}

func (r *ValidatorRegistry) IsValidSignature(from common.Address, digest common.Hash, sig []byte) bool {
	r.mu.RLock()
	verify, ok := r.wallets[from]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return verify(digest, sig)
}
