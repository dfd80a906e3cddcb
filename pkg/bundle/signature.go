package bundle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/encoding"
)

// ContractValidator answers ERC-1271-style validation for orders whose
// variant selects a contract signature instead of raw ECDSA.
type ContractValidator interface {
	// IsValidSignature reports whether sig authenticates digest on
	// behalf of from.
	IsValidSignature(from common.Address, digest common.Hash, sig []byte) bool
}

// readSigner consumes the order's signature from the wire and returns
// the authenticated party. The recovered or validated address IS the
// signer; there is no claimed-signer field to cross-check, so a
// signature over different content simply authenticates as someone else
// and fails whatever that party could not do.
func readSigner(r *encoding.Reader, isEcdsa bool, digest common.Hash, validator ContractValidator) (common.Address, error) {
	if isEcdsa {
		sig, err := r.ReadBytes(65)
		if err != nil {
			return common.Address{}, err
		}
		signer, err := crypto.RecoverAddress(digest.Bytes(), sig)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if signer == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: recovered zero address", ErrInvalidSignature)
		}
		return signer, nil
	}

	from, err := r.ReadAddress()
	if err != nil {
		return common.Address{}, err
	}
	end, err := r.ReadU24End()
	if err != nil {
		return common.Address{}, err
	}
	sig, err := r.ReadBytesTo(end)
	if err != nil {
		return common.Address{}, err
	}

	if from == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero contract signer", ErrInvalidSignature)
	}
	if validator == nil || !validator.IsValidSignature(from, digest, sig) {
		return common.Address{}, fmt.Errorf("%w: contract validation failed for %s", ErrInvalidSignature, from.Hex())
	}
	return from, nil
}

// resolveRecipient substitutes the authenticated signer for a zero
// recipient so settlement never pays the zero address.
func resolveRecipient(recipient, signer common.Address) common.Address {
	if recipient == (common.Address{}) {
		return signer
	}
	return recipient
}
