package bundle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/encoding"
	"github.com/uhyunpark/slipstream/pkg/ray"
)

// Pair is one tradeable asset pair with its current settlement price.
// Price1Over0 is Ray-scaled asset1 out per asset0 in; the reverse
// orientation is derived, never stored.
type Pair struct {
	Asset0      common.Address
	Asset1      common.Address
	Price1Over0 *uint256.Int
}

// OrientedPrice returns the asset-out-per-asset-in price for the given
// direction.
func (p *Pair) OrientedPrice(zeroForOne bool) *uint256.Int {
	if zeroForOne {
		return p.Price1Over0
	}
	// price validated non-zero at decode
	return ray.InvUnchecked(p.Price1Over0)
}

// InOut returns the (assetIn, assetOut) addresses for the direction.
func (p *Pair) InOut(zeroForOne bool) (common.Address, common.Address) {
	if zeroForOne {
		return p.Asset0, p.Asset1
	}
	return p.Asset1, p.Asset0
}

// decodeAssets reads the asset section: repeated 20-byte addresses,
// strictly ascending so every pair has one canonical encoding.
func decodeAssets(r *encoding.Reader) ([]common.Address, error) {
	end, err := r.ReadU24End()
	if err != nil {
		return nil, err
	}

	var assets []common.Address
	for r.Offset() < end {
		a, err := r.ReadAddress()
		if err != nil {
			return nil, err
		}
		if n := len(assets); n > 0 && bytes.Compare(assets[n-1].Bytes(), a.Bytes()) >= 0 {
			return nil, fmt.Errorf("%w: asset %s not in ascending order", ErrBadPairSection, a.Hex())
		}
		assets = append(assets, a)
	}
	if err := r.RequireSegmentEnd(end); err != nil {
		return nil, err
	}
	return assets, nil
}

// decodePairs reads the pair section: u16 indices into the asset list
// plus a Ray price, asset0 index strictly below asset1 index.
func decodePairs(r *encoding.Reader, assets []common.Address) ([]Pair, error) {
	end, err := r.ReadU24End()
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for r.Offset() < end {
		idx0, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		idx1, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		price, err := r.ReadU256()
		if err != nil {
			return nil, err
		}

		if int(idx0) >= len(assets) || int(idx1) >= len(assets) {
			return nil, fmt.Errorf("%w: pair indices (%d, %d) out of range", ErrBadPairSection, idx0, idx1)
		}
		if idx0 >= idx1 {
			return nil, fmt.Errorf("%w: pair indices (%d, %d) not ascending", ErrBadPairSection, idx0, idx1)
		}
		if price.IsZero() {
			return nil, fmt.Errorf("%w: zero price for pair (%d, %d)", ErrBadPairSection, idx0, idx1)
		}

		pairs = append(pairs, Pair{
			Asset0:      assets[idx0],
			Asset1:      assets[idx1],
			Price1Over0: price,
		})
	}
	if err := r.RequireSegmentEnd(end); err != nil {
		return nil, err
	}
	return pairs, nil
}

func pairAt(pairs []Pair, index uint16) (*Pair, error) {
	if int(index) >= len(pairs) {
		return nil, fmt.Errorf("%w: index %d, bundle has %d pairs", ErrUnknownPair, index, len(pairs))
	}
	return &pairs[index], nil
}
