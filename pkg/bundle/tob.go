package bundle

import (
	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/encoding"
)

// tobTypeHash commits to the top-of-block schema. Node-chosen
// gasUsedAsset0 is deliberately absent: the signer only bounds it via
// maxGasAsset0.
var tobTypeHash = eth_crypto.Keccak256Hash([]byte(
	"TopOfBlockOrder(" +
		"uint128 quantityIn," +
		"uint128 quantityOut," +
		"uint128 maxGasAsset0," +
		"bool useInternal," +
		"address assetIn," +
		"address assetOut," +
		"address recipient," +
		"uint64 validForBlock)"))

// TopOfBlockBuffer is the scratch record for one priority order. One
// instance is reused across a section; Init wipes it so no field from a
// previous order can leak into the next struct hash.
type TopOfBlockBuffer struct {
	Variant       ToBVariant
	QuantityIn    *uint256.Int
	QuantityOut   *uint256.Int
	MaxGasAsset0  *uint256.Int
	GasUsedAsset0 *uint256.Int
	AssetIn       common.Address
	AssetOut      common.Address
	Recipient     common.Address
	ValidForBlock uint64
}

// Init resets every field to its zero value.
func (b *TopOfBlockBuffer) Init() {
	*b = TopOfBlockBuffer{}
}

// ReadFrom populates the buffer from the wire, strictly in encoding
// order, up to (not including) the signature. The caller sets
// ValidForBlock from the round before hashing.
func (b *TopOfBlockBuffer) ReadFrom(r *encoding.Reader, pairs []Pair) error {
	variant, err := r.ReadU8()
	if err != nil {
		return err
	}
	b.Variant = ToBVariant(variant)

	if b.QuantityIn, err = r.ReadU128(); err != nil {
		return err
	}
	if b.QuantityOut, err = r.ReadU128(); err != nil {
		return err
	}
	if b.MaxGasAsset0, err = r.ReadU128(); err != nil {
		return err
	}
	if b.GasUsedAsset0, err = r.ReadU128(); err != nil {
		return err
	}

	pairIndex, err := r.ReadU16()
	if err != nil {
		return err
	}
	pair, err := pairAt(pairs, pairIndex)
	if err != nil {
		return err
	}
	b.AssetIn, b.AssetOut = pair.InOut(b.Variant.ZeroForOne())

	if b.Variant.RecipientIsSome() {
		if b.Recipient, err = r.ReadAddress(); err != nil {
			return err
		}
	}
	return nil
}

// StructHash computes the order's canonical commitment, the value a
// signature authenticates and the replay key.
func (b *TopOfBlockBuffer) StructHash() common.Hash {
	h := crypto.NewStructHasher(tobTypeHash)
	h.PushU256(orZero(b.QuantityIn))
	h.PushU256(orZero(b.QuantityOut))
	h.PushU256(orZero(b.MaxGasAsset0))
	h.PushBool(b.Variant.UseInternal())
	h.PushAddress(b.AssetIn)
	h.PushAddress(b.AssetOut)
	h.PushAddress(b.Recipient)
	h.PushUint64(b.ValidForBlock)
	return h.Sum()
}

// encodeFields writes the buffer back out in wire order, signature
// excluded. PairIndex is supplied by the builder since the buffer only
// holds resolved addresses.
func (b *TopOfBlockBuffer) encodeFields(w *encoding.Writer, pairIndex uint16) {
	w.PutU8(uint8(b.Variant))
	w.PutU128(orZero(b.QuantityIn))
	w.PutU128(orZero(b.QuantityOut))
	w.PutU128(orZero(b.MaxGasAsset0))
	w.PutU128(orZero(b.GasUsedAsset0))
	w.PutU16(pairIndex)
	if b.Variant.RecipientIsSome() {
		w.PutAddress(b.Recipient)
	}
}
