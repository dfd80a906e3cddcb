package bundle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/encoding"
)

// Four schemas, one per sub-variant combination. Partial schemas commit
// to the signed fill bounds, never the node-chosen fill; flash schemas
// commit to the round number in place of nonce+deadline. Node-chosen
// extraFeeAsset0 is absent everywhere.
var (
	userExactStandingTypeHash = eth_crypto.Keccak256Hash([]byte(
		"StandingOrder(" + userCommonFields +
			"uint128 quantity,uint128 maxExtraFeeAsset0,uint64 nonce,uint40 deadline)"))

	userPartialStandingTypeHash = eth_crypto.Keccak256Hash([]byte(
		"PartialStandingOrder(" + userCommonFields +
			"uint128 minQuantityIn,uint128 maxQuantityIn,uint128 maxExtraFeeAsset0,uint64 nonce,uint40 deadline)"))

	userExactFlashTypeHash = eth_crypto.Keccak256Hash([]byte(
		"FlashOrder(" + userCommonFields +
			"uint128 quantity,uint128 maxExtraFeeAsset0,uint64 validForBlock)"))

	userPartialFlashTypeHash = eth_crypto.Keccak256Hash([]byte(
		"PartialFlashOrder(" + userCommonFields +
			"uint128 minQuantityIn,uint128 maxQuantityIn,uint128 maxExtraFeeAsset0,uint64 validForBlock)"))
)

const userCommonFields = "uint32 refId," +
	"address assetIn," +
	"address assetOut," +
	"uint256 minPrice," +
	"bool useInternal," +
	"address recipient," +
	"bytes32 hookPayloadHash,"

// Validity is the tagged union behind the standing/flash storage slot:
// the two variants are distinct types, so a standing order's nonce can
// never be read as a flash order's round number.
type Validity interface {
	isValidity()
}

// StandingValidity makes an order reusable until its nonce is spent or
// its deadline (Unix seconds, 0 = no expiry) passes.
type StandingValidity struct {
	Nonce    uint64
	Deadline uint64 // u40 on the wire
}

// FlashValidity restricts an order to a single settlement round. The
// round number is taken from the environment, never from the wire.
type FlashValidity struct {
	ValidForBlock uint64
}

func (StandingValidity) isValidity() {}
func (FlashValidity) isValidity()    {}

// UserBuffer is the scratch record for one user order. Reused across a
// section; Init wipes all fields and reads the variant byte plus the
// external reference id.
type UserBuffer struct {
	Variant UserVariant
	RefID   uint32

	AssetIn  common.Address
	AssetOut common.Address
	MinPrice *uint256.Int

	Recipient common.Address

	// HookPayload is hookAddress[20] || calldata; nil when NoHook.
	HookPayload []byte

	Validity Validity

	// Partial orders only: signed fill bounds.
	MinQuantityIn *uint256.Int
	MaxQuantityIn *uint256.Int

	Quantity          *uint256.Int
	MaxExtraFeeAsset0 *uint256.Int
	ExtraFeeAsset0    *uint256.Int

	pair *Pair
}

// Init wipes the buffer and reads the variant byte and reference id.
func (b *UserBuffer) Init(r *encoding.Reader) error {
	*b = UserBuffer{}

	variant, err := r.ReadU8()
	if err != nil {
		return err
	}
	b.Variant = UserVariant(variant)

	b.RefID, err = r.ReadU32()
	return err
}

// ReadFrom populates the remaining fields from the wire, strictly in
// encoding order, up to (not including) the signature. Flash orders take
// their validity from validForBlock.
func (b *UserBuffer) ReadFrom(r *encoding.Reader, pairs []Pair, validForBlock uint64) error {
	pairIndex, err := r.ReadU16()
	if err != nil {
		return err
	}
	if b.pair, err = pairAt(pairs, pairIndex); err != nil {
		return err
	}
	b.AssetIn, b.AssetOut = b.pair.InOut(b.Variant.ZeroForOne())

	if b.MinPrice, err = r.ReadU256(); err != nil {
		return err
	}

	if b.Variant.RecipientIsSome() {
		if b.Recipient, err = r.ReadAddress(); err != nil {
			return err
		}
	}

	if !b.Variant.NoHook() {
		end, err := r.ReadU24End()
		if err != nil {
			return err
		}
		payload, err := r.ReadBytesTo(end)
		if err != nil {
			return err
		}
		if len(payload) < common.AddressLength {
			return fmt.Errorf("%w: hook payload of %d bytes cannot hold an address",
				encoding.ErrOutOfBounds, len(payload))
		}
		b.HookPayload = payload
	}

	if b.Variant.IsStanding() {
		nonce, err := r.ReadU64()
		if err != nil {
			return err
		}
		deadline, err := r.ReadU40()
		if err != nil {
			return err
		}
		b.Validity = StandingValidity{Nonce: nonce, Deadline: deadline}
	} else {
		b.Validity = FlashValidity{ValidForBlock: validForBlock}
	}

	if b.Variant.QuantitiesPartial() {
		if b.MinQuantityIn, err = r.ReadU128(); err != nil {
			return err
		}
		if b.MaxQuantityIn, err = r.ReadU128(); err != nil {
			return err
		}
	}

	if b.Quantity, err = r.ReadU128(); err != nil {
		return err
	}
	if b.MaxExtraFeeAsset0, err = r.ReadU128(); err != nil {
		return err
	}
	b.ExtraFeeAsset0, err = r.ReadU128()
	return err
}

// HookAddress returns the target of the order's hook. Only meaningful
// when the variant carries a hook payload.
func (b *UserBuffer) HookAddress() common.Address {
	return common.BytesToAddress(b.HookPayload[:common.AddressLength])
}

// HookCalldata returns the opaque bytes passed through to the hook.
func (b *UserBuffer) HookCalldata() []byte {
	return b.HookPayload[common.AddressLength:]
}

// StructHash computes the order's canonical commitment under the schema
// selected by the standing/flash and partial/exact sub-variants.
func (b *UserBuffer) StructHash() common.Hash {
	partial := b.Variant.QuantitiesPartial()

	var typeHash common.Hash
	switch v := b.Validity.(type) {
	case StandingValidity:
		typeHash = userExactStandingTypeHash
		if partial {
			typeHash = userPartialStandingTypeHash
		}
		return b.structHashWith(typeHash, partial, func(h *crypto.StructHasher) {
			h.PushUint64(v.Nonce)
			h.PushUint64(v.Deadline)
		})
	case FlashValidity:
		typeHash = userExactFlashTypeHash
		if partial {
			typeHash = userPartialFlashTypeHash
		}
		return b.structHashWith(typeHash, partial, func(h *crypto.StructHasher) {
			h.PushUint64(v.ValidForBlock)
		})
	default:
		panic("bundle: user buffer hashed before validity was set")
	}
}

func (b *UserBuffer) structHashWith(typeHash common.Hash, partial bool, pushValidity func(*crypto.StructHasher)) common.Hash {
	h := crypto.NewStructHasher(typeHash)
	h.PushUint32(b.RefID)
	h.PushAddress(b.AssetIn)
	h.PushAddress(b.AssetOut)
	h.PushU256(orZero(b.MinPrice))
	h.PushBool(b.Variant.UseInternal())
	h.PushAddress(b.Recipient)
	h.PushHash(eth_crypto.Keccak256Hash(b.HookPayload))
	if partial {
		h.PushU256(orZero(b.MinQuantityIn))
		h.PushU256(orZero(b.MaxQuantityIn))
	} else {
		h.PushU256(orZero(b.Quantity))
	}
	h.PushU256(orZero(b.MaxExtraFeeAsset0))
	pushValidity(h)
	return h.Sum()
}

// encodeFields writes the buffer back out in wire order, signature
// excluded.
func (b *UserBuffer) encodeFields(w *encoding.Writer, pairIndex uint16) {
	w.PutU8(uint8(b.Variant))
	w.PutU32(b.RefID)
	w.PutU16(pairIndex)
	w.PutU256(orZero(b.MinPrice))
	if b.Variant.RecipientIsSome() {
		w.PutAddress(b.Recipient)
	}
	if !b.Variant.NoHook() {
		w.PutU24Segment(b.HookPayload)
	}
	if b.Variant.IsStanding() {
		v := b.Validity.(StandingValidity)
		w.PutU64(v.Nonce)
		w.PutU40(v.Deadline)
	}
	if b.Variant.QuantitiesPartial() {
		w.PutU128(orZero(b.MinQuantityIn))
		w.PutU128(orZero(b.MaxQuantityIn))
	}
	w.PutU128(orZero(b.Quantity))
	w.PutU128(orZero(b.MaxExtraFeeAsset0))
	w.PutU128(orZero(b.ExtraFeeAsset0))
}
