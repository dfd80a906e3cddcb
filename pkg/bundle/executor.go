package bundle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/encoding"
	"github.com/uhyunpark/slipstream/pkg/ray"
)

// Env is the settlement round the bundle executes in. Flash and
// top-of-block orders bind to Block; standing-order deadlines compare
// against Timestamp (Unix seconds).
type Env struct {
	Block     uint64
	Timestamp uint64
}

// Ledger receives settlement dispatches. Take pulls assetIn from the
// authenticated signer; Save pushes assetOut to the recipient,
// optionally routed to internal balances.
type Ledger interface {
	Take(from common.Address, asset common.Address, amount *uint256.Int, useInternal bool) error
	Save(to common.Address, asset common.Address, amount *uint256.Int, useInternal bool) error
}

// Invalidator consumes replay keys. Both methods fail on reuse and must
// observe marks staged earlier in the same bundle.
type Invalidator interface {
	UseOrderHash(hash common.Hash) error
	UseNonce(owner common.Address, nonce uint64) error
}

// HookDispatcher runs an order's hook between the outbound and inbound
// settlement legs. The callee is untrusted: everything that must not be
// replayable (invalidation marks, the outbound leg) is staged before the
// call.
type HookDispatcher interface {
	Dispatch(hook common.Address, calldata []byte, user common.Address) error
}

// Event describes one settled order, for feeds and logs.
type Event struct {
	Kind      string // "tob" or "user"
	Signer    common.Address
	Recipient common.Address
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// Executor decodes and settles one bundle per call. All collaborators
// must stage their effects: the caller commits them only when Execute
// returns nil and discards them otherwise.
type Executor struct {
	DomainSeparator common.Hash
	Ledger          Ledger
	Invalidator     Invalidator
	Hooks           HookDispatcher
	Validator       ContractValidator

	// MaxOrders caps each section's decode loop (see ErrTooManyOrders).
	MaxOrders int

	Log      *zap.SugaredLogger
	OnSettle func(Event)

	// OnPairs, when set, receives the decoded pair section before any
	// order executes.
	OnPairs func([]Pair)
}

func (e *Executor) log() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

// Execute runs the full decode-validate-settle pipeline over payload.
// Orders run strictly in wire order; any error aborts the whole bundle.
// The cursor must land exactly on every declared segment end and on the
// end of the payload.
func (e *Executor) Execute(payload []byte, env Env) error {
	r := encoding.NewReader(payload)

	assets, err := decodeAssets(r)
	if err != nil {
		return err
	}
	pairs, err := decodePairs(r, assets)
	if err != nil {
		return err
	}
	if e.OnPairs != nil {
		e.OnPairs(pairs)
	}

	tobCount, err := e.executeToBSection(r, pairs, env)
	if err != nil {
		return err
	}
	userCount, err := e.executeUserSection(r, pairs, env)
	if err != nil {
		return err
	}

	if err := r.RequireAtEnd(); err != nil {
		return err
	}

	e.log().Infow("bundle_executed",
		"block", env.Block,
		"assets", len(assets),
		"pairs", len(pairs),
		"tob_orders", tobCount,
		"user_orders", userCount,
	)
	return nil
}

func (e *Executor) executeToBSection(r *encoding.Reader, pairs []Pair, env Env) (int, error) {
	end, err := r.ReadU24End()
	if err != nil {
		return 0, err
	}

	var buf TopOfBlockBuffer
	count := 0
	for r.Offset() < end {
		count++
		if e.MaxOrders > 0 && count > e.MaxOrders {
			return count, fmt.Errorf("%w: top-of-block section exceeds %d orders", ErrTooManyOrders, e.MaxOrders)
		}

		buf.Init()
		if err := buf.ReadFrom(r, pairs); err != nil {
			return count, err
		}
		buf.ValidForBlock = env.Block

		hash := buf.StructHash()
		digest := crypto.TypedDigest(e.DomainSeparator, hash)
		signer, err := readSigner(r, buf.Variant.IsEcdsa(), digest, e.Validator)
		if err != nil {
			return count, err
		}

		if err := e.Invalidator.UseOrderHash(hash); err != nil {
			return count, err
		}
		if err := e.settleToB(&buf, signer); err != nil {
			return count, err
		}
	}
	return count, r.RequireSegmentEnd(end)
}

// settleToB applies gas reimbursement and dispatches inbound before
// outbound. Gas is denominated in asset0 whatever the direction, hence
// the add-vs-subtract asymmetry.
func (e *Executor) settleToB(buf *TopOfBlockBuffer, signer common.Address) error {
	if buf.GasUsedAsset0.Gt(buf.MaxGasAsset0) {
		return fmt.Errorf("%w: used %s, signed max %s",
			ErrGasAboveMax, buf.GasUsedAsset0.Dec(), buf.MaxGasAsset0.Dec())
	}

	amountIn := buf.QuantityIn.Clone()
	amountOut := buf.QuantityOut.Clone()
	if buf.Variant.ZeroForOne() {
		amountIn.Add(amountIn, buf.GasUsedAsset0)
	} else {
		if amountOut.Lt(buf.GasUsedAsset0) {
			return fmt.Errorf("%w: gas %s, outbound quantity %s",
				ErrChargeExceedsOutput, buf.GasUsedAsset0.Dec(), amountOut.Dec())
		}
		amountOut.Sub(amountOut, buf.GasUsedAsset0)
	}

	recipient := resolveRecipient(buf.Recipient, signer)
	useInternal := buf.Variant.UseInternal()

	if err := e.Ledger.Take(signer, buf.AssetIn, amountIn, useInternal); err != nil {
		return err
	}
	if err := e.Ledger.Save(recipient, buf.AssetOut, amountOut, useInternal); err != nil {
		return err
	}

	e.emit(Event{
		Kind: "tob", Signer: signer, Recipient: recipient,
		AssetIn: buf.AssetIn, AssetOut: buf.AssetOut,
		AmountIn: amountIn, AmountOut: amountOut,
	})
	return nil
}

func (e *Executor) executeUserSection(r *encoding.Reader, pairs []Pair, env Env) (int, error) {
	end, err := r.ReadU24End()
	if err != nil {
		return 0, err
	}

	var buf UserBuffer
	count := 0
	for r.Offset() < end {
		count++
		if e.MaxOrders > 0 && count > e.MaxOrders {
			return count, fmt.Errorf("%w: user section exceeds %d orders", ErrTooManyOrders, e.MaxOrders)
		}

		if err := buf.Init(r); err != nil {
			return count, err
		}
		if err := buf.ReadFrom(r, pairs, env.Block); err != nil {
			return count, err
		}

		hash := buf.StructHash()
		digest := crypto.TypedDigest(e.DomainSeparator, hash)
		signer, err := readSigner(r, buf.Variant.IsEcdsa(), digest, e.Validator)
		if err != nil {
			return count, err
		}

		if err := e.invalidateUser(&buf, hash, signer, env); err != nil {
			return count, err
		}
		if err := e.settleUser(&buf, signer); err != nil {
			return count, err
		}
	}
	return count, r.RequireSegmentEnd(end)
}

func (e *Executor) invalidateUser(buf *UserBuffer, hash common.Hash, signer common.Address, env Env) error {
	switch v := buf.Validity.(type) {
	case StandingValidity:
		// a zero deadline on the wire means no expiry
		if v.Deadline != 0 && env.Timestamp > v.Deadline {
			return fmt.Errorf("%w: deadline %d, round timestamp %d", ErrDeadlineExpired, v.Deadline, env.Timestamp)
		}
		return e.Invalidator.UseNonce(signer, v.Nonce)
	case FlashValidity:
		// ValidForBlock came from env at decode; the hash already binds
		// the order to this round, single use within it remains.
		return e.Invalidator.UseOrderHash(hash)
	default:
		panic("bundle: user order invalidated before validity was set")
	}
}

// settleUser checks price and fee bounds, computes amounts, then
// dispatches outbound, hook, inbound — in that order. The hook runs
// after the signer's invalidation marks and outbound leg are staged.
func (e *Executor) settleUser(buf *UserBuffer, signer common.Address) error {
	if buf.ExtraFeeAsset0.Gt(buf.MaxExtraFeeAsset0) {
		return fmt.Errorf("%w: extra fee %s, signed max %s",
			ErrGasAboveMax, buf.ExtraFeeAsset0.Dec(), buf.MaxExtraFeeAsset0.Dec())
	}

	price := buf.pair.OrientedPrice(buf.Variant.ZeroForOne())
	if buf.MinPrice.Gt(price) {
		return fmt.Errorf("%w: min price %s, current %s",
			ErrLimitViolated, buf.MinPrice.Dec(), price.Dec())
	}

	if buf.Variant.QuantitiesPartial() {
		if buf.Quantity.Lt(buf.MinQuantityIn) || buf.Quantity.Gt(buf.MaxQuantityIn) {
			return fmt.Errorf("%w: fill %s outside [%s, %s]",
				ErrFillOutOfBounds, buf.Quantity.Dec(), buf.MinQuantityIn.Dec(), buf.MaxQuantityIn.Dec())
		}
	}

	amountIn := buf.Quantity.Clone()
	amountOut, err := ray.Mul(buf.Quantity, price)
	if err != nil {
		return fmt.Errorf("bundle: output amount: %w", err)
	}

	// extra fee is asset0-denominated, same asymmetry as ToB gas
	if buf.Variant.ZeroForOne() {
		amountIn.Add(amountIn, buf.ExtraFeeAsset0)
	} else {
		if amountOut.Lt(buf.ExtraFeeAsset0) {
			return fmt.Errorf("%w: extra fee %s, outbound quantity %s",
				ErrChargeExceedsOutput, buf.ExtraFeeAsset0.Dec(), amountOut.Dec())
		}
		amountOut.Sub(amountOut, buf.ExtraFeeAsset0)
	}

	recipient := resolveRecipient(buf.Recipient, signer)
	useInternal := buf.Variant.UseInternal()

	if err := e.Ledger.Save(recipient, buf.AssetOut, amountOut, useInternal); err != nil {
		return err
	}
	if !buf.Variant.NoHook() {
		if err := e.Hooks.Dispatch(buf.HookAddress(), buf.HookCalldata(), signer); err != nil {
			return fmt.Errorf("bundle: hook %s: %w", buf.HookAddress().Hex(), err)
		}
	}
	if err := e.Ledger.Take(signer, buf.AssetIn, amountIn, useInternal); err != nil {
		return err
	}

	e.emit(Event{
		Kind: "user", Signer: signer, Recipient: recipient,
		AssetIn: buf.AssetIn, AssetOut: buf.AssetOut,
		AmountIn: amountIn, AmountOut: amountOut,
	})
	return nil
}

func (e *Executor) emit(ev Event) {
	e.log().Debugw("order_settled",
		"kind", ev.Kind,
		"signer", ev.Signer.Hex(),
		"recipient", ev.Recipient.Hex(),
		"asset_in", ev.AssetIn.Hex(),
		"asset_out", ev.AssetOut.Hex(),
		"amount_in", ev.AmountIn.Dec(),
		"amount_out", ev.AmountOut.Dec(),
	)
	if e.OnSettle != nil {
		e.OnSettle(ev)
	}
}
