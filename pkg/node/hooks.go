package node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/slipstream/pkg/bundle"
	"github.com/uhyunpark/slipstream/pkg/encoding"
	"github.com/uhyunpark/slipstream/pkg/position"
)

var ErrUnknownHook = errors.New("node: no handler registered for hook")

// RewardHookAddress is the built-in hook target for reward accrual.
var RewardHookAddress = common.HexToAddress("0x0000000000000000000000000000000000000101")

// HookContext carries the staged collaborators of the bundle currently
// executing. Handlers write through it so their effects commit and
// revert with the bundle.
type HookContext struct {
	Rewards *position.RewardSession
}

// HookFunc handles one hook dispatch. Errors abort the whole bundle.
type HookFunc func(ctx *HookContext, calldata []byte, user common.Address) error

// HookRegistry routes hook dispatches to in-process handlers by target
// address. An order naming an unregistered hook fails its bundle.
type HookRegistry struct {
	mu       sync.RWMutex
	handlers map[common.Address]HookFunc
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{handlers: make(map[common.Address]HookFunc)}
}

func (r *HookRegistry) Register(hook common.Address, fn HookFunc) {
	r.mu.Lock()
	r.handlers[hook] = fn
	r.mu.Unlock()
}

// Bind scopes the registry to one bundle's staged state, yielding the
// dispatcher the executor calls.
func (r *HookRegistry) Bind(ctx *HookContext) bundle.HookDispatcher {
	return &boundHooks{reg: r, ctx: ctx}
}

type boundHooks struct {
	reg *HookRegistry
	ctx *HookContext
}

func (b *boundHooks) Dispatch(hook common.Address, calldata []byte, user common.Address) error {
	b.reg.mu.RLock()
	fn, ok := b.reg.handlers[hook]
	b.reg.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHook, hook.Hex())
	}
	return fn(b.ctx, calldata, user)
}

// RewardAccrualHook credits liquidity rewards to the dispatching user's
// position, staged in the bundle's reward session. Calldata layout,
// big-endian:
//
//	lowerTick  int24
//	upperTick  int24
//	salt       bytes32
//	amount     uint128
func RewardAccrualHook() HookFunc {
	return func(ctx *HookContext, calldata []byte, user common.Address) error {
		r := encoding.NewReader(calldata)
		lower, err := readTick24(r)
		if err != nil {
			return err
		}
		upper, err := readTick24(r)
		if err != nil {
			return err
		}
		saltBytes, err := r.ReadBytes(32)
		if err != nil {
			return err
		}
		amount, err := r.ReadU128()
		if err != nil {
			return err
		}
		if err := r.RequireAtEnd(); err != nil {
			return err
		}

		var salt [32]byte
		copy(salt[:], saltBytes)
		key, err := position.DeriveKey(user, lower, upper, salt)
		if err != nil {
			return err
		}
		return ctx.Rewards.Add(key, amount)
	}
}

// readTick24 decodes a signed 3-byte two's-complement tick.
func readTick24(r *encoding.Reader) (int32, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	if v&0x800000 != 0 {
		v |= 0xff000000
	}
	return int32(v), nil
}
