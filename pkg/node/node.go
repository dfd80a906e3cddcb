// Package node wires the settlement engine together: configuration,
// persistent stores, the journal ledger, and the bundle executor, with
// one atomic apply per settlement round.
package node

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/slipstream/params"
	"github.com/uhyunpark/slipstream/pkg/bundle"
	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/invalidation"
	"github.com/uhyunpark/slipstream/pkg/position"
	"github.com/uhyunpark/slipstream/pkg/settlement"
)

// Node owns the long-lived state behind bundle execution. ApplyBundle
// is the only mutating entry point; everything else reads.
type Node struct {
	cfg params.Config
	log *zap.SugaredLogger

	separator common.Hash
	ledger    *settlement.JournalLedger
	inval     *invalidation.Store
	rewards   *position.RewardStore

	hooks      *HookRegistry
	validators *ValidatorRegistry

	mu        sync.Mutex
	round     uint64
	lastPairs []bundle.Pair

	// OnSettle, when set, receives every settled order of a committed
	// bundle after the commit. Called outside the node lock.
	OnSettle func(bundle.Event)
}

// Receipt summarizes one committed bundle.
type Receipt struct {
	Round  uint64
	Events []bundle.Event
}

func New(cfg params.Config, log *zap.SugaredLogger) (*Node, error) {
	inval, err := invalidation.NewStore(filepath.Join(cfg.Node.DataDir, "invalidation"))
	if err != nil {
		return nil, err
	}
	rewards, err := position.NewRewardStore(filepath.Join(cfg.Node.DataDir, "rewards"))
	if err != nil {
		inval.Close()
		return nil, err
	}

	n := &Node{
		cfg: cfg,
		log: log,
		separator: crypto.Domain{
			Name:              cfg.Domain.Name,
			Version:           cfg.Domain.Version,
			ChainID:           cfg.Domain.ChainID,
			VerifyingContract: common.HexToAddress(cfg.Domain.VerifyingContract),
		}.Separator(),
		ledger:     settlement.NewJournalLedger(),
		inval:      inval,
		rewards:    rewards,
		hooks:      NewHookRegistry(),
		validators: NewValidatorRegistry(),
	}
	n.hooks.Register(RewardHookAddress, RewardAccrualHook())
	return n, nil
}

func (n *Node) Close() error {
	if err := n.inval.Close(); err != nil {
		n.rewards.Close()
		return err
	}
	return n.rewards.Close()
}

// DomainSeparator returns the EIP-712 separator orders must sign under.
func (n *Node) DomainSeparator() common.Hash { return n.separator }

// Hooks exposes the hook registry for additional handlers.
func (n *Node) Hooks() *HookRegistry { return n.hooks }

// Validators exposes the contract-signature registry.
func (n *Node) Validators() *ValidatorRegistry { return n.validators }

// Round returns the number of committed bundles.
func (n *Node) Round() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.round
}

// ApplyBundle executes one bundle atomically: all orders settle, all
// invalidation marks persist, and all hook-staged reward accruals
// apply — or none do and the error reports the first failing order.
func (n *Node) ApplyBundle(payload []byte) (*Receipt, error) {
	n.mu.Lock()

	env := bundle.Env{
		Block:     n.round + 1,
		Timestamp: uint64(time.Now().Unix()),
	}
	session := n.inval.Begin()
	rewardSession := n.rewards.Begin()

	var events []bundle.Event
	var pairs []bundle.Pair
	exec := &bundle.Executor{
		DomainSeparator: n.separator,
		Ledger:          n.ledger,
		Invalidator:     session,
		Hooks:           n.hooks.Bind(&HookContext{Rewards: rewardSession}),
		Validator:       n.validators,
		MaxOrders:       n.cfg.Engine.MaxOrdersPerBundle,
		Log:             n.log,
		OnSettle:        func(ev bundle.Event) { events = append(events, ev) },
		OnPairs:         func(p []bundle.Pair) { pairs = p },
	}

	if err := exec.Execute(payload, env); err != nil {
		session.Discard()
		rewardSession.Discard()
		n.ledger.Revert()
		n.mu.Unlock()
		n.log.Warnw("bundle_rejected", "round", env.Block, "err", err)
		return nil, err
	}
	if err := session.Commit(); err != nil {
		rewardSession.Discard()
		n.ledger.Revert()
		n.mu.Unlock()
		return nil, err
	}
	if err := rewardSession.Commit(); err != nil {
		n.ledger.Revert()
		n.mu.Unlock()
		return nil, err
	}
	n.ledger.Commit()
	n.round = env.Block
	n.lastPairs = pairs
	n.mu.Unlock()

	if n.OnSettle != nil {
		for _, ev := range events {
			n.OnSettle(ev)
		}
	}
	return &Receipt{Round: env.Block, Events: events}, nil
}

// Deposit credits an internal balance outside bundle execution, for
// bootstrapping and tests.
func (n *Node) Deposit(account, asset common.Address, amount *uint256.Int) {
	n.ledger.Deposit(account, asset, amount)
}

// InternalBalance reads a committed internal balance.
func (n *Node) InternalBalance(account, asset common.Address) *uint256.Int {
	return n.ledger.InternalBalance(account, asset)
}

// PendingOutflow reads the committed external obligations owed by an
// account.
func (n *Node) PendingOutflow(account, asset common.Address) *uint256.Int {
	return n.ledger.PendingOutflow(account, asset)
}

// LastPairs returns the pair section of the most recently committed
// bundle.
func (n *Node) LastPairs() []bundle.Pair {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastPairs
}

// RewardBalance reads the accrued rewards for a position key.
func (n *Node) RewardBalance(k position.Key) (*uint256.Int, error) {
	return n.rewards.Get(k)
}
