// Package settlement provides an in-memory, journaled implementation of
// the balance ledger the bundle executor dispatches to. Effects
// accumulate in a journal while a bundle executes and only land in the
// visible balances on Commit; final settlement of external outflows
// against on-chain balances happens outside this engine.
package settlement

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("settlement: insufficient internal balance")

type entryKind uint8

const (
	entryDebitInternal entryKind = iota
	entryCreditInternal
	entryExternalIn  // pulled from the account's external funds
	entryExternalOut // queued for external transfer
)

type journalEntry struct {
	kind    entryKind
	account common.Address
	asset   common.Address
	amount  *uint256.Int
}

// JournalLedger tracks internal balances plus pending external flows.
// Take pulls assets in from a payer; Save pushes assets out to a
// recipient, either onto their internal balance or into the external
// outflow queue.
type JournalLedger struct {
	mu sync.RWMutex

	internal map[common.Address]map[common.Address]*uint256.Int
	// cumulative external flows, kept for reconciliation by the layer
	// that settles against real balances
	externalIn  map[common.Address]map[common.Address]*uint256.Int
	externalOut map[common.Address]map[common.Address]*uint256.Int

	journal []journalEntry
}

func NewJournalLedger() *JournalLedger {
	return &JournalLedger{
		internal:    make(map[common.Address]map[common.Address]*uint256.Int),
		externalIn:  make(map[common.Address]map[common.Address]*uint256.Int),
		externalOut: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Take pulls amount of asset in from the payer. With useInternal the
// payer's internal balance is debited and must cover the amount net of
// any credits already staged this round; otherwise the pull is recorded
// as an external inflow.
func (l *JournalLedger) Take(from common.Address, asset common.Address, amount *uint256.Int, useInternal bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !useInternal {
		l.journal = append(l.journal, journalEntry{entryExternalIn, from, asset, amount.Clone()})
		return nil
	}

	if l.stagedBalance(from, asset).Lt(amount) {
		return fmt.Errorf("%w: account %s asset %s needs %s",
			ErrInsufficientBalance, from.Hex(), asset.Hex(), amount.Dec())
	}
	l.journal = append(l.journal, journalEntry{entryDebitInternal, from, asset, amount.Clone()})
	return nil
}

// Save pushes amount of asset out to the recipient, onto their internal
// balance or into the external outflow queue.
func (l *JournalLedger) Save(to common.Address, asset common.Address, amount *uint256.Int, useInternal bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kind := entryExternalOut
	if useInternal {
		kind = entryCreditInternal
	}
	l.journal = append(l.journal, journalEntry{kind, to, asset, amount.Clone()})
	return nil
}

// stagedBalance is the committed internal balance adjusted by journal
// entries staged so far. Callers hold l.mu.
func (l *JournalLedger) stagedBalance(account, asset common.Address) *uint256.Int {
	bal := new(uint256.Int)
	if assets, ok := l.internal[account]; ok {
		if v, ok := assets[asset]; ok {
			bal.Set(v)
		}
	}
	for _, e := range l.journal {
		if e.account != account || e.asset != asset {
			continue
		}
		switch e.kind {
		case entryCreditInternal:
			bal.Add(bal, e.amount)
		case entryDebitInternal:
			bal.Sub(bal, e.amount)
		}
	}
	return bal
}

// Commit applies every staged entry and clears the journal.
func (l *JournalLedger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.journal {
		switch e.kind {
		case entryDebitInternal:
			bucket(l.internal, e.account, e.asset).Sub(bucket(l.internal, e.account, e.asset), e.amount)
		case entryCreditInternal:
			bucket(l.internal, e.account, e.asset).Add(bucket(l.internal, e.account, e.asset), e.amount)
		case entryExternalIn:
			bucket(l.externalIn, e.account, e.asset).Add(bucket(l.externalIn, e.account, e.asset), e.amount)
		case entryExternalOut:
			bucket(l.externalOut, e.account, e.asset).Add(bucket(l.externalOut, e.account, e.asset), e.amount)
		}
	}
	l.journal = l.journal[:0]
}

// Revert drops every staged entry.
func (l *JournalLedger) Revert() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = l.journal[:0]
}

// Deposit credits an internal balance directly, outside any journal.
// Used by bridge/funding flows and tests.
func (l *JournalLedger) Deposit(account, asset common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := bucket(l.internal, account, asset)
	b.Add(b, amount)
}

// InternalBalance returns the committed internal balance.
func (l *JournalLedger) InternalBalance(account, asset common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if assets, ok := l.internal[account]; ok {
		if v, ok := assets[asset]; ok {
			return v.Clone()
		}
	}
	return new(uint256.Int)
}

// PendingOutflow returns the cumulative committed external outflow.
func (l *JournalLedger) PendingOutflow(account, asset common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if assets, ok := l.externalOut[account]; ok {
		if v, ok := assets[asset]; ok {
			return v.Clone()
		}
	}
	return new(uint256.Int)
}

func bucket(m map[common.Address]map[common.Address]*uint256.Int, account, asset common.Address) *uint256.Int {
	assets, ok := m[account]
	if !ok {
		assets = make(map[common.Address]*uint256.Int)
		m[account] = assets
	}
	v, ok := assets[asset]
	if !ok {
		v = new(uint256.Int)
		assets[asset] = v
	}
	return v
}
