package position

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/holiman/uint256"
)

// RewardStore persists accrued rewards per position key in pebble.
// Values are 32-byte big-endian amounts.
type RewardStore struct {
	db *pebble.DB
}

func NewRewardStore(path string) (*RewardStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("position: open reward store: %w", err)
	}
	return &RewardStore{db: db}, nil
}

func (s *RewardStore) Close() error { return s.db.Close() }

// keys: rw:<32-byte-position-key>
func rewardKey(k Key) []byte { return append([]byte("rw:"), k[:]...) }

// Get returns the accrued amount for a position, zero if absent.
func (s *RewardStore) Get(k Key) (*uint256.Int, error) {
	val, closer, err := s.db.Get(rewardKey(k))
	if err != nil {
		if err == pebble.ErrNotFound {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("position: get rewards: %w", err)
	}
	defer closer.Close()

	return new(uint256.Int).SetBytes(val), nil
}

// Add accrues amount onto a position's record immediately, outside any
// bundle. Accruals made during bundle execution go through a session.
func (s *RewardStore) Add(k Key, amount *uint256.Int) error {
	se := s.Begin()
	if err := se.Add(k, amount); err != nil {
		se.Discard()
		return err
	}
	return se.Commit()
}

// Begin opens a staging session for one bundle. The session sees both
// committed records and its own pending accruals, and nothing persists
// until Commit.
func (s *RewardStore) Begin() *RewardSession {
	return &RewardSession{batch: s.db.NewIndexedBatch()}
}

// RewardSession stages reward accruals for one atomic bundle execution.
type RewardSession struct {
	batch *pebble.Batch
}

// Add accrues amount onto a position's staged record.
func (se *RewardSession) Add(k Key, amount *uint256.Int) error {
	key := rewardKey(k)

	current := new(uint256.Int)
	val, closer, err := se.batch.Get(key)
	switch err {
	case nil:
		current.SetBytes(val)
		closer.Close()
	case pebble.ErrNotFound:
		// fresh record
	default:
		return fmt.Errorf("position: get rewards: %w", err)
	}

	total, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("position: reward accumulator overflow")
	}

	var buf [32]byte
	total.WriteToArray32(&buf)
	if err := se.batch.Set(key, buf[:], nil); err != nil {
		return fmt.Errorf("position: set rewards: %w", err)
	}
	return nil
}

// Commit durably applies every staged accrual.
func (se *RewardSession) Commit() error {
	if err := se.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("position: commit rewards: %w", err)
	}
	return nil
}

// Discard drops every staged accrual.
func (se *RewardSession) Discard() {
	_ = se.batch.Close()
}
