// Package invalidation persists the single-use records that give orders
// replay protection: used order hashes for flash and top-of-block
// orders, and a per-owner nonce bitmap for standing orders. A bundle's
// marks stage in a pebble batch and only commit if the whole bundle
// succeeds.
package invalidation

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrOrderHashReused = errors.New("invalidation: order hash already used")
	ErrNonceReused     = errors.New("invalidation: nonce already used")
)

// keys: oh:<32-byte-hash>, nb:<20-byte-owner><8-byte-word-index>
func hashKey(h common.Hash) []byte { return append([]byte("oh:"), h[:]...) }

func nonceWordKey(owner common.Address, nonce uint64) []byte {
	k := make([]byte, 0, 3+20+8)
	k = append(k, []byte("nb:")...)
	k = append(k, owner.Bytes()...)
	word := nonce >> 8
	k = append(k,
		byte(word>>56), byte(word>>48), byte(word>>40), byte(word>>32),
		byte(word>>24), byte(word>>16), byte(word>>8), byte(word))
	return k
}

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("invalidation: open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Begin opens a staging session for one bundle. The session sees both
// committed state and its own pending marks, so a nonce reused twice
// inside a single bundle is caught too.
func (s *Store) Begin() *Session {
	return &Session{batch: s.db.NewIndexedBatch()}
}

// Session stages invalidation marks for one atomic bundle execution.
type Session struct {
	batch *pebble.Batch
}

// UseOrderHash marks an order hash as consumed, failing if it ever was.
func (se *Session) UseOrderHash(hash common.Hash) error {
	key := hashKey(hash)
	_, closer, err := se.batch.Get(key)
	if err == nil {
		closer.Close()
		return fmt.Errorf("%w: %s", ErrOrderHashReused, hash.Hex())
	}
	if err != pebble.ErrNotFound {
		return fmt.Errorf("invalidation: read order hash: %w", err)
	}
	if err := se.batch.Set(key, []byte{1}, nil); err != nil {
		return fmt.Errorf("invalidation: mark order hash: %w", err)
	}
	return nil
}

// UseNonce flips the owner's bit for nonce, failing if already set.
// Nonces pack 256 per word so standing-order churn stays cheap.
func (se *Session) UseNonce(owner common.Address, nonce uint64) error {
	key := nonceWordKey(owner, nonce)
	bit := nonce & 0xff

	var word [32]byte
	val, closer, err := se.batch.Get(key)
	switch err {
	case nil:
		copy(word[:], val)
		closer.Close()
	case pebble.ErrNotFound:
		// fresh word
	default:
		return fmt.Errorf("invalidation: read nonce word: %w", err)
	}

	byteIdx, mask := bit>>3, byte(1)<<(bit&7)
	if word[byteIdx]&mask != 0 {
		return fmt.Errorf("%w: owner %s nonce %d", ErrNonceReused, owner.Hex(), nonce)
	}
	word[byteIdx] |= mask

	if err := se.batch.Set(key, word[:], nil); err != nil {
		return fmt.Errorf("invalidation: mark nonce: %w", err)
	}
	return nil
}

// Commit durably applies every staged mark.
func (se *Session) Commit() error {
	if err := se.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("invalidation: commit: %w", err)
	}
	return nil
}

// Discard drops every staged mark.
func (se *Session) Discard() {
	_ = se.batch.Close()
}
