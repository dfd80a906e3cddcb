// Package position derives the content-addressed keys under which a
// liquidity position's accrued rewards are recorded. The packed layout
// is shared with an external system that uses the same keys natively, so
// the byte order and widths here must never change.
package position

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	// MinTick and MaxTick bound the signed 24-bit tick range.
	MinTick = -(1 << 23)
	MaxTick = 1<<23 - 1
)

// Key identifies one (owner, tick range, salt) position.
type Key = common.Hash

// DeriveKey computes keccak256(owner[20] || lowerTick[3] || upperTick[3]
// || salt[32]). Ticks are big-endian two's complement, truncated to
// 24 bits.
func DeriveKey(owner common.Address, lowerTick, upperTick int32, salt [32]byte) (Key, error) {
	packed, err := Pack(owner, lowerTick, upperTick, salt)
	if err != nil {
		return Key{}, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(packed)

	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

// Pack serializes the key preimage: 20 + 3 + 3 + 32 = 58 bytes.
func Pack(owner common.Address, lowerTick, upperTick int32, salt [32]byte) ([]byte, error) {
	if err := checkTick("lower", lowerTick); err != nil {
		return nil, err
	}
	if err := checkTick("upper", upperTick); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 58)
	out = append(out, owner.Bytes()...)
	out = appendTick24(out, lowerTick)
	out = appendTick24(out, upperTick)
	out = append(out, salt[:]...)
	return out, nil
}

func checkTick(name string, tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return fmt.Errorf("position: %s tick %d outside int24 range", name, tick)
	}
	return nil
}

func appendTick24(b []byte, tick int32) []byte {
	u := uint32(tick) // two's complement, low 24 bits are the value
	return append(b, byte(u>>16), byte(u>>8), byte(u))
}
