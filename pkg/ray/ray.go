// Package ray implements 27-decimal fixed-point arithmetic on 256-bit
// integers. All operations truncate toward zero; products are computed
// in a 512-bit intermediate so precision is only lost at the final
// rescale.
package ray

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// One is the Ray scale factor, 10^27.
	One = uint256.MustFromDecimal("1000000000000000000000000000")

	// OneSquared is 10^54, the numerator of InvRayUnchecked.
	OneSquared = uint256.MustFromDecimal("1000000000000000000000000000000000000000000000000000000")

	// wadRayRatio rescales between 18-decimal (wad) and 27-decimal (ray).
	wadRayRatio = uint256.NewInt(1_000_000_000)
)

var (
	ErrOverflow       = errors.New("ray: result exceeds 256 bits")
	ErrDivisionByZero = errors.New("ray: division by zero")
)

// Mul returns floor(x*y / 10^27).
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, One)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div returns floor(x * 10^27 / y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, One, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// InvUnchecked returns floor(10^54 / x), the Ray reciprocal. The caller
// must guarantee x != 0.
func InvUnchecked(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(OneSquared, x)
}

// FromWad rescales an 18-decimal value up to 27 decimals.
func FromWad(x *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, wadRayRatio)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ToWad rescales a 27-decimal value down to 18 decimals, truncating.
func ToWad(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(x, wadRayRatio)
}
