// Package encoding implements the packed big-endian wire format used by
// order bundles: fixed-width, order-dependent fields with no tags and no
// padding. A Reader is a cursor over an immutable buffer; every read is
// bounds-checked and advances the cursor, never backtracking.
package encoding

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrOutOfBounds means a read ran past the end of the buffer or past
	// a declared segment end.
	ErrOutOfBounds = errors.New("encoding: read out of bounds")

	// ErrTrailingBytes means decoding finished with unconsumed bytes left.
	ErrTrailingBytes = errors.New("encoding: trailing bytes after decode")
)

// Reader is a cursor over an immutable byte buffer. The offset only ever
// moves forward.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current absolute read offset.
func (r *Reader) Offset() int { return r.off }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.buf) }

func (r *Reader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrOutOfBounds, n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadU24End reads a 24-bit byte length and returns the absolute offset
// at which the segment it introduces must end.
func (r *Reader) ReadU24End() (int, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	length := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	end := r.off + length
	if end > len(r.buf) {
		return 0, fmt.Errorf("%w: segment of %d bytes at offset %d exceeds buffer",
			ErrOutOfBounds, length, r.off)
	}
	return end, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (r *Reader) ReadU40() (uint64, error) {
	b, err := r.take(5)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func (r *Reader) ReadU128() (*uint256.Int, error) {
	b, err := r.take(16)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (r *Reader) ReadU256() (*uint256.Int, error) {
	b, err := r.take(32)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (r *Reader) ReadAddress() (common.Address, error) {
	b, err := r.take(20)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// ReadBytesTo consumes everything from the cursor up to the absolute
// offset end (typically obtained from ReadU24End) and returns it.
func (r *Reader) ReadBytesTo(end int) ([]byte, error) {
	if end < r.off || end > len(r.buf) {
		return nil, fmt.Errorf("%w: segment end %d invalid at offset %d", ErrOutOfBounds, end, r.off)
	}
	b := r.buf[r.off:end]
	r.off = end
	return b, nil
}

// ReadBytes consumes exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// AtOffset reports whether the cursor sits exactly at the given offset.
func (r *Reader) AtOffset(end int) bool { return r.off == end }

// RequireSegmentEnd fails unless the cursor sits exactly at the declared
// segment end. Decode loops call this after their termination condition
// so an order straddling the boundary is rejected rather than silently
// accepted.
func (r *Reader) RequireSegmentEnd(end int) error {
	if r.off != end {
		return fmt.Errorf("%w: cursor at %d, segment declared end %d", ErrTrailingBytes, r.off, end)
	}
	return nil
}

// RequireAtEnd fails with ErrTrailingBytes unless the whole buffer has
// been consumed.
func (r *Reader) RequireAtEnd() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: cursor at %d, buffer length %d", ErrTrailingBytes, r.off, len(r.buf))
	}
	return nil
}
