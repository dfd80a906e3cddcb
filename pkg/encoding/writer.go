package encoding

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Writer is the mirror image of Reader: it appends fixed-width
// big-endian fields to a growing buffer. Range errors are sticky; check
// Err (or the error from Bytes) once after building.
type Writer struct {
	buf []byte
	err error
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf(format, args...)
	}
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU16(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

func (w *Writer) PutU32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) PutU40(v uint64) {
	if v >= 1<<40 {
		w.fail("encoding: %d exceeds u40", v)
		return
	}
	w.buf = append(w.buf, byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) PutU64(v uint64) {
	w.buf = append(w.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) PutU128(v *uint256.Int) {
	if v.BitLen() > 128 {
		w.fail("encoding: value %s exceeds u128", v.Dec())
		return
	}
	var be [32]byte
	v.WriteToArray32(&be)
	w.buf = append(w.buf, be[16:]...)
}

func (w *Writer) PutU256(v *uint256.Int) {
	var be [32]byte
	v.WriteToArray32(&be)
	w.buf = append(w.buf, be[:]...)
}

func (w *Writer) PutAddress(a common.Address) {
	w.buf = append(w.buf, a.Bytes()...)
}

func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutU24Segment writes a 24-bit length prefix followed by the segment
// bytes, matching Reader.ReadU24End.
func (w *Writer) PutU24Segment(segment []byte) {
	if len(segment) >= 1<<24 {
		w.fail("encoding: segment of %d bytes exceeds u24 length", len(segment))
		return
	}
	n := len(segment)
	w.buf = append(w.buf, byte(n>>16), byte(n>>8), byte(n))
	w.buf = append(w.buf, segment...)
}

func (w *Writer) Err() error { return w.err }

// Bytes returns the encoded buffer, or the first range error hit while
// building it.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}
