package bundle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/encoding"
)

// Signature is producer-side signature material. A zero From means a
// 65-byte ECDSA signature; otherwise Bytes is a variable-length
// contract signature validated on behalf of From.
type Signature struct {
	From  common.Address
	Bytes []byte
}

// Builder assembles a bundle payload: the mirror image of the decode
// pipeline, used by producers, the signing CLI, and round-trip tests.
// Errors are sticky and reported by Build.
type Builder struct {
	assets []common.Address
	pairs  []encodedPair
	tob    *encoding.Writer
	user   *encoding.Writer
	err    error
}

type encodedPair struct {
	idx0, idx1 uint16
	price      *uint256.Int
}

func NewBuilder() *Builder {
	return &Builder{tob: encoding.NewWriter(), user: encoding.NewWriter()}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// AddAsset appends an asset address and returns its index. Assets must
// arrive in strictly ascending byte order, matching the decoder's
// canonical-encoding rule.
func (b *Builder) AddAsset(a common.Address) uint16 {
	if n := len(b.assets); n > 0 && bytes.Compare(b.assets[n-1].Bytes(), a.Bytes()) >= 0 {
		b.fail("bundle: asset %s not in ascending order", a.Hex())
	}
	b.assets = append(b.assets, a)
	return uint16(len(b.assets) - 1)
}

// AddPair declares a pair over two previously added assets and returns
// its index for order records.
func (b *Builder) AddPair(idx0, idx1 uint16, price1Over0 *uint256.Int) uint16 {
	if int(idx0) >= len(b.assets) || int(idx1) >= len(b.assets) || idx0 >= idx1 {
		b.fail("bundle: bad pair indices (%d, %d)", idx0, idx1)
	}
	if price1Over0 == nil || price1Over0.IsZero() {
		b.fail("bundle: pair (%d, %d) needs a non-zero price", idx0, idx1)
	}
	b.pairs = append(b.pairs, encodedPair{idx0, idx1, price1Over0})
	return uint16(len(b.pairs) - 1)
}

// AddTopOfBlock appends a priority order record. The buffer's Variant
// must be consistent with the signature shape.
func (b *Builder) AddTopOfBlock(o *TopOfBlockBuffer, pairIndex uint16, sig Signature) {
	if err := checkSignatureShape(o.Variant.IsEcdsa(), sig); err != nil {
		b.fail("bundle: top-of-block order: %v", err)
		return
	}
	o.encodeFields(b.tob, pairIndex)
	putSignature(b.tob, o.Variant.IsEcdsa(), sig)
}

// AddUserOrder appends a user order record.
func (b *Builder) AddUserOrder(o *UserBuffer, pairIndex uint16, sig Signature) {
	if err := checkSignatureShape(o.Variant.IsEcdsa(), sig); err != nil {
		b.fail("bundle: user order: %v", err)
		return
	}
	if _, ok := o.Validity.(StandingValidity); ok != o.Variant.IsStanding() {
		b.fail("bundle: user order validity does not match standing variant bit")
		return
	}
	if o.Variant.QuantitiesPartial() && (o.MinQuantityIn == nil || o.MaxQuantityIn == nil) {
		b.fail("bundle: partial order needs fill bounds")
		return
	}
	if !o.Variant.NoHook() && len(o.HookPayload) < common.AddressLength {
		b.fail("bundle: hook payload must start with a hook address")
		return
	}
	o.encodeFields(b.user, pairIndex)
	putSignature(b.user, o.Variant.IsEcdsa(), sig)
}

// Build encodes the four sections and returns the payload.
func (b *Builder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	assetW := encoding.NewWriter()
	for _, a := range b.assets {
		assetW.PutAddress(a)
	}
	assetSection, err := assetW.Bytes()
	if err != nil {
		return nil, err
	}

	pairW := encoding.NewWriter()
	for _, p := range b.pairs {
		pairW.PutU16(p.idx0)
		pairW.PutU16(p.idx1)
		pairW.PutU256(p.price)
	}
	pairSection, err := pairW.Bytes()
	if err != nil {
		return nil, err
	}

	tobSection, err := b.tob.Bytes()
	if err != nil {
		return nil, err
	}
	userSection, err := b.user.Bytes()
	if err != nil {
		return nil, err
	}

	w := encoding.NewWriter()
	w.PutU24Segment(assetSection)
	w.PutU24Segment(pairSection)
	w.PutU24Segment(tobSection)
	w.PutU24Segment(userSection)
	return w.Bytes()
}

func checkSignatureShape(isEcdsa bool, sig Signature) error {
	if isEcdsa {
		if sig.From != (common.Address{}) {
			return fmt.Errorf("ecdsa variant carries no from address")
		}
		if len(sig.Bytes) != 65 {
			return fmt.Errorf("ecdsa signature must be 65 bytes, got %d", len(sig.Bytes))
		}
		return nil
	}
	if sig.From == (common.Address{}) {
		return fmt.Errorf("contract signature needs a from address")
	}
	return nil
}

// orZero lets producer-side buffers leave untouched amount fields nil.
func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

func putSignature(w *encoding.Writer, isEcdsa bool, sig Signature) {
	if isEcdsa {
		w.PutBytes(sig.Bytes)
		return
	}
	w.PutAddress(sig.From)
	w.PutU24Segment(sig.Bytes)
}
