package bundle

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/encoding"
)

var (
	assetA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func onePointFiveRay() *uint256.Int {
	return uint256.MustFromDecimal("1500000000000000000000000000")
}

func testPairs() []Pair {
	return []Pair{{Asset0: assetA, Asset1: assetB, Price1Over0: onePointFiveRay()}}
}

func TestToBRecordLiteralLayout(t *testing.T) {
	o := baseToB()
	o.AssetIn, o.AssetOut = assetA, assetB

	w := encoding.NewWriter()
	o.encodeFields(w, 0)
	got, err := w.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// u8 variant | 4x u128 | u16 pairIndex | recipient (variant has it)
	wantLen := 1 + 4*16 + 2 + 20
	if len(got) != wantLen {
		t.Fatalf("record length = %d, want %d", len(got), wantLen)
	}
	if got[0] != byte(o.Variant) {
		t.Errorf("variant byte = %#x", got[0])
	}
	// quantityIn = 100, big-endian in the first u128
	if got[16] != 100 {
		t.Errorf("quantityIn low byte = %d, want 100", got[16])
	}
	if !bytes.Equal(got[len(got)-20:], o.Recipient.Bytes()) {
		t.Errorf("recipient bytes = %x", got[len(got)-20:])
	}
}

func TestToBRecordRoundTrip(t *testing.T) {
	o := baseToB()
	o.AssetIn, o.AssetOut = assetA, assetB

	w := encoding.NewWriter()
	o.encodeFields(w, 0)
	raw, err := w.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got TopOfBlockBuffer
	got.Init()
	if err := got.ReadFrom(encoding.NewReader(raw), testPairs()); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	got.ValidForBlock = o.ValidForBlock

	if got.StructHash() != o.StructHash() {
		t.Error("decoded record hashes differently from the encoded one")
	}
	if !got.GasUsedAsset0.Eq(o.GasUsedAsset0) {
		t.Errorf("gasUsed = %s", got.GasUsedAsset0.Dec())
	}
	if got.AssetIn != assetA || got.AssetOut != assetB {
		t.Errorf("resolved assets = %s / %s", got.AssetIn.Hex(), got.AssetOut.Hex())
	}
}

func TestUserRecordRoundTrip(t *testing.T) {
	variants := []struct {
		name     string
		validity Validity
		partial  bool
		hook     []byte
	}{
		{"exact flash", FlashValidity{ValidForBlock: 7}, false, nil},
		{"partial flash", FlashValidity{ValidForBlock: 7}, true, nil},
		{"exact standing", StandingValidity{Nonce: 3, Deadline: 1234567}, false, nil},
		{"partial standing with hook", StandingValidity{Nonce: 4, Deadline: 0}, true,
			append(common.HexToAddress("0xdd").Bytes(), 0xca, 0xfe)},
	}

	for _, tt := range variants {
		t.Run(tt.name, func(t *testing.T) {
			o := baseUser(tt.validity, tt.partial)
			o.AssetIn, o.AssetOut = assetA, assetB
			if tt.hook != nil {
				o.Variant |= userHook
				o.HookPayload = tt.hook
			}

			w := encoding.NewWriter()
			o.encodeFields(w, 0)
			raw, err := w.Bytes()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			var got UserBuffer
			r := encoding.NewReader(raw)
			if err := got.Init(r); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if err := got.ReadFrom(r, testPairs(), 7); err != nil {
				t.Fatalf("ReadFrom: %v", err)
			}
			if err := r.RequireAtEnd(); err != nil {
				t.Fatalf("record not fully consumed: %v", err)
			}

			if got.StructHash() != o.StructHash() {
				t.Error("decoded record hashes differently from the encoded one")
			}
			if got.Validity != o.Validity {
				t.Errorf("validity = %#v, want %#v", got.Validity, o.Validity)
			}
			if tt.hook != nil && got.HookAddress() != common.HexToAddress("0xdd") {
				t.Errorf("hook address = %s", got.HookAddress().Hex())
			}
		})
	}
}

func TestDecodeAssetsCanonicalOrder(t *testing.T) {
	w := encoding.NewWriter()
	seg := encoding.NewWriter()
	seg.PutAddress(assetB)
	seg.PutAddress(assetA) // descending: must be rejected
	raw, _ := seg.Bytes()
	w.PutU24Segment(raw)
	payload, _ := w.Bytes()

	_, err := decodeAssets(encoding.NewReader(payload))
	if !errors.Is(err, ErrBadPairSection) {
		t.Errorf("unsorted assets = %v, want ErrBadPairSection", err)
	}
}

func TestDecodePairsValidation(t *testing.T) {
	assets := []common.Address{assetA, assetB}

	tests := []struct {
		name       string
		idx0, idx1 uint16
		price      *uint256.Int
	}{
		{"index out of range", 0, 5, onePointFiveRay()},
		{"not ascending", 1, 1, onePointFiveRay()},
		{"zero price", 0, 1, new(uint256.Int)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := encoding.NewWriter()
			seg.PutU16(tt.idx0)
			seg.PutU16(tt.idx1)
			seg.PutU256(tt.price)
			raw, _ := seg.Bytes()
			w := encoding.NewWriter()
			w.PutU24Segment(raw)
			payload, _ := w.Bytes()

			_, err := decodePairs(encoding.NewReader(payload), assets)
			if !errors.Is(err, ErrBadPairSection) {
				t.Errorf("error = %v, want ErrBadPairSection", err)
			}
		})
	}
}

func TestOrientedPrice(t *testing.T) {
	p := testPairs()[0]

	if got := p.OrientedPrice(true); !got.Eq(onePointFiveRay()) {
		t.Errorf("zeroForOne price = %s", got.Dec())
	}
	// reverse orientation: 1 / 1.5 ray, floor
	want := uint256.MustFromDecimal("666666666666666666666666666")
	if got := p.OrientedPrice(false); !got.Eq(want) {
		t.Errorf("reverse price = %s, want %s", got.Dec(), want.Dec())
	}

	in, out := p.InOut(true)
	if in != assetA || out != assetB {
		t.Error("InOut(true) misoriented")
	}
	in, out = p.InOut(false)
	if in != assetB || out != assetA {
		t.Error("InOut(false) misoriented")
	}
}
