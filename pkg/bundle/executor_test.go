package bundle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/pkg/crypto"
	"github.com/uhyunpark/slipstream/pkg/encoding"
	"github.com/uhyunpark/slipstream/pkg/invalidation"
)

var testEnv = Env{Block: 7, Timestamp: 1_700_000_000}

func testSeparator() common.Hash {
	return crypto.Domain{Name: "Slipstream", Version: "1", ChainID: 1337}.Separator()
}

// traceLedger records dispatches as strings so tests can assert both
// amounts and ordering across the hook boundary.
type traceLedger struct {
	trace []string
}

func (l *traceLedger) Take(from, asset common.Address, amount *uint256.Int, useInternal bool) error {
	l.trace = append(l.trace, fmt.Sprintf("take:%s:%s:%s:%v", from.Hex(), asset.Hex(), amount.Dec(), useInternal))
	return nil
}

func (l *traceLedger) Save(to, asset common.Address, amount *uint256.Int, useInternal bool) error {
	l.trace = append(l.trace, fmt.Sprintf("save:%s:%s:%s:%v", to.Hex(), asset.Hex(), amount.Dec(), useInternal))
	return nil
}

type traceHooks struct {
	ledger *traceLedger
}

func (h *traceHooks) Dispatch(hook common.Address, calldata []byte, user common.Address) error {
	h.ledger.trace = append(h.ledger.trace, fmt.Sprintf("hook:%s:%x:%s", hook.Hex(), calldata, user.Hex()))
	return nil
}

type memInvalidator struct {
	hashes map[common.Hash]bool
	nonces map[string]bool
}

func newMemInvalidator() *memInvalidator {
	return &memInvalidator{hashes: make(map[common.Hash]bool), nonces: make(map[string]bool)}
}

func (m *memInvalidator) UseOrderHash(hash common.Hash) error {
	if m.hashes[hash] {
		return invalidation.ErrOrderHashReused
	}
	m.hashes[hash] = true
	return nil
}

func (m *memInvalidator) UseNonce(owner common.Address, nonce uint64) error {
	key := fmt.Sprintf("%s:%d", owner.Hex(), nonce)
	if m.nonces[key] {
		return invalidation.ErrNonceReused
	}
	m.nonces[key] = true
	return nil
}

// mapValidator accepts a fixed (from, sig) pair.
type mapValidator struct {
	from common.Address
	sig  []byte
}

func (v *mapValidator) IsValidSignature(from common.Address, digest common.Hash, sig []byte) bool {
	return from == v.from && string(sig) == string(v.sig)
}

func newTestExecutor(led Ledger, hooks HookDispatcher, validator ContractValidator) *Executor {
	return &Executor{
		DomainSeparator: testSeparator(),
		Ledger:          led,
		Invalidator:     newMemInvalidator(),
		Hooks:           hooks,
		Validator:       validator,
		MaxOrders:       16,
	}
}

func defaultToB() *TopOfBlockBuffer {
	return &TopOfBlockBuffer{
		Variant:       MakeToBVariant(true, false, true, false),
		QuantityIn:    uint256.NewInt(100),
		QuantityOut:   uint256.NewInt(200),
		MaxGasAsset0:  uint256.NewInt(50),
		GasUsedAsset0: uint256.NewInt(10),
	}
}

func defaultUser() *UserBuffer {
	return &UserBuffer{
		Variant:           MakeUserVariant(true, false, false, false, false, true, false),
		RefID:             1,
		MinPrice:          uint256.NewInt(0),
		Validity:          FlashValidity{ValidForBlock: testEnv.Block},
		Quantity:          uint256.NewInt(1000),
		MaxExtraFeeAsset0: uint256.NewInt(10),
		ExtraFeeAsset0:    uint256.NewInt(5),
	}
}

func orientAssets(zeroForOne bool) (common.Address, common.Address) {
	if zeroForOne {
		return assetA, assetB
	}
	return assetB, assetA
}

// buildBundle signs and encodes any mix of orders into one payload.
func buildBundle(t *testing.T, signer *crypto.Signer, tobs []*TopOfBlockBuffer, users []*UserBuffer, contractSigs map[int]Signature) []byte {
	t.Helper()

	b := NewBuilder()
	ai := b.AddAsset(assetA)
	bi := b.AddAsset(assetB)
	pi := b.AddPair(ai, bi, onePointFiveRay())

	for _, o := range tobs {
		o.AssetIn, o.AssetOut = orientAssets(o.Variant.ZeroForOne())
		o.ValidForBlock = testEnv.Block
		digest := crypto.TypedDigest(testSeparator(), o.StructHash())
		sig, err := signer.Sign(digest.Bytes())
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		b.AddTopOfBlock(o, pi, Signature{Bytes: sig})
	}
	for i, o := range users {
		o.AssetIn, o.AssetOut = orientAssets(o.Variant.ZeroForOne())
		if cs, ok := contractSigs[i]; ok {
			b.AddUserOrder(o, pi, cs)
			continue
		}
		digest := crypto.TypedDigest(testSeparator(), o.StructHash())
		sig, err := signer.Sign(digest.Bytes())
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		b.AddUserOrder(o, pi, Signature{Bytes: sig})
	}

	payload, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return payload
}

func TestToBGasReimbursementForward(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	payload := buildBundle(t, signer, []*TopOfBlockBuffer{defaultToB()}, nil, nil)
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// zeroForOne: gas lands on the inbound leg, inbound settles first,
	// zero recipient falls back to the signer
	want := []string{
		fmt.Sprintf("take:%s:%s:110:false", signer.Address().Hex(), assetA.Hex()),
		fmt.Sprintf("save:%s:%s:200:false", signer.Address().Hex(), assetB.Hex()),
	}
	assertTrace(t, led.trace, want)
}

func TestToBGasReimbursementReverse(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultToB()
	o.Variant = MakeToBVariant(false, false, true, false)
	o.QuantityOut = uint256.NewInt(100)

	payload := buildBundle(t, signer, []*TopOfBlockBuffer{o}, nil, nil)
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{
		fmt.Sprintf("take:%s:%s:100:false", signer.Address().Hex(), assetB.Hex()),
		fmt.Sprintf("save:%s:%s:90:false", signer.Address().Hex(), assetA.Hex()),
	}
	assertTrace(t, led.trace, want)
}

func TestToBGasAboveMax(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultToB()
	o.GasUsedAsset0 = uint256.NewInt(51) // above MaxGasAsset0 = 50

	payload := buildBundle(t, signer, []*TopOfBlockBuffer{o}, nil, nil)
	err := exec.Execute(payload, testEnv)
	if !errors.Is(err, ErrGasAboveMax) {
		t.Fatalf("error = %v, want ErrGasAboveMax", err)
	}
	if len(led.trace) != 0 {
		t.Errorf("settlement dispatched before gas check: %v", led.trace)
	}
}

func TestChargeExceedsOutput(t *testing.T) {
	signer, _ := crypto.GenerateKey()

	t.Run("tob gas larger than outbound quantity", func(t *testing.T) {
		led := &traceLedger{}
		exec := newTestExecutor(led, nil, nil)

		// gas within the signed maximum but not coverable by the output
		o := defaultToB()
		o.Variant = MakeToBVariant(false, false, true, false)
		o.QuantityOut = uint256.NewInt(5)

		payload := buildBundle(t, signer, []*TopOfBlockBuffer{o}, nil, nil)
		if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrChargeExceedsOutput) {
			t.Fatalf("error = %v, want ErrChargeExceedsOutput", err)
		}
		if len(led.trace) != 0 {
			t.Errorf("settlement dispatched despite underflow: %v", led.trace)
		}
	})

	t.Run("user fee larger than outbound quantity", func(t *testing.T) {
		led := &traceLedger{}
		exec := newTestExecutor(led, nil, nil)

		// 3 in at the reverse price yields 1 out, below the fee of 5
		o := defaultUser()
		o.Variant = MakeUserVariant(false, false, false, false, false, true, false)
		o.Quantity = uint256.NewInt(3)

		payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
		if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrChargeExceedsOutput) {
			t.Fatalf("error = %v, want ErrChargeExceedsOutput", err)
		}
		if len(led.trace) != 0 {
			t.Errorf("settlement dispatched despite underflow: %v", led.trace)
		}
	})
}

func TestRecipientResolution(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	explicit := common.HexToAddress("0xbbbb000000000000000000000000000000000001")

	tests := []struct {
		name      string
		recipient common.Address
		want      func() common.Address
	}{
		{"explicit recipient wins", explicit, func() common.Address { return explicit }},
		{"zero falls back to signer", common.Address{}, func() common.Address { return signer.Address() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			led := &traceLedger{}
			exec := newTestExecutor(led, nil, nil)

			o := defaultToB()
			o.Variant = MakeToBVariant(true, true, true, false)
			o.Recipient = tt.recipient

			payload := buildBundle(t, signer, []*TopOfBlockBuffer{o}, nil, nil)
			if err := exec.Execute(payload, testEnv); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			wantSave := fmt.Sprintf("save:%s:%s:200:false", tt.want().Hex(), assetB.Hex())
			if led.trace[1] != wantSave {
				t.Errorf("save = %s, want %s", led.trace[1], wantSave)
			}
		})
	}
}

func TestUserOrderSettlementAndHookOrdering(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	hooks := &traceHooks{ledger: led}
	exec := newTestExecutor(led, hooks, nil)

	hookAddr := common.HexToAddress("0xcccc000000000000000000000000000000000002")
	o := defaultUser()
	o.Variant = MakeUserVariant(true, false, true, false, false, true, true)
	o.HookPayload = append(hookAddr.Bytes(), 0xca, 0xfe)

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// quantity 1000 at price 1.5 → 1500 out; extra fee 5 on the inbound
	// leg (zeroForOne); outbound settles, hook runs, inbound settles
	want := []string{
		fmt.Sprintf("save:%s:%s:1500:true", signer.Address().Hex(), assetB.Hex()),
		fmt.Sprintf("hook:%s:cafe:%s", hookAddr.Hex(), signer.Address().Hex()),
		fmt.Sprintf("take:%s:%s:1005:true", signer.Address().Hex(), assetA.Hex()),
	}
	assertTrace(t, led.trace, want)
}

func TestUserOrderReverseFeeOnOutbound(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultUser()
	o.Variant = MakeUserVariant(false, false, false, false, false, true, false)
	o.Quantity = uint256.NewInt(1500)

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// reverse price = 1/1.5 ray (floored): 1500 in → 999 out, minus the
	// asset0-denominated fee of 5
	want := []string{
		fmt.Sprintf("save:%s:%s:994:false", signer.Address().Hex(), assetA.Hex()),
		fmt.Sprintf("take:%s:%s:1500:false", signer.Address().Hex(), assetB.Hex()),
	}
	assertTrace(t, led.trace, want)
}

func TestUserLimitViolated(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultUser()
	o.MinPrice = uint256.MustFromDecimal("1600000000000000000000000000") // above 1.5 ray

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	err := exec.Execute(payload, testEnv)
	if !errors.Is(err, ErrLimitViolated) {
		t.Fatalf("error = %v, want ErrLimitViolated", err)
	}
	if len(led.trace) != 0 {
		t.Errorf("balance changes despite limit violation: %v", led.trace)
	}
}

func TestUserExtraFeeAboveMax(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultUser()
	o.ExtraFeeAsset0 = uint256.NewInt(11) // above MaxExtraFeeAsset0 = 10

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrGasAboveMax) {
		t.Fatalf("error = %v, want ErrGasAboveMax", err)
	}
	if len(led.trace) != 0 {
		t.Errorf("settlement dispatched before fee check: %v", led.trace)
	}
}

func TestStandingDeadlineExpired(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	exec := newTestExecutor(&traceLedger{}, nil, nil)

	o := defaultUser()
	o.Variant = MakeUserVariant(true, false, false, true, false, true, false)
	o.Validity = StandingValidity{Nonce: 1, Deadline: testEnv.Timestamp - 1}

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("error = %v, want ErrDeadlineExpired", err)
	}
}

func TestStandingZeroDeadlineNeverExpires(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultUser()
	o.Variant = MakeUserVariant(true, false, false, true, false, true, false)
	o.Validity = StandingValidity{Nonce: 1, Deadline: 0}

	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("zero-deadline order rejected: %v", err)
	}
	if len(led.trace) != 2 {
		t.Errorf("trace = %v, want outbound and inbound legs", led.trace)
	}
}

func TestStandingNonceReplayAcrossBundles(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	store, err := invalidation.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	makeBundle := func(refID uint32) []byte {
		o := defaultUser()
		o.Variant = MakeUserVariant(true, false, false, true, false, true, false)
		o.Validity = StandingValidity{Nonce: 42, Deadline: 0}
		o.RefID = refID // distinct hash, same nonce
		return buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	}

	run := func(payload []byte) error {
		session := store.Begin()
		exec := newTestExecutor(&traceLedger{}, nil, nil)
		exec.Invalidator = session
		if err := exec.Execute(payload, testEnv); err != nil {
			session.Discard()
			return err
		}
		return session.Commit()
	}

	if err := run(makeBundle(1)); err != nil {
		t.Fatalf("first bundle: %v", err)
	}
	if err := run(makeBundle(2)); !errors.Is(err, invalidation.ErrNonceReused) {
		t.Fatalf("replayed nonce error = %v, want ErrNonceReused", err)
	}
}

func TestFlashOrderReplayWithinBundle(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	exec := newTestExecutor(&traceLedger{}, nil, nil)

	o1, o2 := defaultUser(), defaultUser()
	payload := buildBundle(t, signer, nil, []*UserBuffer{o1, o2}, nil)
	if err := exec.Execute(payload, testEnv); !errors.Is(err, invalidation.ErrOrderHashReused) {
		t.Fatalf("error = %v, want ErrOrderHashReused", err)
	}
}

func TestPartialFillBounds(t *testing.T) {
	signer, _ := crypto.GenerateKey()

	makePayload := func(fill uint64) []byte {
		o := defaultUser()
		o.Variant = MakeUserVariant(true, false, false, false, true, true, false)
		o.MinQuantityIn = uint256.NewInt(100)
		o.MaxQuantityIn = uint256.NewInt(2000)
		o.Quantity = uint256.NewInt(fill)
		return buildBundle(t, signer, nil, []*UserBuffer{o}, nil)
	}

	exec := newTestExecutor(&traceLedger{}, nil, nil)
	if err := exec.Execute(makePayload(500), testEnv); err != nil {
		t.Fatalf("in-bounds fill: %v", err)
	}

	exec = newTestExecutor(&traceLedger{}, nil, nil)
	if err := exec.Execute(makePayload(99), testEnv); !errors.Is(err, ErrFillOutOfBounds) {
		t.Fatalf("under-fill error = %v, want ErrFillOutOfBounds", err)
	}

	exec = newTestExecutor(&traceLedger{}, nil, nil)
	if err := exec.Execute(makePayload(2001), testEnv); !errors.Is(err, ErrFillOutOfBounds) {
		t.Fatalf("over-fill error = %v, want ErrFillOutOfBounds", err)
	}
}

func TestContractSignatureDispatch(t *testing.T) {
	signer, _ := crypto.GenerateKey() // signs nothing here; wallet is a contract
	wallet := common.HexToAddress("0xdddd000000000000000000000000000000000003")
	proof := []byte("erc1271-proof")

	o := defaultUser()
	o.Variant = MakeUserVariant(true, false, false, false, false, false, false)

	led := &traceLedger{}
	exec := newTestExecutor(led, nil, &mapValidator{from: wallet, sig: proof})
	payload := buildBundle(t, signer, nil, []*UserBuffer{o}, map[int]Signature{0: {From: wallet, Bytes: proof}})
	if err := exec.Execute(payload, testEnv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// the validated contract is the authenticated party
	wantTake := fmt.Sprintf("take:%s:%s:1005:false", wallet.Hex(), assetA.Hex())
	if led.trace[1] != wantTake {
		t.Errorf("take = %s, want %s", led.trace[1], wantTake)
	}

	// wrong proof fails validation
	o2 := defaultUser()
	o2.Variant = o.Variant
	exec = newTestExecutor(&traceLedger{}, nil, &mapValidator{from: wallet, sig: proof})
	payload = buildBundle(t, signer, nil, []*UserBuffer{o2}, map[int]Signature{0: {From: wallet, Bytes: []byte("bogus")}})
	if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("error = %v, want ErrInvalidSignature", err)
	}
}

func TestTamperedOrderFailsAuthentication(t *testing.T) {
	// Flipping an encoded field after signing shifts the recovered
	// signer; with no internal balance requirement the trade would still
	// settle, but never against the original signer. Executing with an
	// internal-routing order makes the mismatch observable here.
	signer, _ := crypto.GenerateKey()
	led := &traceLedger{}
	exec := newTestExecutor(led, nil, nil)

	o := defaultToB()
	payload := buildBundle(t, signer, []*TopOfBlockBuffer{o}, nil, nil)

	// quantityIn low byte sits at a fixed offset inside the ToB record
	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	idx := findToBQuantityInLowByte(payload)
	tampered[idx] ^= 0x01

	if err := exec.Execute(tampered, testEnv); err == nil {
		for _, line := range led.trace {
			if line == fmt.Sprintf("take:%s:%s:111:false", signer.Address().Hex(), assetA.Hex()) {
				t.Fatal("tampered order still authenticated as the original signer")
			}
		}
	}
}

// findToBQuantityInLowByte walks the fixed section framing to the low
// byte of the first ToB record's quantityIn.
func findToBQuantityInLowByte(payload []byte) int {
	r := encoding.NewReader(payload)
	end, _ := r.ReadU24End()
	_, _ = r.ReadBytesTo(end) // assets
	end, _ = r.ReadU24End()
	_, _ = r.ReadBytesTo(end) // pairs
	_, _ = r.ReadU24End()     // tob section header
	return r.Offset() + 1 + 15
}

func TestTooManyOrders(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	exec := newTestExecutor(&traceLedger{}, nil, nil)
	exec.MaxOrders = 1

	o1, o2 := defaultToB(), defaultToB()
	o2.QuantityIn = uint256.NewInt(101) // distinct hash
	payload := buildBundle(t, signer, []*TopOfBlockBuffer{o1, o2}, nil, nil)
	if err := exec.Execute(payload, testEnv); !errors.Is(err, ErrTooManyOrders) {
		t.Fatalf("error = %v, want ErrTooManyOrders", err)
	}
}

func TestMalformedPayloads(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	payload := buildBundle(t, signer, []*TopOfBlockBuffer{defaultToB()}, []*UserBuffer{defaultUser()}, nil)

	t.Run("trailing byte", func(t *testing.T) {
		exec := newTestExecutor(&traceLedger{}, nil, nil)
		err := exec.Execute(append(append([]byte{}, payload...), 0x00), testEnv)
		if !errors.Is(err, encoding.ErrTrailingBytes) {
			t.Errorf("error = %v, want ErrTrailingBytes", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		exec := newTestExecutor(&traceLedger{}, nil, nil)
		err := exec.Execute(payload[:len(payload)-10], testEnv)
		if !errors.Is(err, encoding.ErrOutOfBounds) {
			t.Errorf("error = %v, want ErrOutOfBounds", err)
		}
	})

	t.Run("empty bundle settles nothing", func(t *testing.T) {
		led := &traceLedger{}
		exec := newTestExecutor(led, nil, nil)
		empty, err := NewBuilder().Build()
		if err != nil {
			t.Fatal(err)
		}
		if err := exec.Execute(empty, testEnv); err != nil {
			t.Errorf("empty bundle: %v", err)
		}
		if len(led.trace) != 0 {
			t.Errorf("empty bundle moved assets: %v", led.trace)
		}
	})
}

func assertTrace(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trace[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
