package bundle

import "errors"

// Every error below is fatal to the whole bundle: execution aborts with
// no asset movement and no invalidation committed. Malformed-encoding
// failures (out-of-bounds reads, trailing bytes) surface from the
// encoding package; replay failures surface from the invalidation
// package.
var (
	// ErrTooManyOrders caps the decode loops so a mis-declared section
	// length cannot run the loop until the buffer is exhausted.
	ErrTooManyOrders = errors.New("bundle: order count exceeds cap")

	// ErrGasAboveMax means the node charged more gas or extra fee than
	// the order signed off on.
	ErrGasAboveMax = errors.New("bundle: gas used above signed maximum")

	// ErrChargeExceedsOutput means the asset0-denominated gas or extra
	// fee is larger than the outbound quantity it must be deducted
	// from. Distinct from ErrGasAboveMax: the charge may sit within the
	// signed maximum and still not fit the order's output.
	ErrChargeExceedsOutput = errors.New("bundle: asset0 charge exceeds outbound quantity")

	// ErrLimitViolated means the pair's current oriented price is worse
	// than the order's minimum acceptable price.
	ErrLimitViolated = errors.New("bundle: price limit violated")

	// ErrInvalidSignature covers failed ECDSA recovery, a recovered zero
	// address, and failed contract validation.
	ErrInvalidSignature = errors.New("bundle: invalid signature")

	// ErrDeadlineExpired means a standing order's deadline lies before
	// the round timestamp.
	ErrDeadlineExpired = errors.New("bundle: order deadline expired")

	// ErrFillOutOfBounds means a partial order's fill quantity falls
	// outside its signed min/max bounds.
	ErrFillOutOfBounds = errors.New("bundle: fill quantity outside signed bounds")

	// ErrBadPairSection covers malformed asset/pair sections: unsorted
	// or duplicate assets, pair indices out of range, unordered pairs,
	// zero prices.
	ErrBadPairSection = errors.New("bundle: malformed asset or pair section")

	// ErrUnknownPair means an order referenced a pair index the bundle
	// did not declare.
	ErrUnknownPair = errors.New("bundle: unknown pair index")
)
