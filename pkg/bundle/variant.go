package bundle

// Variant maps are single-byte bitfields fixed at decode time; every
// accessor is a pure bit test. The bit assignments are part of the wire
// format.

// ToBVariant selects the optional fields of a top-of-block order record.
type ToBVariant uint8

const (
	tobZeroForOne ToBVariant = 1 << iota
	tobRecipient
	tobEcdsa
	tobInternal
)

// ZeroForOne reports the trade direction: asset0 in, asset1 out.
func (v ToBVariant) ZeroForOne() bool { return v&tobZeroForOne != 0 }

// RecipientIsSome reports whether a recipient address follows on the wire.
func (v ToBVariant) RecipientIsSome() bool { return v&tobRecipient != 0 }

// IsEcdsa selects the 65-byte ECDSA signature shape over contract validation.
func (v ToBVariant) IsEcdsa() bool { return v&tobEcdsa != 0 }

// UseInternal routes settlement through internal balances.
func (v ToBVariant) UseInternal() bool { return v&tobInternal != 0 }

// MakeToBVariant builds the bitfield producer-side.
func MakeToBVariant(zeroForOne, recipientIsSome, isEcdsa, useInternal bool) ToBVariant {
	var v ToBVariant
	if zeroForOne {
		v |= tobZeroForOne
	}
	if recipientIsSome {
		v |= tobRecipient
	}
	if isEcdsa {
		v |= tobEcdsa
	}
	if useInternal {
		v |= tobInternal
	}
	return v
}

// UserVariant selects the optional fields and sub-variant of a user
// order record.
type UserVariant uint8

const (
	userZeroForOne UserVariant = 1 << iota
	userRecipient
	userHook
	userStanding
	userPartial
	userEcdsa
	userInternal
)

func (v UserVariant) ZeroForOne() bool      { return v&userZeroForOne != 0 }
func (v UserVariant) RecipientIsSome() bool { return v&userRecipient != 0 }

// NoHook reports that no hook payload follows and no hook runs at
// settlement.
func (v UserVariant) NoHook() bool { return v&userHook == 0 }

// IsStanding selects the standing sub-variant (nonce+deadline encoded)
// over flash (valid only for the current round).
func (v UserVariant) IsStanding() bool { return v&userStanding != 0 }

// QuantitiesPartial reports that signed min/max fill bounds precede the
// node-chosen fill quantity.
func (v UserVariant) QuantitiesPartial() bool { return v&userPartial != 0 }

func (v UserVariant) IsEcdsa() bool     { return v&userEcdsa != 0 }
func (v UserVariant) UseInternal() bool { return v&userInternal != 0 }

// MakeUserVariant builds the bitfield producer-side.
func MakeUserVariant(zeroForOne, recipientIsSome, hasHook, isStanding, partial, isEcdsa, useInternal bool) UserVariant {
	var v UserVariant
	if zeroForOne {
		v |= userZeroForOne
	}
	if recipientIsSome {
		v |= userRecipient
	}
	if hasHook {
		v |= userHook
	}
	if isStanding {
		v |= userStanding
	}
	if partial {
		v |= userPartial
	}
	if isEcdsa {
		v |= userEcdsa
	}
	if useInternal {
		v |= userInternal
	}
	return v
}
