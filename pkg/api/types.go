package api

// Request and response types for REST endpoints and WebSocket messages.

// SubmitBundleRequest is the payload for POST /api/v1/bundles. Payload
// is the 0x-hex encoded bundle.
type SubmitBundleRequest struct {
	Payload string `json:"payload"`
}

// SubmitBundleResponse reports a committed bundle.
type SubmitBundleResponse struct {
	Status string        `json:"status"` // "committed"
	Round  uint64        `json:"round"`
	Orders []SettledInfo `json:"orders"`
}

// SettledInfo describes one settled order.
type SettledInfo struct {
	Kind      string `json:"kind"` // "tob" or "user"
	Signer    string `json:"signer"`
	Recipient string `json:"recipient"`
	AssetIn   string `json:"assetIn"`
	AssetOut  string `json:"assetOut"`
	AmountIn  string `json:"amountIn"`  // decimal string, amounts exceed int64
	AmountOut string `json:"amountOut"` // decimal string
}

// BalanceInfo is the response for account balance queries.
type BalanceInfo struct {
	Address         string `json:"address"`
	Asset           string `json:"asset"`
	InternalBalance string `json:"internalBalance"`
	PendingOutflow  string `json:"pendingOutflow"`
}

// RewardInfo is the response for position reward queries.
type RewardInfo struct {
	PositionKey string `json:"positionKey"`
	Accrued     string `json:"accrued"`
}

// PairInfo describes one pair from the last committed bundle.
type PairInfo struct {
	Asset0      string `json:"asset0"`
	Asset1      string `json:"asset1"`
	Price1Over0 string `json:"price1Over0"` // ray fixed point, decimal string
}

// StatusInfo reports engine state.
type StatusInfo struct {
	Round           uint64 `json:"round"`
	DomainSeparator string `json:"domainSeparator"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSSubscribeRequest is sent by a client to manage channel
// subscriptions, e.g. ["settlements", "settlements:0x<signer>"].
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// SettlementUpdate is broadcast to subscribers after each committed
// bundle, one message per settled order.
type SettlementUpdate struct {
	Type  string      `json:"type"` // "settlement"
	Round uint64      `json:"round"`
	Order SettledInfo `json:"order"`
}
