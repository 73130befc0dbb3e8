package cardauth

import "time"

// Card is a provisioned Bolt Card and its withdraw policy, as held by
// the repository (internal/store). K0-K4 are kept decrypted in memory
// only for the lifetime of a single Tap/Callback call; the repository
// is responsible for decrypting them at rest.
type Card struct {
	CardID        int64
	UID           [7]byte
	UIDBound      bool
	K0            AesKey // opaque to withdraw, provisioned and returned to the programmer app
	K1            AesKey // decrypt key, used against the tap's p= parameter
	K2            AesKey // CMAC session key, used against the tap's c= parameter
	K3            AesKey // opaque to withdraw
	K4            AesKey // opaque to withdraw
	LastCounter   uint32
	Enabled       bool
	TxLimitSats   int64
	DayLimitSats  int64
	CardName      string
	CreatedAt     time.Time
}

// SessionStatus is the one-way state a withdraw session moves through:
// Pending (k1 minted, no invoice yet) -> Invoiced (invoice attached,
// payment attempted) -> Paid (settlement recorded). There is no path
// back to an earlier state.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionInvoiced SessionStatus = "invoiced"
	SessionPaid     SessionStatus = "paid"
)

// Session is a single LNURLw withdraw attempt: minted on a verified tap,
// settled by the subsequent callback carrying a bolt11 invoice.
type Session struct {
	PaymentID   int64
	CardID      int64
	SessionToken string // the LNURLw "k1" query parameter; unrelated to the card's k1 decrypt key
	Invoice     string
	AmountMsats int64
	Status      SessionStatus
	Paid        bool
	PaymentTime time.Time
	CreatedAt   time.Time
}

// LNURLWPayResponse is the payload returned from GET /ln for a
// successfully authenticated tap, per the LNURL-withdraw draft.
type LNURLWPayResponse struct {
	Status             string `json:"status"`
	Tag                string `json:"tag"`
	K1                 string `json:"k1"`
	Callback           string `json:"callback"`
	DefaultDescription string `json:"defaultDescription"`
	MinWithdrawable    int64  `json:"minWithdrawable"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
}

// CallbackResult is returned from a successful POST-equivalent GET
// /ln/callback once the invoice has been paid.
type CallbackResult struct {
	Status string `json:"status"`
}

// NodeInfo is the subset of a Lightning node's self-description this
// package needs; populated from C4's GetInfo.
type NodeInfo struct {
	Alias     string
	PublicKey string
}

// PaymentResult is returned by every LightningBackend.PayInvoice call,
// success or failure; the backend reports failure in-band rather than
// via a Go error so that a node/network failure is handled identically
// to any other PayFailed cause.
type PaymentResult struct {
	Success  bool
	Preimage [32]byte
	FeeMsats int64
	Error    string
}

// Invoice is the subset of a decoded bolt11 invoice C3 exposes.
type Invoice struct {
	PaymentHash string
	AmountMsats int64
	Description string
	Expired     bool
}
