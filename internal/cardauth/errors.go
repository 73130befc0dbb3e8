package cardauth

import "errors"

// Sentinel errors returned by the crypto primitives in crypto.go. These
// are wrapped into Kind-tagged Errors by the service layer before they
// reach an HTTP handler; callers outside this package should match on
// Kind, not on these directly.
var (
	ErrBadLength = errors.New("cardauth: invalid input length")
	ErrBadKey    = errors.New("cardauth: invalid key")
	ErrBadTag    = errors.New("cardauth: unexpected tag byte")
)

// Kind classifies a Tap or Callback failure for the HTTP layer, which
// maps every Kind but InternalError to LNURLw's {"status":"ERROR"}
// response with HTTP 400; InternalError alone maps to 500.
type Kind string

const (
	KindInvalidParam    Kind = "invalid_param"
	KindCardNotFound    Kind = "card_not_found"
	KindUIDMismatch     Kind = "uid_mismatch"
	KindReplay          Kind = "replay"
	KindInvalidK1       Kind = "invalid_k1"
	KindAlreadyProcessed Kind = "already_processed"
	KindBadInvoice      Kind = "bad_invoice"
	KindNoAmount        Kind = "no_amount"
	KindTxLimit         Kind = "tx_limit_exceeded"
	KindDayLimit        Kind = "day_limit_exceeded"
	KindPayFailed       Kind = "pay_failed"
	KindInternalError   Kind = "internal_error"
)

// Error is the typed failure every cardauth operation returns. Reason is
// a short, user-safe explanation; it never contains the detail of the
// wrapped cause, which is logged separately at the call site.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Reason + ": " + e.cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
