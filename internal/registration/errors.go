package registration

import "errors"

// Kind classifies a registration failure for the HTTP layer.
type Kind string

const (
	KindNotFound      Kind = "code_not_found"
	KindCodeUsed      Kind = "code_already_used"
	KindCodeExpired   Kind = "code_expired"
	KindInvalidParam  Kind = "invalid_param"
	KindInternalError Kind = "internal_error"
)

// Error is the typed failure GetCardRegistration and CreateCard return.
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
