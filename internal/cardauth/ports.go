package cardauth

import "context"

// Repository is the storage contract C5 depends on (C2). internal/store
// provides the Postgres-backed implementation; tests use an in-memory
// fake satisfying the same interface.
type Repository interface {
	// FindEnabledCards returns every enabled card, for the candidate-
	// iteration tap path.
	FindEnabledCards(ctx context.Context) ([]Card, error)
	// FindCard returns a single card by id, for the indexed /ln/{card_id}
	// tap path.
	FindCard(ctx context.Context, cardID int64) (*Card, error)

	// BindUID sets uid on a card whose stored uid is empty. A no-op if
	// the card's uid already equals uid.
	BindUID(ctx context.Context, cardID int64, uid [7]byte) error

	// AdvanceCounter atomically sets last_counter to newCounter only if
	// newCounter is strictly greater than the current value, reporting
	// whether the row was updated.
	AdvanceCounter(ctx context.Context, cardID int64, newCounter uint32) (bool, error)

	// CreateSession inserts a Pending session and returns its id.
	CreateSession(ctx context.Context, cardID int64, sessionToken string) (int64, error)
	// FindSession looks up a session by its token.
	FindSession(ctx context.Context, sessionToken string) (*Session, error)
	// AttachInvoice moves a session Pending -> Invoiced.
	AttachInvoice(ctx context.Context, paymentID int64, invoice string, amountMsats int64) error
	// MarkPaid moves a session Invoiced -> Paid, recording the payment
	// time atomically with the status change.
	MarkPaid(ctx context.Context, paymentID int64) error

	// DailyTotalMsats sums amount_msats for this card's paid sessions
	// with payment_time within the last rolling 24 hours.
	DailyTotalMsats(ctx context.Context, cardID int64) (int64, error)
}

// InvoiceParser is C3: parsing a bolt11 string into its withdraw-relevant
// fields.
type InvoiceParser interface {
	Parse(raw string) (Invoice, error)
}

// LightningBackend is C4's two-operation contract.
type LightningBackend interface {
	PayInvoice(ctx context.Context, invoice string, expectedAmountMsats int64) (PaymentResult, error)
	GetInfo(ctx context.Context) (NodeInfo, error)
}

// CardLock is an advisory, per-card lock. Service.Tap tries it only after
// a tap has been decrypted, verified and matched to a card, and holds it
// across the UID-bind, counter-advance and session-mint steps. A tap that
// fails to acquire it carries on without it, so the lock never blocks or
// rejects a concurrent tap. It is never a substitute for
// Repository.AdvanceCounter's atomic conditional write — the repository
// alone is the correctness boundary. A nil CardLock is valid: the service
// then relies solely on the repository's atomicity.
type CardLock interface {
	// TryLock attempts to acquire the lock for cardID, returning a
	// release function and whether the lock was acquired. Implementations
	// MUST NOT block; a busy lock is reported as acquired=false so the
	// caller can proceed without the optimisation rather than stall.
	TryLock(ctx context.Context, cardID int64) (release func(), acquired bool, err error)
}
