package registration

import (
	"context"
	"time"

	"lnurlw-boltcard/internal/cardauth"
)

// CardRecord is the provisioning view of a card: the five raw keys plus
// the one-time code bookkeeping, distinct from cardauth.Card which never
// exposes k0/k3/k4 outside a decrypt/CMAC check.
type CardRecord struct {
	CardID            int64
	CardName          string
	K0, K1, K2, K3, K4 cardauth.AesKey
	OneTimeCodeExpiry time.Time
	OneTimeCodeUsed   bool
}

// CreateCardParams is what Repository.CreateCard persists for a freshly
// provisioned card. UID is left unbound; the card binds to its first tap
// per §4.2.
type CreateCardParams struct {
	CardName          string
	K0, K1, K2, K3, K4 cardauth.AesKey
	Enabled           bool
	TxLimitSats       int64
	DayLimitSats      int64
	OneTimeCode       string
	OneTimeCodeExpiry time.Time
}

// Repository is the provisioning-side persistence contract. It is
// separate from cardauth.Repository because the core withdraw path never
// needs to create cards or read raw keys back out.
type Repository interface {
	CreateCard(ctx context.Context, params CreateCardParams) (int64, error)
	FindByOneTimeCode(ctx context.Context, code string) (*CardRecord, error)
	MarkOneTimeCodeUsed(ctx context.Context, cardID int64) error
}
