package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lnurlw-boltcard/internal/registration"
)

// CreateCard implements registration.Repository: it inserts a new card
// with no bound uid (the card binds to its first tap per §4.2) and the
// five keys encrypted at rest through the same codec cards.go uses for
// the withdraw path.
func (r *CardRepository) CreateCard(ctx context.Context, params registration.CreateCardParams) (int64, error) {
	k0, err := r.codec.encrypt(params.K0)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt k0: %w", err)
	}
	k1, err := r.codec.encrypt(params.K1)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt k1: %w", err)
	}
	k2, err := r.codec.encrypt(params.K2)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt k2: %w", err)
	}
	k3, err := r.codec.encrypt(params.K3)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt k3: %w", err)
	}
	k4, err := r.codec.encrypt(params.K4)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt k4: %w", err)
	}

	var cardID int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO cards (uid, k0, k1, k2, k3, k4, last_counter, enabled,
			tx_limit_sats, day_limit_sats, card_name,
			one_time_code, one_time_code_expiry, one_time_code_used, created_at)
		 VALUES (NULL, $1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11, false, now())
		 RETURNING card_id`,
		k0, k1, k2, k3, k4, params.Enabled,
		params.TxLimitSats, params.DayLimitSats, params.CardName,
		params.OneTimeCode, params.OneTimeCodeExpiry,
	).Scan(&cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to create card: %w", err)
	}
	return cardID, nil
}

// FindByOneTimeCode implements registration.Repository.
func (r *CardRepository) FindByOneTimeCode(ctx context.Context, code string) (*registration.CardRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT card_id, card_name, k0, k1, k2, k3, k4, one_time_code_expiry, one_time_code_used
		 FROM cards WHERE one_time_code = $1`, code)

	var (
		cardID                         int64
		cardName                       string
		k0Enc, k1Enc, k2Enc, k3Enc, k4Enc []byte
		expiry                         time.Time
		used                           bool
	)
	err := row.Scan(&cardID, &cardName, &k0Enc, &k1Enc, &k2Enc, &k3Enc, &k4Enc, &expiry, &used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up card by one-time code: %w", err)
	}

	rec := &registration.CardRecord{
		CardID:            cardID,
		CardName:          cardName,
		OneTimeCodeExpiry: expiry,
		OneTimeCodeUsed:   used,
	}
	if rec.K0, err = r.codec.decrypt(k0Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k0: %w", err)
	}
	if rec.K1, err = r.codec.decrypt(k1Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k1: %w", err)
	}
	if rec.K2, err = r.codec.decrypt(k2Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k2: %w", err)
	}
	if rec.K3, err = r.codec.decrypt(k3Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k3: %w", err)
	}
	if rec.K4, err = r.codec.decrypt(k4Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k4: %w", err)
	}
	return rec, nil
}

// MarkOneTimeCodeUsed implements registration.Repository.
func (r *CardRepository) MarkOneTimeCodeUsed(ctx context.Context, cardID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE cards SET one_time_code_used = true WHERE card_id = $1`, cardID)
	if err != nil {
		return fmt.Errorf("failed to mark one-time code used for card %d: %w", cardID, err)
	}
	return nil
}

var _ registration.Repository = (*CardRepository)(nil)
