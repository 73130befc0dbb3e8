package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lnurlw-boltcard/internal/cardauth"
	boltcrypto "lnurlw-boltcard/internal/crypto"
)

// keyCodec encrypts/decrypts the five card AES keys at rest using the
// generic AES-256-GCM helper internal/crypto already provides for
// at-rest secrets; masterKey never appears in the cards table itself.
type keyCodec struct {
	masterKey []byte
}

func newKeyCodec(masterKey []byte) (*keyCodec, error) {
	if len(masterKey) != boltcrypto.KeySize {
		return nil, fmt.Errorf("store: master key must be %d bytes", boltcrypto.KeySize)
	}
	return &keyCodec{masterKey: masterKey}, nil
}

func (c *keyCodec) encrypt(key cardauth.AesKey) ([]byte, error) {
	b64, err := boltcrypto.Encrypt(base64.StdEncoding.EncodeToString(key[:]), c.masterKey)
	if err != nil {
		return nil, err
	}
	return []byte(b64), nil
}

func (c *keyCodec) decrypt(enc []byte) (cardauth.AesKey, error) {
	var out cardauth.AesKey
	if enc == nil {
		return out, nil
	}
	plainB64, err := boltcrypto.Decrypt(string(enc), c.masterKey)
	if err != nil {
		return out, err
	}
	raw, err := base64.StdEncoding.DecodeString(plainB64)
	if err != nil {
		return out, err
	}
	k, err := cardauth.NewAesKey(raw)
	if err != nil {
		return out, err
	}
	return k, nil
}

// CardRepository implements cardauth.Repository against Postgres.
type CardRepository struct {
	pool  *pgxpool.Pool
	codec *keyCodec
}

// NewCardRepository builds the repository. masterKey encrypts the five
// per-card AES keys at rest; it must be 32 bytes and is typically loaded
// from a secrets manager or env var outside the database itself.
func NewCardRepository(db *DB, masterKey []byte) (*CardRepository, error) {
	codec, err := newKeyCodec(masterKey)
	if err != nil {
		return nil, err
	}
	return &CardRepository{pool: db.pool, codec: codec}, nil
}

const cardColumns = `card_id, uid, k0, k1, k2, k3, k4, last_counter, enabled,
	tx_limit_sats, day_limit_sats, card_name, one_time_code,
	one_time_code_expiry, one_time_code_used, created_at`

func (r *CardRepository) scanCard(row pgx.Row) (*cardauth.Card, error) {
	var rawRow cardRow
	err := row.Scan(
		&rawRow.CardID, &rawRow.UID, &rawRow.K0Enc, &rawRow.K1Enc, &rawRow.K2Enc,
		&rawRow.K3Enc, &rawRow.K4Enc, &rawRow.LastCounter, &rawRow.Enabled,
		&rawRow.TxLimitSats, &rawRow.DayLimitSats, &rawRow.CardName,
		&rawRow.OneTimeCode, &rawRow.OneTimeCodeExpiry, &rawRow.OneTimeCodeUsed,
		&rawRow.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.decodeCard(rawRow)
}

func (r *CardRepository) decodeCard(row cardRow) (*cardauth.Card, error) {
	card := &cardauth.Card{
		CardID:       row.CardID,
		LastCounter:  uint32(row.LastCounter),
		Enabled:      row.Enabled,
		TxLimitSats:  row.TxLimitSats,
		DayLimitSats: row.DayLimitSats,
		CardName:     row.CardName,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.UID) == 7 {
		copy(card.UID[:], row.UID)
		card.UIDBound = true
	}

	var err error
	if card.K0, err = r.codec.decrypt(row.K0Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k0: %w", err)
	}
	if card.K1, err = r.codec.decrypt(row.K1Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k1: %w", err)
	}
	if card.K2, err = r.codec.decrypt(row.K2Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k2: %w", err)
	}
	if card.K3, err = r.codec.decrypt(row.K3Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k3: %w", err)
	}
	if card.K4, err = r.codec.decrypt(row.K4Enc); err != nil {
		return nil, fmt.Errorf("failed to decrypt k4: %w", err)
	}
	return card, nil
}

// FindEnabledCards returns every enabled card, decrypted, for the
// candidate-iteration tap path.
func (r *CardRepository) FindEnabledCards(ctx context.Context) ([]cardauth.Card, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cardColumns+` FROM cards WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled cards: %w", err)
	}
	defer rows.Close()

	var out []cardauth.Card
	for rows.Next() {
		card, err := r.scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		out = append(out, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating card rows: %w", err)
	}
	return out, nil
}

// FindCard returns a single card by id, or nil if it does not exist.
func (r *CardRepository) FindCard(ctx context.Context, cardID int64) (*cardauth.Card, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_id = $1`, cardID)
	card, err := r.scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %d: %w", cardID, err)
	}
	return card, nil
}

// BindUID sets uid on a card whose stored uid is still empty; re-binding
// the same value is a no-op, matching §4.2's idempotence requirement.
func (r *CardRepository) BindUID(ctx context.Context, cardID int64, uid [7]byte) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE cards SET uid = $2 WHERE card_id = $1 AND uid IS NULL`,
		cardID, uid[:])
	if err != nil {
		return fmt.Errorf("failed to bind uid for card %d: %w", cardID, err)
	}
	return nil
}

// AdvanceCounter is the sole replay-protection primitive: a single
// conditional UPDATE, not a read followed by a write.
func (r *CardRepository) AdvanceCounter(ctx context.Context, cardID int64, newCounter uint32) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cards SET last_counter = $2 WHERE card_id = $1 AND last_counter < $2`,
		cardID, int64(newCounter))
	if err != nil {
		return false, fmt.Errorf("failed to advance counter for card %d: %w", cardID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateSession inserts a Pending session and returns its id.
func (r *CardRepository) CreateSession(ctx context.Context, cardID int64, sessionToken string) (int64, error) {
	var paymentID int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO card_payments (card_id, k1_session, paid, created_at)
		 VALUES ($1, $2, false, now()) RETURNING payment_id`,
		cardID, sessionToken,
	).Scan(&paymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to create session for card %d: %w", cardID, err)
	}
	return paymentID, nil
}

func (r *CardRepository) scanSession(row pgx.Row) (*cardauth.Session, error) {
	var raw sessionRow
	err := row.Scan(&raw.PaymentID, &raw.CardID, &raw.SessionToken,
		&raw.Invoice, &raw.AmountMsats, &raw.Paid, &raw.PaymentTime, &raw.CreatedAt)
	if err != nil {
		return nil, err
	}

	session := &cardauth.Session{
		PaymentID:    raw.PaymentID,
		CardID:       raw.CardID,
		SessionToken: raw.SessionToken,
		Paid:         raw.Paid,
		CreatedAt:    raw.CreatedAt,
		Status:       cardauth.SessionPending,
	}
	if raw.Invoice != nil {
		session.Invoice = *raw.Invoice
		session.Status = cardauth.SessionInvoiced
	}
	if raw.AmountMsats != nil {
		session.AmountMsats = *raw.AmountMsats
	}
	if raw.Paid {
		session.Status = cardauth.SessionPaid
	}
	if raw.PaymentTime != nil {
		session.PaymentTime = *raw.PaymentTime
	}
	return session, nil
}

const sessionColumns = `payment_id, card_id, k1_session, invoice, amount_msats, paid, payment_time, created_at`

// FindSession looks up a session by its token.
func (r *CardRepository) FindSession(ctx context.Context, sessionToken string) (*cardauth.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM card_payments WHERE k1_session = $1`, sessionToken)
	session, err := r.scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// AttachInvoice moves a session Pending -> Invoiced.
func (r *CardRepository) AttachInvoice(ctx context.Context, paymentID int64, invoice string, amountMsats int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE card_payments SET invoice = $2, amount_msats = $3
		 WHERE payment_id = $1 AND paid = false`,
		paymentID, invoice, amountMsats)
	if err != nil {
		return fmt.Errorf("failed to attach invoice to session %d: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found or already paid", paymentID)
	}
	return nil
}

// MarkPaid moves a session Invoiced -> Paid, recording payment_time in
// the same statement so no reader can observe paid=true with a nil
// payment_time.
func (r *CardRepository) MarkPaid(ctx context.Context, paymentID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE card_payments SET paid = true, payment_time = now()
		 WHERE payment_id = $1 AND paid = false`,
		paymentID)
	if err != nil {
		return fmt.Errorf("failed to mark session %d paid: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found or already paid", paymentID)
	}
	return nil
}

// DailyTotalMsats sums amount_msats for this card's paid sessions whose
// payment_time falls within a rolling 24-hour window.
func (r *CardRepository) DailyTotalMsats(ctx context.Context, cardID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_msats), 0) FROM card_payments
		 WHERE card_id = $1 AND paid = true AND payment_time > $2`,
		cardID, time.Now().Add(-24*time.Hour),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to compute daily total for card %d: %w", cardID, err)
	}
	return total, nil
}

// FindStaleInvoiced returns unpaid sessions that carry an invoice and were
// created more than olderThan ago, for the reconciliation worker
// (cmd/worker/reconcile). It is not
// part of cardauth.Repository: the core never calls it, per §7's "no
// retry" policy and §9's residual-state design note.
func (r *CardRepository) FindStaleInvoiced(ctx context.Context, olderThan time.Duration) ([]cardauth.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM card_payments
		 WHERE paid = false AND invoice IS NOT NULL AND created_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale invoiced sessions: %w", err)
	}
	defer rows.Close()

	var out []cardauth.Session
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale session row: %w", err)
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale session rows: %w", err)
	}
	return out, nil
}

var _ cardauth.Repository = (*CardRepository)(nil)
