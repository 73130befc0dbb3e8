// Package registration implements the Bolt Card provisioning flow: an
// operator calls POST /api/createboltcard to mint a fresh card record and
// a one-time code, then the NFC programmer app redeems that code once via
// GET /new?a=<code> to read back the five keys it burns onto the card.
// This is grounded on original_source/src/handlers/register.rs, which the
// distilled spec omits but which original_source implements as the only
// way a card's keys ever reach the programmer.
package registration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"lnurlw-boltcard/internal/cardauth"
)

// Config holds the operator-facing defaults applied when a
// CreateCardRequest leaves a field unset, plus the URLs embedded in
// responses.
type Config struct {
	// LNURLWBase is the base URL a freshly provisioned card's lnurlw tag
	// resolves to, e.g. "lnurlw://cards.example.com/ln".
	LNURLWBase string
	// RegistrationBase is the URL the programmer app's GET request lands
	// on, e.g. "https://cards.example.com/new".
	RegistrationBase    string
	DefaultTxLimitSats  int64
	DefaultDayLimitSats int64
	CodeTTL             time.Duration
}

// Service implements the provisioning flow described in this package's
// doc comment.
type Service struct {
	repo Repository
	cfg  Config
}

// NewService builds a Service backed by repo.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// CreateCard provisions a new card: five fresh AES-128 keys, a random
// one-time code, and the operator's limit defaults where the request
// leaves them unset. It never returns the keys themselves — only a URL
// the operator hands to the programmer app, which redeems the code
// exactly once via GetCardRegistration.
func (s *Service) CreateCard(ctx context.Context, req CreateCardRequest) (*CreateCardResponse, error) {
	keys, err := generateKeys()
	if err != nil {
		return nil, newError(KindInternalError, "failed to generate card keys", err)
	}

	code, err := generateOneTimeCode()
	if err != nil {
		return nil, newError(KindInternalError, "failed to generate one-time code", err)
	}

	txLimit := s.cfg.DefaultTxLimitSats
	if req.TxLimitSats != nil {
		txLimit = *req.TxLimitSats
	}
	dayLimit := s.cfg.DefaultDayLimitSats
	if req.DayLimitSats != nil {
		dayLimit = *req.DayLimitSats
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	params := CreateCardParams{
		CardName:          req.CardName,
		K0:                keys[0],
		K1:                keys[1],
		K2:                keys[2],
		K3:                keys[3],
		K4:                keys[4],
		Enabled:           enabled,
		TxLimitSats:       txLimit,
		DayLimitSats:      dayLimit,
		OneTimeCode:       code,
		OneTimeCodeExpiry: time.Now().Add(s.cfg.CodeTTL),
	}

	if _, err := s.repo.CreateCard(ctx, params); err != nil {
		return nil, newError(KindInternalError, "failed to create card", err)
	}

	return &CreateCardResponse{
		Status: "OK",
		URL:    fmt.Sprintf("%s?a=%s", s.cfg.RegistrationBase, code),
	}, nil
}

// GetCardRegistration redeems a one-time code, returning the five raw
// keys the programmer app burns onto the card. The code is consumed on
// success: a second call with the same code fails with KindCodeUsed.
func (s *Service) GetCardRegistration(ctx context.Context, code string) (*CardRegistrationResponse, error) {
	if code == "" {
		return nil, newError(KindInvalidParam, "missing registration code", nil)
	}

	rec, err := s.repo.FindByOneTimeCode(ctx, code)
	if err != nil {
		return nil, newError(KindInternalError, "failed to look up registration code", err)
	}
	if rec == nil {
		return nil, newError(KindNotFound, "registration code not found", nil)
	}
	if rec.OneTimeCodeUsed {
		return nil, newError(KindCodeUsed, "registration code already used", nil)
	}
	if time.Now().After(rec.OneTimeCodeExpiry) {
		return nil, newError(KindCodeExpired, "registration code expired", nil)
	}

	if err := s.repo.MarkOneTimeCodeUsed(ctx, rec.CardID); err != nil {
		return nil, newError(KindInternalError, "failed to mark registration code used", err)
	}

	return &CardRegistrationResponse{
		ProtocolName:    "create_bolt_card_response",
		ProtocolVersion: 2,
		CardName:        rec.CardName,
		LNURLWBase:      s.cfg.LNURLWBase,
		K0:              hex.EncodeToString(rec.K0[:]),
		K1:              hex.EncodeToString(rec.K1[:]),
		K2:              hex.EncodeToString(rec.K2[:]),
		K3:              hex.EncodeToString(rec.K3[:]),
		K4:              hex.EncodeToString(rec.K4[:]),
	}, nil
}

func generateKeys() ([5]cardauth.AesKey, error) {
	var keys [5]cardauth.AesKey
	for i := range keys {
		raw := make([]byte, cardauth.KeySize)
		if _, err := rand.Read(raw); err != nil {
			return keys, err
		}
		key, err := cardauth.NewAesKey(raw)
		if err != nil {
			return keys, err
		}
		keys[i] = key
	}
	return keys, nil
}

func generateOneTimeCode() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
