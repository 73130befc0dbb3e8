package cardauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// msatsPerSat is the fixed-point scale every limit field in the
	// repository is stored in sats but compared against in msats.
	msatsPerSat = 1000
	// minWithdrawableMsats is the fixed LNURLw floor: one sat.
	minWithdrawableMsats = 1000
)

// Service wires the five components together: it is C5, the withdrawal
// state machine, holding references to C2 (Repository), C3
// (InvoiceParser) and C4 (LightningBackend). Domain is the public
// hostname advertised in the LNURLw callback URL.
type Service struct {
	repo    Repository
	invoice InvoiceParser
	backend LightningBackend
	lock    CardLock // optional; see CardLock's doc comment
	domain  string
	log     *zap.Logger
}

// NewService constructs the withdrawal state machine. lock may be nil.
func NewService(repo Repository, invoice InvoiceParser, backend LightningBackend, lock CardLock, domain string, log *zap.Logger) *Service {
	return &Service{repo: repo, invoice: invoice, backend: backend, lock: lock, domain: domain, log: log}
}

// Tap is the TAP entry point (§4.5.1): authenticate a card's encrypted
// payload p and CMAC tag c, bind/advance its counter, and mint a fresh
// withdraw session. cardID, if non-nil, selects the indexed /ln/{card_id}
// path instead of iterating every enabled card.
func (s *Service) Tap(ctx context.Context, pHex, cHex string, cardID *int64) (*LNURLWPayResponse, error) {
	p, err := decodeFixedHex(pHex, 16)
	if err != nil {
		return nil, newError(KindInvalidParam, "invalid p parameter", err)
	}
	c, err := decodeFixedHex(cHex, 8)
	if err != nil {
		return nil, newError(KindInvalidParam, "invalid c parameter", err)
	}
	var tag [8]byte
	copy(tag[:], c)

	candidates, err := s.loadCandidates(ctx, cardID)
	if err != nil {
		return nil, newError(KindInternalError, "failed to load candidate cards", err)
	}

	var matched *Card
	var uid [7]byte
	var counter uint32

	for i := range candidates {
		cand := candidates[i]

		k1, err := NewAesKey(cand.K1[:])
		if err != nil {
			continue
		}
		k2, err := NewAesKey(cand.K2[:])
		if err != nil {
			continue
		}

		plaintext, err := decryptBlock(k1, p)
		if err != nil {
			continue
		}
		candUID, candCounter, err := parseDecrypted(plaintext)
		if err != nil {
			continue // wrong tag byte: not this card
		}

		ok, err := verifyCMAC(k2, candUID, candCounter, tag)
		if err != nil || !ok {
			continue
		}

		matched = &candidates[i]
		uid = candUID
		counter = candCounter
		break
	}

	if matched == nil {
		return nil, newError(KindCardNotFound, "no enabled card matched this tap", nil)
	}

	release, locked := s.tryLockCard(ctx, matched.CardID)
	if locked {
		defer release()
	}

	if matched.UIDBound {
		if matched.UID != uid {
			return nil, newError(KindUIDMismatch, "tap UID does not match the card's bound UID", nil)
		}
	} else if err := s.repo.BindUID(ctx, matched.CardID, uid); err != nil {
		return nil, newError(KindInternalError, "failed to bind card UID", err)
	}

	if counter <= matched.LastCounter {
		return nil, newError(KindReplay, "tap counter is not greater than the stored counter", nil)
	}

	advanced, err := s.repo.AdvanceCounter(ctx, matched.CardID, counter)
	if err != nil {
		return nil, newError(KindInternalError, "failed to advance counter", err)
	}
	if !advanced {
		return nil, newError(KindReplay, "lost the counter-advance race to a concurrent tap", nil)
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, newError(KindInternalError, "failed to generate session token", err)
	}
	if _, err := s.repo.CreateSession(ctx, matched.CardID, token); err != nil {
		return nil, newError(KindInternalError, "failed to create session", err)
	}

	dailySpent, err := s.repo.DailyTotalMsats(ctx, matched.CardID)
	if err != nil {
		return nil, newError(KindInternalError, "failed to compute daily spend", err)
	}

	dailyRemainingSats := (matched.DayLimitSats*msatsPerSat - dailySpent) / msatsPerSat
	if dailyRemainingSats < 0 {
		dailyRemainingSats = 0
	}
	maxWithdrawableSats := matched.TxLimitSats
	if dailyRemainingSats < maxWithdrawableSats {
		maxWithdrawableSats = dailyRemainingSats
	}
	if maxWithdrawableSats < 0 {
		maxWithdrawableSats = 0
	}

	return &LNURLWPayResponse{
		Status:             "OK",
		Tag:                "withdrawRequest",
		K1:                 token,
		Callback:           fmt.Sprintf("https://%s/ln/callback", s.domain),
		DefaultDescription: fmt.Sprintf("Withdrawal from %s", matched.CardName),
		MinWithdrawable:    minWithdrawableMsats,
		MaxWithdrawable:    maxWithdrawableSats * msatsPerSat,
	}, nil
}

// Callback is the CALLBACK entry point (§4.5.2): validate the invoice
// against spend limits, attach it to the session, pay it, and settle.
func (s *Service) Callback(ctx context.Context, sessionToken, pr string) (*CallbackResult, error) {
	session, err := s.repo.FindSession(ctx, sessionToken)
	if err != nil {
		return nil, newError(KindInternalError, "failed to look up session", err)
	}
	if session == nil {
		return nil, newError(KindInvalidK1, "unknown session token", nil)
	}
	if session.Paid {
		return nil, newError(KindAlreadyProcessed, "session already settled", nil)
	}

	inv, err := s.invoice.Parse(pr)
	if err != nil {
		return nil, newError(KindBadInvoice, "failed to parse invoice", err)
	}
	if inv.AmountMsats <= 0 {
		return nil, newError(KindNoAmount, "invoice carries no amount", nil)
	}

	card, err := s.repo.FindCard(ctx, session.CardID)
	if err != nil {
		return nil, newError(KindInternalError, "failed to load card", err)
	}
	if card == nil {
		return nil, newError(KindInternalError, "session references a missing card", nil)
	}

	if inv.AmountMsats > card.TxLimitSats*msatsPerSat {
		return nil, newError(KindTxLimit, "invoice exceeds the per-transaction limit", nil)
	}

	dailySpent, err := s.repo.DailyTotalMsats(ctx, card.CardID)
	if err != nil {
		return nil, newError(KindInternalError, "failed to compute daily spend", err)
	}
	if dailySpent+inv.AmountMsats > card.DayLimitSats*msatsPerSat {
		return nil, newError(KindDayLimit, "invoice would exceed the rolling daily limit", nil)
	}

	if err := s.repo.AttachInvoice(ctx, session.PaymentID, pr, inv.AmountMsats); err != nil {
		return nil, newError(KindInternalError, "failed to attach invoice", err)
	}

	result, err := s.backend.PayInvoice(ctx, pr, inv.AmountMsats)
	if err != nil {
		return nil, newError(KindInternalError, "lightning backend call failed", err)
	}
	if !result.Success {
		s.log.Warn("payment failed, session remains invoiced for reconciliation",
			zap.Int64("payment_id", session.PaymentID), zap.String("reason", result.Error))
		return nil, newError(KindPayFailed, result.Error, nil)
	}

	if err := s.repo.MarkPaid(ctx, session.PaymentID); err != nil {
		// The payment succeeded but the settlement write failed: the
		// session is now the residual Invoiced state §9 describes. The
		// core must not retry pay_invoice, so this is surfaced as an
		// internal error and left for reconciliation tooling.
		s.log.Error("payment succeeded but mark_paid failed; session left invoiced",
			zap.Int64("payment_id", session.PaymentID), zap.Error(err))
		return nil, newError(KindInternalError, "payment settled but could not be recorded", err)
	}

	return &CallbackResult{Status: "OK"}, nil
}

func (s *Service) loadCandidates(ctx context.Context, cardID *int64) ([]Card, error) {
	if cardID != nil {
		card, err := s.repo.FindCard(ctx, *cardID)
		if err != nil {
			return nil, err
		}
		if card == nil || !card.Enabled {
			return nil, nil
		}
		return []Card{*card}, nil
	}
	return s.repo.FindEnabledCards(ctx)
}

func (s *Service) tryLockCard(ctx context.Context, cardID int64) (func(), bool) {
	if s.lock == nil {
		return nil, false
	}
	release, acquired, err := s.lock.TryLock(ctx, cardID)
	if err != nil || !acquired {
		return nil, false
	}
	return release, true
}

func newSessionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func decodeFixedHex(s string, wantLen int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != wantLen {
		return nil, errors.New("unexpected length")
	}
	return b, nil
}
