package store

import "time"

// cardRow mirrors the cards table exactly; the five AES keys are held
// encrypted at rest (see keyCodec in cards.go) and only decrypted when
// converted to a cardauth.Card for a single request's use.
type cardRow struct {
	CardID             int64
	UID                []byte // 7 bytes once bound, nil otherwise
	K0Enc              []byte
	K1Enc              []byte
	K2Enc              []byte
	K3Enc              []byte
	K4Enc              []byte
	LastCounter        int64
	Enabled            bool
	TxLimitSats        int64
	DayLimitSats       int64
	CardName           string
	OneTimeCode        *string
	OneTimeCodeExpiry  *time.Time
	OneTimeCodeUsed    bool
	CreatedAt          time.Time
}

// sessionRow mirrors the card_payments table.
type sessionRow struct {
	PaymentID    int64
	CardID       int64
	SessionToken string
	Invoice      *string
	AmountMsats  *int64
	Paid         bool
	PaymentTime  *time.Time
	CreatedAt    time.Time
}
