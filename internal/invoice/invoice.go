// Package invoice implements C3, the BOLT-11 invoice adapter: it parses
// a bolt11 string offline (no Lightning node round-trip) and exposes the
// fields cardauth needs to enforce spend limits and expiry.
package invoice

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"

	"lnurlw-boltcard/internal/cardauth"
)

// Parser parses bolt11 strings against a fixed chain network. Net is
// whichever of chaincfg.MainNetParams / TestNet3Params / RegressionNetParams
// matches the Lightning backend this server pays against; mismatched
// network prefixes (lnbc vs lntb) are rejected by zpay32 itself.
type Parser struct {
	Net *chaincfg.Params
}

// NewParser builds a Parser for the given chain network.
func NewParser(net *chaincfg.Params) *Parser {
	return &Parser{Net: net}
}

// Parse decodes raw and returns the fields cardauth.Service needs. It
// satisfies cardauth.InvoiceParser.
func (p *Parser) Parse(raw string) (cardauth.Invoice, error) {
	decoded, err := zpay32.Decode(raw, p.Net)
	if err != nil {
		return cardauth.Invoice{}, err
	}

	// An amountless invoice decodes without error; cardauth.Service
	// classifies AmountMsats <= 0 as NoAmount, distinct from a parse
	// failure (BadInvoice).
	if decoded.MilliSat == nil {
		return cardauth.Invoice{AmountMsats: 0}, nil
	}

	var description string
	if decoded.Description != nil {
		description = *decoded.Description
	}

	var paymentHash string
	if decoded.PaymentHash != nil {
		paymentHash = hexString(decoded.PaymentHash[:])
	}

	expired := time.Now().After(decoded.Timestamp.Add(decoded.Expiry()))

	return cardauth.Invoice{
		PaymentHash: paymentHash,
		AmountMsats: int64(*decoded.MilliSat),
		Description: description,
		Expired:     expired,
	}, nil
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[2*i] = hexDigits[v>>4]
		out[2*i+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
