package invoice

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedInvoice builds and bech32-encodes a self-signed regtest invoice
// for use as a test fixture, mirroring the construction/signing pattern
// every zpay32 producer in the reference corpus follows.
func signedInvoice(t *testing.T, opts ...func(*zpay32.Invoice)) string {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var paymentHash [32]byte
	copy(paymentHash[:], []byte("0123456789abcdef0123456789abcde"))

	inv, err := zpay32.NewInvoice(&chaincfg.RegressionNetParams, paymentHash, time.Now(), opts...)
	require.NoError(t, err)

	signer := zpay32.MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return ecdsa.SignCompact(privKey, hash, true), nil
		},
	}

	bech32, err := inv.Encode(signer)
	require.NoError(t, err)
	return bech32
}

func TestParser_Parse_ExtractsAmountAndDescription(t *testing.T) {
	raw := signedInvoice(t,
		zpay32.Description("card withdrawal"),
		zpay32.Amount(21_000_000),
	)

	p := NewParser(&chaincfg.RegressionNetParams)
	inv, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(21_000_000), inv.AmountMsats)
	assert.Equal(t, "card withdrawal", inv.Description)
	assert.NotEmpty(t, inv.PaymentHash)
	assert.False(t, inv.Expired)
}

func TestParser_Parse_AmountlessDecodesWithZeroAmount(t *testing.T) {
	raw := signedInvoice(t, zpay32.Description("no amount here"))

	p := NewParser(&chaincfg.RegressionNetParams)
	inv, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Zero(t, inv.AmountMsats)
}

func TestParser_Parse_DetectsExpiry(t *testing.T) {
	raw := signedInvoice(t,
		zpay32.Description("expires fast"),
		zpay32.Amount(1000),
		zpay32.Expiry(1*time.Nanosecond),
	)

	time.Sleep(10 * time.Millisecond)

	p := NewParser(&chaincfg.RegressionNetParams)
	inv, err := p.Parse(raw)
	require.NoError(t, err)
	assert.True(t, inv.Expired)
}

func TestParser_Parse_RejectsGarbage(t *testing.T) {
	p := NewParser(&chaincfg.RegressionNetParams)
	_, err := p.Parse("not-an-invoice")
	assert.Error(t, err)
}
