package lnd

import (
	"context"
	"fmt"

	"lnurlw-boltcard/internal/cardauth"
	"lnurlw-boltcard/internal/invoice"
)

// MockBackend is a LightningBackend that never touches the network: it
// validates the amount and expiry the same way a real node's payment
// attempt would, then always succeeds with a fixed all-zero preimage.
// Used in tests and local development (config.ApiConfig.Lnd.UseMock).
type MockBackend struct {
	parser *invoice.Parser
}

// NewMockBackend builds a MockBackend that decodes invoices with parser,
// so its amount/expiry validation agrees with the real cardauth pipeline.
func NewMockBackend(parser *invoice.Parser) *MockBackend {
	return &MockBackend{parser: parser}
}

func (m *MockBackend) PayInvoice(ctx context.Context, raw string, expectedAmountMsats int64) (cardauth.PaymentResult, error) {
	inv, err := m.parser.Parse(raw)
	if err != nil {
		return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("invalid invoice: %v", err)}, nil
	}

	if inv.AmountMsats != expectedAmountMsats {
		return cardauth.PaymentResult{
			Success: false,
			Error:   fmt.Sprintf("invoice amount %d msats doesn't match expected %d msats", inv.AmountMsats, expectedAmountMsats),
		}, nil
	}

	if inv.Expired {
		return cardauth.PaymentResult{Success: false, Error: "invoice is expired"}, nil
	}

	return cardauth.PaymentResult{Success: true}, nil
}

func (m *MockBackend) GetInfo(ctx context.Context) (cardauth.NodeInfo, error) {
	return cardauth.NodeInfo{Alias: "Mock Node", PublicKey: ""}, nil
}

var _ cardauth.LightningBackend = (*MockBackend)(nil)
