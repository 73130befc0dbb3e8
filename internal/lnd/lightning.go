package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"

	"lnurlw-boltcard/internal/cardauth"
)

// PayInvoice implements cardauth.LightningBackend. It re-verifies the
// invoice's declared amount against expectedAmountMsats before
// contacting the node — the session's attach_invoice already stored
// this amount, so a mismatch here means the invoice changed or decoding
// disagreed with cardauth's own parse, either of which must abort the
// payment rather than pay an unexpected sum. Network and node errors are
// reported as a failed PaymentResult, not a Go error, per C4's contract.
func (c *Client) PayInvoice(ctx context.Context, invoice string, expectedAmountMsats int64) (cardauth.PaymentResult, error) {
	decoded, err := c.lnClient.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: invoice})
	if err != nil {
		return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("failed to decode invoice: %v", err)}, nil
	}

	declaredMsats := decoded.NumMsat
	if declaredMsats == 0 {
		declaredMsats = decoded.NumSatoshis * 1000
	}
	if declaredMsats != expectedAmountMsats {
		return cardauth.PaymentResult{
			Success: false,
			Error:   fmt.Sprintf("invoice amount %d msats does not match expected %d msats", declaredMsats, expectedAmountMsats),
		}, nil
	}

	req := &routerrpc.SendPaymentRequest{
		PaymentRequest: invoice,
		TimeoutSeconds: int32(c.cfg.PaymentTimeoutSeconds),
		FeeLimitSat:    c.cfg.MaxPaymentFeeSats,
	}

	payCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.PaymentTimeoutSeconds)*time.Second)
	defer cancel()

	stream, err := c.routerClient.SendPaymentV2(payCtx, req)
	if err != nil {
		return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("failed to initiate payment: %v", err)}, nil
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("payment stream error: %v", err)}, nil
		}

		switch payment.Status {
		case lnrpc.Payment_SUCCEEDED:
			result := cardauth.PaymentResult{Success: true, FeeMsats: payment.FeeMsat}
			if preimage, err := hex.DecodeString(payment.PaymentPreimage); err == nil {
				copy(result.Preimage[:], preimage)
			}
			return result, nil

		case lnrpc.Payment_FAILED:
			return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("payment failed: %s", payment.FailureReason)}, nil

		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_INITIATED:
			continue

		default:
			return cardauth.PaymentResult{Success: false, Error: fmt.Sprintf("unexpected payment status: %s", payment.Status)}, nil
		}
	}
}

// GetInfo implements cardauth.LightningBackend; not on the withdraw core
// path, provided for health endpoints per §4.4.
func (c *Client) GetInfo(ctx context.Context) (cardauth.NodeInfo, error) {
	resp, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return cardauth.NodeInfo{}, fmt.Errorf("failed to get node info: %w", err)
	}
	return cardauth.NodeInfo{Alias: resp.Alias, PublicKey: resp.IdentityPubkey}, nil
}

var _ cardauth.LightningBackend = (*Client)(nil)
