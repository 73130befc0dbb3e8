// Package lnd implements C4, the Lightning backend: a gRPC client
// wrapper around an LND node exposing exactly the two operations
// cardauth.Service depends on (PayInvoice, GetInfo), authenticated with
// LND's macaroon-over-TLS scheme.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Config holds LND connection settings, populated from
// config.ApiConfig.Lnd.
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	PaymentTimeoutSeconds int
	MaxPaymentFeeSats     int64
}

// macaroonCredential implements grpc.PerRPCCredentials, attaching the
// hex-encoded macaroon LND expects as request metadata on every RPC.
type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool { return true }

// Client is the real, gRPC-backed LightningBackend implementation.
type Client struct {
	conn         *grpc.ClientConn
	lnClient     lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	cfg          Config
}

// NewClient dials the configured LND node over TLS, authenticates with
// the macaroon at cfg.MacaroonPath, and validates the connection with a
// GetInfo call before returning.
func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	macaroonBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(macaroonBytes)}

	addr := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", addr, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	if _, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to lnd (is it running? wallet unlocked?): %w", err)
	}

	return &Client{
		conn:         conn,
		lnClient:     lnClient,
		routerClient: routerrpc.NewRouterClient(conn),
		cfg:          cfg,
	}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
