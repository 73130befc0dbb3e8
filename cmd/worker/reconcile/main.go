// Command reconcile polls for sessions stuck in the Invoiced state — a
// payment that succeeded at the Lightning backend but whose mark_paid
// write never landed, or one that simply never got a callback response
// back to the wallet — and publishes them to a Redis stream for
// operational follow-up. It never retries pay_invoice and never mutates
// session state itself, per §9's residual-state design note.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"lnurlw-boltcard/config"
	"lnurlw-boltcard/internal/queue"
	"lnurlw-boltcard/internal/store"
	"lnurlw-boltcard/pkg/cache"
	"lnurlw-boltcard/pkg/logger"
	streams "lnurlw-boltcard/pkg/queue"
)

const (
	staleInvoicedStream = "stale_invoiced"
	staleAfter           = 5 * time.Minute
	pollInterval         = 1 * time.Minute
)

var Cfg config.ApiConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("starting stale-invoiced reconciliation worker")

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg store.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := store.NewDB(dbCfg, logger.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	masterKey, err := cardKeyMasterKey()
	if err != nil {
		return err
	}
	cardRepo, err := store.NewCardRepository(db, masterKey)
	if err != nil {
		return fmt.Errorf("failed to initialize card repository: %w", err)
	}

	publisher := streams.NewStreamQueue(cache.Client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := sweep(ctx, cardRepo, publisher); err != nil {
				logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		case sig := <-sigChan:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			return nil
		}
	}
}

func sweep(ctx context.Context, cardRepo *store.CardRepository, publisher *streams.StreamQueue) error {
	stale, err := cardRepo.FindStaleInvoiced(ctx, staleAfter)
	if err != nil {
		return fmt.Errorf("failed to query stale invoiced sessions: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	logger.Info("found stale invoiced sessions", zap.Int("count", len(stale)))

	for _, session := range stale {
		msg := queue.StaleInvoicedMessage{
			PaymentID:    session.PaymentID,
			CardID:       session.CardID,
			Invoice:      session.Invoice,
			AmountMsats:  session.AmountMsats,
			CreatedAtRFC: session.CreatedAt.Format(time.RFC3339),
		}
		data, err := msg.ToJSON()
		if err != nil {
			logger.Error("failed to marshal stale invoiced message", zap.Error(err))
			continue
		}
		if _, err := publisher.Publish(ctx, staleInvoicedStream, data); err != nil {
			logger.Error("failed to publish stale invoiced message",
				zap.Int64("payment_id", session.PaymentID), zap.Error(err))
		}
	}
	return nil
}

func cardKeyMasterKey() ([]byte, error) {
	raw := Cfg.Security.CardKeyMasterKeyBase64
	if raw == "" {
		return nil, fmt.Errorf("LNURLW_CARD_KEY_MASTER_KEY_BASE64 is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid card key master key: %w", err)
	}
	return key, nil
}
