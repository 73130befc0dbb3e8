package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"lnurlw-boltcard/config"
	"lnurlw-boltcard/internal/cardauth"
	"lnurlw-boltcard/internal/httpapi"
	"lnurlw-boltcard/internal/invoice"
	"lnurlw-boltcard/internal/lnd"
	"lnurlw-boltcard/internal/lock"
	"lnurlw-boltcard/internal/registration"
	"lnurlw-boltcard/internal/store"
	"lnurlw-boltcard/pkg/cache"
	"lnurlw-boltcard/pkg/logger"
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
	root := filepath.Dir(filename)
	configPath := config.Path(root).Join("..", "..", "config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("lnurlw-boltcard starting", zap.String("domain", Cfg.Server.Domain))

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

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	masterKey, err := cardKeyMasterKey()
	if err != nil {
		return err
	}
	cardRepo, err := store.NewCardRepository(db, masterKey)
	if err != nil {
		return fmt.Errorf("failed to initialize card repository: %w", err)
	}

	net, err := bitcoinNetwork(Cfg.Server.Network)
	if err != nil {
		return err
	}
	invoiceParser := invoice.NewParser(net)

	var backend cardauth.LightningBackend
	if Cfg.Lnd.UseMock {
		logger.Warn("using mock Lightning backend, no real payments will be sent")
		backend = lnd.NewMockBackend(invoiceParser)
	} else {
		lndClient, err := lnd.NewClient(lnd.Config{
			GRPCHost:              Cfg.Lnd.GRPCHost,
			GRPCPort:              Cfg.Lnd.GRPCPort,
			TLSCertPath:           Cfg.Lnd.TLSCertPath,
			MacaroonPath:          Cfg.Lnd.MacaroonPath,
			PaymentTimeoutSeconds: Cfg.Lnd.PaymentTimeoutSeconds,
			MaxPaymentFeeSats:     Cfg.Lnd.MaxPaymentFeeSats,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to lnd: %w", err)
		}
		defer lndClient.Close()
		backend = lndClient
	}

	cardLock := lock.NewRedisCardLock()
	cardSvc := cardauth.NewService(cardRepo, invoiceParser, backend, cardLock, Cfg.Server.Domain, logger.Log)

	regSvc := registration.NewService(cardRepo, registration.Config{
		LNURLWBase:          fmt.Sprintf("lnurlw://%s/ln", Cfg.Server.Domain),
		RegistrationBase:    fmt.Sprintf("https://%s/new", Cfg.Server.Domain),
		DefaultTxLimitSats:  Cfg.Limits.DefaultTxLimitSats,
		DefaultDayLimitSats: Cfg.Limits.DefaultDayLimitSats,
		CodeTTL:             time.Duration(Cfg.Limits.RegistrationCodeTTLHours) * time.Hour,
	})

	handlers := httpapi.NewHandlers(cardSvc, regSvc, logger.Log)
	router := httpapi.NewRouter(handlers)

	srv := &http.Server{
		Addr:    Cfg.Server.Host + ":" + Cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server shut down gracefully")
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

func bitcoinNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", name)
	}
}
