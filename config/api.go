package config

type ApiConfig struct {
	Server struct {
		Host string `toml:"host" env:"LNURLW_HOST" env-default:"0.0.0.0"`
		Port string `toml:"port" env:"LNURLW_PORT" env-default:"8080"`
		// Domain is the public hostname advertised in lnurlw:// URLs and
		// the https callback, e.g. "cards.example.com".
		Domain string `toml:"domain" env:"LNURLW_DOMAIN"`
		// Network selects the bitcoin network bolt11 invoices are decoded
		// against: one of mainnet, testnet, signet, simnet, regtest.
		Network string `toml:"network" env:"LNURLW_NETWORK" env-default:"mainnet"`
	} `toml:"server"`

	Database struct {
		Host            string `toml:"host" env:"LNURLW_DB_HOST"`
		Port            string `toml:"port" env:"LNURLW_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"LNURLW_DB_USER"`
		Password        string `toml:"password" env:"LNURLW_DB_PASSWORD"`
		DB              string `toml:"db" env:"LNURLW_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"LNURLW_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"LNURLW_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"LNURLW_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"LNURLW_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"LNURLW_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"LNURLW_REDIS_HOST"`
		Port     string `toml:"port" env:"LNURLW_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"LNURLW_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"LNURLW_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Lnd struct {
		GRPCHost              string `toml:"grpc_host" env:"LNURLW_LND_GRPC_HOST" env-default:"localhost"`
		GRPCPort              string `toml:"grpc_port" env:"LNURLW_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"LNURLW_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"LNURLW_LND_MACAROON_PATH"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"LNURLW_LND_PAYMENT_TIMEOUT_SECONDS" env-default:"30"`
		MaxPaymentFeeSats     int64  `toml:"max_payment_fee_sats" env:"LNURLW_LND_MAX_PAYMENT_FEE_SATS" env-default:"100"`
		// UseMock selects the in-memory Lightning backend instead of a
		// real gRPC connection; intended for local development and CI.
		UseMock bool `toml:"use_mock" env:"LNURLW_LND_USE_MOCK" env-default:"false"`
	} `toml:"lnd"`

	Limits struct {
		DefaultTxLimitSats  int64 `toml:"default_tx_limit_sats" env:"LNURLW_DEFAULT_TX_LIMIT_SATS" env-default:"100000"`
		DefaultDayLimitSats int64 `toml:"default_day_limit_sats" env:"LNURLW_DEFAULT_DAY_LIMIT_SATS" env-default:"1000000"`
		// RegistrationCodeTTLHours bounds how long a one-time provisioning
		// code (issued by POST /api/createboltcard) remains redeemable.
		RegistrationCodeTTLHours int `toml:"registration_code_ttl_hours" env:"LNURLW_REGISTRATION_CODE_TTL_HOURS" env-default:"24"`
	} `toml:"limits"`

	Security struct {
		// CardKeyMasterKeyBase64 is the base64-encoded 32-byte AES-256-GCM
		// key internal/store uses to encrypt k0-k4 at rest. It must never
		// be stored in the database itself.
		CardKeyMasterKeyBase64 string `toml:"card_key_master_key_base64" env:"LNURLW_CARD_KEY_MASTER_KEY_BASE64"`
	} `toml:"security"`
}
