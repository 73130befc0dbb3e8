// Package store implements C2, the card and session repository, against
// Postgres via pgx. It is the system's sole shared mutable resource: the
// withdrawal state machine in internal/cardauth never retains state
// across requests, so every correctness guarantee funnels through the
// atomic writes this package performs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config mirrors config.ApiConfig.Database; kept as its own type so this
// package has no compile-time dependency on the config package.
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	DB              string
	SslMode         string
	MaxConns        int
	MinConns        int
	MaxConnLifetime int
	MaxConnIdleTime int
}

// DB wraps a pgx connection pool and the golang-migrate runner that
// keeps the cards/card_payments schema current.
type DB struct {
	pool          *pgxpool.Pool
	migrationPath string
	log           *zap.Logger
}

// NewDB opens a connection pool and verifies connectivity with a ping.
func NewDB(cfg Config, log *zap.Logger) (*DB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DB, cfg.SslMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Error("failed to parse connection config", zap.Error(err))
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Minute
	poolCfg.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("failed to create db connection pool", zap.Error(err))
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Error("database ping failed", zap.Error(err))
		return nil, err
	}

	log.Info("database connection pool created")

	return &DB{pool: pool, migrationPath: "file://migrations", log: log}, nil
}

// Ping checks whether the pool can still reach the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations applies every pending migration in db.migrationPath.
func (db *DB) RunMigrations() error {
	connStr := db.pool.Config().ConnString()
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(db.migrationPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	db.log.Info("running database migrations")
	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			db.log.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	db.log.Info("migrations completed", zap.Uint("version", version))
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.log.Info("closing database connection pool")
		db.pool.Close()
	}
}
