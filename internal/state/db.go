// ./internal/state/db.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/yieldpilot/vrm/internal/logger"
)

var stateLogger = logger.GetForComponent("state")

var ErrNotFound = errors.New("record not found")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// Store owns the database connection pool. All persistence flows through an
// injected *Store; there is no package-level connection.
type Store struct {
	db *sql.DB
}

// New opens and pings the connection pool.
func New(cfg DBConfig) (*Store, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	stateLogger.Info().Msg("Successfully connected to the PostgreSQL database")
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.db != nil {
		stateLogger.Info().Msg("Closing database connection...")
		if err := s.db.Close(); err != nil {
			stateLogger.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't
// exist. Safe to run multiple times.
func (s *Store) EnsureSchema() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_records (
			address VARCHAR(42) NOT NULL,
			chain_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			symbol VARCHAR(64) NOT NULL DEFAULT '',
			token_address VARCHAR(42) NOT NULL DEFAULT '',
			token_symbol VARCHAR(32) NOT NULL DEFAULT '',
			token_decimals INTEGER NOT NULL DEFAULT 18,
			whitelisted BOOLEAN NOT NULL DEFAULT FALSE,
			curator VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			max_allocation DECIMAL(10, 8) NOT NULL DEFAULT 0.4,
			static_risk_score DECIMAL(10, 4) NOT NULL DEFAULT 50,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (address, chain_id)
		);

		CREATE TABLE IF NOT EXISTS vault_metric_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			address VARCHAR(42) NOT NULL,
			chain_id BIGINT NOT NULL,
			snapshot_date DATE NOT NULL,
			apy DECIMAL(12, 6) NOT NULL,
			net_apy DECIMAL(12, 6) NOT NULL,
			net_apy_without_rewards DECIMAL(12, 6) NOT NULL,
			daily_apy DECIMAL(12, 6) NOT NULL,
			weekly_apy DECIMAL(12, 6) NOT NULL,
			monthly_apy DECIMAL(12, 6) NOT NULL,
			total_assets_usd DECIMAL(24, 6) NOT NULL,
			share_price DECIMAL(24, 12) NOT NULL,
			utilization_rate DECIMAL(12, 6) NOT NULL DEFAULT 0,
			rewards JSONB,
			allocations JSONB,
			reported_at TIMESTAMPTZ NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			UNIQUE (address, chain_id, snapshot_date)
		);

		CREATE TABLE IF NOT EXISTS user_profiles (
			wallet_address VARCHAR(42) PRIMARY KEY,
			token_symbol VARCHAR(32) NOT NULL,
			chain_id BIGINT NOT NULL,
			risk_profile VARCHAR(32) NOT NULL DEFAULT 'default',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS user_investments (
			user_wallet_address VARCHAR(42) NOT NULL,
			vault_address VARCHAR(42) NOT NULL,
			chain_id BIGINT NOT NULL,
			amount_invested DECIMAL(24, 6) NOT NULL DEFAULT 0,
			shares_received DECIMAL(36, 18) NOT NULL DEFAULT 0,
			current_value DECIMAL(24, 6) NOT NULL DEFAULT 0,
			current_shares DECIMAL(36, 18) NOT NULL DEFAULT 0,
			total_deposits DECIMAL(24, 6) NOT NULL DEFAULT 0,
			total_withdrawals DECIMAL(24, 6) NOT NULL DEFAULT 0,
			last_transaction_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			PRIMARY KEY (user_wallet_address, vault_address, chain_id)
		);

		CREATE TABLE IF NOT EXISTS rebalance_jobs (
			id UUID PRIMARY KEY,
			user_wallet_address VARCHAR(42) NOT NULL,
			status VARCHAR(16) NOT NULL,
			job_type VARCHAR(16) NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			executed_at TIMESTAMPTZ,
			total_amount_usd DECIMAL(24, 6) NOT NULL DEFAULT 0,
			total_drift_percent DECIMAL(12, 6) NOT NULL DEFAULT 0,
			from_vaults JSONB,
			to_vaults JSONB,
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_jobs_user_scheduled
			ON rebalance_jobs (user_wallet_address, scheduled_at DESC);

		CREATE TABLE IF NOT EXISTS run_reports (
			run_id UUID PRIMARY KEY,
			job_type VARCHAR(16) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			users_scanned INTEGER NOT NULL DEFAULT 0,
			users_skipped INTEGER NOT NULL DEFAULT 0,
			jobs_created INTEGER NOT NULL DEFAULT 0,
			jobs_completed INTEGER NOT NULL DEFAULT 0,
			jobs_failed INTEGER NOT NULL DEFAULT 0
		);
	`

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	stateLogger.Info().Msg("Database schema verified")
	return nil
}

// DropSchema removes every table. Destructive; used by the reset script
// only.
func (s *Store) DropSchema() error {
	dropSQL := `
		DROP TABLE IF EXISTS run_reports CASCADE;
		DROP TABLE IF EXISTS rebalance_jobs CASCADE;
		DROP TABLE IF EXISTS user_investments CASCADE;
		DROP TABLE IF EXISTS user_profiles CASCADE;
		DROP TABLE IF EXISTS vault_metric_snapshots CASCADE;
		DROP TABLE IF EXISTS vault_records CASCADE;
	`
	if _, err := s.db.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	stateLogger.Warn().Msg("Database schema dropped")
	return nil
}
