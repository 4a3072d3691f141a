// Package storage provides persistent storage for the swap service
// using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage owns the swap, reverse swap, channel creation, referral and
// key index tables.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "lightbridge.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Forward (submarine) swaps
	CREATE TABLE IF NOT EXISTS swaps (
		id TEXT PRIMARY KEY,
		pair TEXT NOT NULL,
		order_side INTEGER NOT NULL,
		preimage_hash TEXT NOT NULL UNIQUE,
		invoice TEXT UNIQUE,
		onchain_amount INTEGER,
		expected_amount INTEGER,
		percentage_fee INTEGER,
		accept_zero_conf INTEGER DEFAULT 0,
		rate REAL,
		lockup_address TEXT NOT NULL,
		lockup_transaction_id TEXT,
		timeout_block_height INTEGER NOT NULL,
		refund_public_key TEXT,
		claim_address TEXT,
		key_index INTEGER,
		redeem_script TEXT,
		referral_id TEXT,
		status TEXT NOT NULL,
		created_at INTEGER,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_lockup_tx ON swaps(lockup_transaction_id);
	CREATE INDEX IF NOT EXISTS idx_swaps_status ON swaps(status);

	-- Reverse swaps
	CREATE TABLE IF NOT EXISTS reverse_swaps (
		id TEXT PRIMARY KEY,
		pair TEXT NOT NULL,
		order_side INTEGER NOT NULL,
		preimage_hash TEXT NOT NULL,
		invoice TEXT NOT NULL,
		miner_fee_invoice TEXT,
		onchain_amount INTEGER NOT NULL,
		invoice_amount INTEGER NOT NULL,
		percentage_fee INTEGER,
		prepay_onchain_amount INTEGER,
		lockup_address TEXT NOT NULL,
		lockup_transaction_id TEXT,
		redeem_script TEXT,
		claim_public_key TEXT,
		claim_address TEXT,
		timeout_block_height INTEGER NOT NULL,
		key_index INTEGER,
		referral_id TEXT,
		status TEXT NOT NULL,
		created_at INTEGER,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_reverse_swaps_status ON reverse_swaps(status);

	-- Channel creations attached to forward swaps
	CREATE TABLE IF NOT EXISTS channel_creations (
		swap_id TEXT PRIMARY KEY,
		inbound_liquidity INTEGER NOT NULL,
		private INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(swap_id) REFERENCES swaps(id)
	);

	-- Referrals
	CREATE TABLE IF NOT EXISTS referrals (
		id TEXT PRIMARY KEY,
		fee_share INTEGER NOT NULL,
		routing_node TEXT UNIQUE,
		api_key TEXT NOT NULL,
		api_secret TEXT NOT NULL,
		created_at INTEGER
	);

	-- HD key index issuance, one monotonic counter per wallet
	CREATE TABLE IF NOT EXISTS key_indices (
		symbol TEXT PRIMARY KEY,
		next_index INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
