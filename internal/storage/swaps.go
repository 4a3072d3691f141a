// Package storage - swap and reverse swap persistence.
package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Swap persistence errors
var (
	ErrSwapNotFound        = errors.New("swap not found")
	ErrSwapExists          = errors.New("swap with preimage hash already exists")
	ErrSwapInvoiceExists   = errors.New("swap with invoice already exists")
	ErrSwapHasInvoice      = errors.New("swap already has an invoice")
	ErrReverseSwapNotFound = errors.New("reverse swap not found")
)

// Swap is a persisted forward (submarine) swap.
type Swap struct {
	ID        string
	Pair      string
	OrderSide int

	PreimageHash string
	Invoice      string

	OnchainAmount  uint64
	ExpectedAmount uint64
	PercentageFee  uint64
	AcceptZeroConf bool
	Rate           float64

	LockupAddress       string
	LockupTransactionID string
	TimeoutBlockHeight  uint32

	RefundPublicKey string
	ClaimAddress    string
	KeyIndex        uint32
	RedeemScript    string
	ReferralID      string

	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReverseSwap is a persisted reverse swap.
type ReverseSwap struct {
	ID        string
	Pair      string
	OrderSide int

	PreimageHash    string
	Invoice         string
	MinerFeeInvoice string

	OnchainAmount       uint64
	InvoiceAmount       uint64
	PercentageFee       uint64
	PrepayOnchainAmount uint64

	LockupAddress       string
	LockupTransactionID string
	RedeemScript        string
	ClaimPublicKey      string
	ClaimAddress        string
	TimeoutBlockHeight  uint32
	KeyIndex            uint32
	ReferralID          string

	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChannelCreation is a channel request attached to a forward swap.
type ChannelCreation struct {
	SwapID           string
	InboundLiquidity uint32
	Private          bool
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Primary key violations carry their own extended code but the
	// same "UNIQUE constraint failed" message.
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique &&
		sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateSwap inserts a new swap. The unique indexes on preimage hash
// and invoice back the orchestrator's optimistic pre-checks.
func (s *Storage) CreateSwap(swap *Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swap.CreatedAt = now
	swap.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO swaps (
			id, pair, order_side, preimage_hash, invoice,
			onchain_amount, expected_amount, percentage_fee,
			accept_zero_conf, rate, lockup_address, lockup_transaction_id,
			timeout_block_height, refund_public_key, claim_address,
			key_index, redeem_script, referral_id, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swap.ID,
		swap.Pair,
		swap.OrderSide,
		swap.PreimageHash,
		nullString(swap.Invoice),
		swap.OnchainAmount,
		swap.ExpectedAmount,
		swap.PercentageFee,
		boolToInt(swap.AcceptZeroConf),
		swap.Rate,
		swap.LockupAddress,
		nullString(swap.LockupTransactionID),
		swap.TimeoutBlockHeight,
		nullString(swap.RefundPublicKey),
		nullString(swap.ClaimAddress),
		swap.KeyIndex,
		nullString(swap.RedeemScript),
		nullString(swap.ReferralID),
		swap.Status,
		swap.CreatedAt.Unix(),
		swap.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err, "preimage_hash") {
			return ErrSwapExists
		}
		if isUniqueViolation(err, "invoice") {
			return ErrSwapInvoiceExists
		}
		return err
	}

	return nil
}

const swapColumns = `id, pair, order_side, preimage_hash, invoice,
	onchain_amount, expected_amount, percentage_fee,
	accept_zero_conf, rate, lockup_address, lockup_transaction_id,
	timeout_block_height, refund_public_key, claim_address,
	key_index, redeem_script, referral_id, status, created_at, updated_at`

// GetSwap retrieves a swap by id.
func (s *Storage) GetSwap(id string) (*Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+swapColumns+" FROM swaps WHERE id = ?", id)
	return scanSwap(row)
}

// GetSwapByPreimageHash retrieves a swap by its preimage hash.
func (s *Storage) GetSwapByPreimageHash(preimageHash string) (*Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+swapColumns+" FROM swaps WHERE preimage_hash = ?", preimageHash)
	return scanSwap(row)
}

// GetSwapByInvoice retrieves a swap by its invoice.
func (s *Storage) GetSwapByInvoice(invoice string) (*Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+swapColumns+" FROM swaps WHERE invoice = ?", invoice)
	return scanSwap(row)
}

// GetUnfinishedSwapByLockupTransactionID finds a swap whose lockup is
// still in flight for the given funding transaction.
func (s *Storage) GetUnfinishedSwapByLockupTransactionID(txID string) (*Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+swapColumns+` FROM swaps
		WHERE lockup_transaction_id = ?
		AND status NOT IN ('invoice.settled', 'swap.refunded', 'swap.expired')`,
		txID,
	)
	return scanSwap(row)
}

// SetSwapInvoice binds an invoice to a swap. The invoice is set-once;
// a second bind fails with ErrSwapHasInvoice, a duplicate invoice
// across swaps fails with ErrSwapInvoiceExists.
func (s *Storage) SetSwapInvoice(id, invoice string, expectedAmount, percentageFee uint64, acceptZeroConf bool, rate float64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE swaps
		SET invoice = ?, expected_amount = ?, percentage_fee = ?,
			accept_zero_conf = ?, rate = ?, status = ?, updated_at = ?
		WHERE id = ? AND invoice IS NULL`,
		invoice,
		expectedAmount,
		percentageFee,
		boolToInt(acceptZeroConf),
		rate,
		status,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		if isUniqueViolation(err, "invoice") {
			return ErrSwapInvoiceExists
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the swap is missing or the invoice was already set;
		// the caller checked existence first.
		return ErrSwapHasInvoice
	}

	return nil
}

// UpdateSwapStatus updates the lifecycle status of a swap.
func (s *Storage) UpdateSwapStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE swaps SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSwapNotFound
	}
	return nil
}

// SetSwapLockupTransaction records the observed funding transaction.
func (s *Storage) SetSwapLockupTransaction(id, txID string, onchainAmount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE swaps SET lockup_transaction_id = ?, onchain_amount = ?, updated_at = ? WHERE id = ?",
		txID, onchainAmount, time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSwapNotFound
	}
	return nil
}

// DeleteSwap removes a swap and its channel creation, if any.
func (s *Storage) DeleteSwap(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Channel creation first, then the swap it references.
	if _, err := tx.Exec("DELETE FROM channel_creations WHERE swap_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM swaps WHERE id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

func scanSwap(row *sql.Row) (*Swap, error) {
	var swap Swap
	var invoice, lockupTxID, refundPubKey, claimAddress, redeemScript, referralID sql.NullString
	var acceptZeroConf int
	var createdAt, updatedAt int64

	err := row.Scan(
		&swap.ID,
		&swap.Pair,
		&swap.OrderSide,
		&swap.PreimageHash,
		&invoice,
		&swap.OnchainAmount,
		&swap.ExpectedAmount,
		&swap.PercentageFee,
		&acceptZeroConf,
		&swap.Rate,
		&swap.LockupAddress,
		&lockupTxID,
		&swap.TimeoutBlockHeight,
		&refundPubKey,
		&claimAddress,
		&swap.KeyIndex,
		&redeemScript,
		&referralID,
		&swap.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSwapNotFound
		}
		return nil, err
	}

	swap.Invoice = invoice.String
	swap.LockupTransactionID = lockupTxID.String
	swap.RefundPublicKey = refundPubKey.String
	swap.ClaimAddress = claimAddress.String
	swap.RedeemScript = redeemScript.String
	swap.ReferralID = referralID.String
	swap.AcceptZeroConf = acceptZeroConf == 1
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)

	return &swap, nil
}

// CreateReverseSwap inserts a new reverse swap.
func (s *Storage) CreateReverseSwap(swap *ReverseSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swap.CreatedAt = now
	swap.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO reverse_swaps (
			id, pair, order_side, preimage_hash, invoice, miner_fee_invoice,
			onchain_amount, invoice_amount, percentage_fee, prepay_onchain_amount,
			lockup_address, lockup_transaction_id, redeem_script,
			claim_public_key, claim_address, timeout_block_height,
			key_index, referral_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swap.ID,
		swap.Pair,
		swap.OrderSide,
		swap.PreimageHash,
		swap.Invoice,
		nullString(swap.MinerFeeInvoice),
		swap.OnchainAmount,
		swap.InvoiceAmount,
		swap.PercentageFee,
		swap.PrepayOnchainAmount,
		swap.LockupAddress,
		nullString(swap.LockupTransactionID),
		nullString(swap.RedeemScript),
		nullString(swap.ClaimPublicKey),
		nullString(swap.ClaimAddress),
		swap.TimeoutBlockHeight,
		swap.KeyIndex,
		nullString(swap.ReferralID),
		swap.Status,
		swap.CreatedAt.Unix(),
		swap.UpdatedAt.Unix(),
	)
	return err
}

const reverseSwapColumns = `id, pair, order_side, preimage_hash, invoice,
	miner_fee_invoice, onchain_amount, invoice_amount, percentage_fee,
	prepay_onchain_amount, lockup_address, lockup_transaction_id,
	redeem_script, claim_public_key, claim_address, timeout_block_height,
	key_index, referral_id, status, created_at, updated_at`

// GetReverseSwap retrieves a reverse swap by id.
func (s *Storage) GetReverseSwap(id string) (*ReverseSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+reverseSwapColumns+" FROM reverse_swaps WHERE id = ?", id)
	return scanReverseSwap(row)
}

// UpdateReverseSwapStatus updates the lifecycle status of a reverse swap.
func (s *Storage) UpdateReverseSwapStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE reverse_swaps SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrReverseSwapNotFound
	}
	return nil
}

// DeleteReverseSwap removes a reverse swap.
func (s *Storage) DeleteReverseSwap(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM reverse_swaps WHERE id = ?", id)
	return err
}

func scanReverseSwap(row *sql.Row) (*ReverseSwap, error) {
	var swap ReverseSwap
	var minerFeeInvoice, lockupTxID, redeemScript, claimPubKey, claimAddress, referralID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&swap.ID,
		&swap.Pair,
		&swap.OrderSide,
		&swap.PreimageHash,
		&swap.Invoice,
		&minerFeeInvoice,
		&swap.OnchainAmount,
		&swap.InvoiceAmount,
		&swap.PercentageFee,
		&swap.PrepayOnchainAmount,
		&swap.LockupAddress,
		&lockupTxID,
		&redeemScript,
		&claimPubKey,
		&claimAddress,
		&swap.TimeoutBlockHeight,
		&swap.KeyIndex,
		&referralID,
		&swap.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReverseSwapNotFound
		}
		return nil, err
	}

	swap.MinerFeeInvoice = minerFeeInvoice.String
	swap.LockupTransactionID = lockupTxID.String
	swap.RedeemScript = redeemScript.String
	swap.ClaimPublicKey = claimPubKey.String
	swap.ClaimAddress = claimAddress.String
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)

	return &swap, nil
}

// CreateChannelCreation attaches a channel request to a swap.
func (s *Storage) CreateChannelCreation(c *ChannelCreation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO channel_creations (swap_id, inbound_liquidity, private) VALUES (?, ?, ?)",
		c.SwapID, c.InboundLiquidity, boolToInt(c.Private),
	)
	return err
}

// GetChannelCreation retrieves the channel request for a swap, if any.
func (s *Storage) GetChannelCreation(swapID string) (*ChannelCreation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c ChannelCreation
	var private int
	err := s.db.QueryRow(
		"SELECT swap_id, inbound_liquidity, private FROM channel_creations WHERE swap_id = ?",
		swapID,
	).Scan(&c.SwapID, &c.InboundLiquidity, &private)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Private = private == 1

	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
