// Package storage - referral persistence.
package storage

import (
	"database/sql"
	"errors"
	"time"
)

// Referral persistence errors
var (
	ErrReferralNotFound    = errors.New("referral not found")
	ErrReferralExists      = errors.New("referral already exists")
	ErrRoutingNodeConflict = errors.New("routing node already registered")
)

// Referral maps a referral id to its fee share and api credentials.
type Referral struct {
	ID          string
	FeeShare    uint32
	RoutingNode string
	APIKey      string
	APISecret   string
	CreatedAt   time.Time
}

// CreateReferral inserts a new referral.
func (s *Storage) CreateReferral(r *Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.CreatedAt = time.Now()

	_, err := s.db.Exec(
		"INSERT INTO referrals (id, fee_share, routing_node, api_key, api_secret, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.FeeShare, nullString(r.RoutingNode), r.APIKey, r.APISecret, r.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err, "routing_node") {
			return ErrRoutingNodeConflict
		}
		if isUniqueViolation(err, "id") {
			return ErrReferralExists
		}
		return err
	}

	return nil
}

// GetReferral retrieves a referral by id.
func (s *Storage) GetReferral(id string) (*Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, fee_share, routing_node, api_key, api_secret, created_at FROM referrals WHERE id = ?",
		id,
	)
	return scanReferral(row)
}

// GetReferralByRoutingNode retrieves the referral registered for a
// Lightning routing node.
func (s *Storage) GetReferralByRoutingNode(routingNode string) (*Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, fee_share, routing_node, api_key, api_secret, created_at FROM referrals WHERE routing_node = ?",
		routingNode,
	)
	return scanReferral(row)
}

func scanReferral(row *sql.Row) (*Referral, error) {
	var r Referral
	var routingNode sql.NullString
	var createdAt int64

	err := row.Scan(&r.ID, &r.FeeShare, &routingNode, &r.APIKey, &r.APISecret, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}

	r.RoutingNode = routingNode.String
	r.CreatedAt = time.Unix(createdAt, 0)

	return &r, nil
}
