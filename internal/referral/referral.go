// Package referral manages referral registrations and their API
// credentials.
package referral

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lightbridge-exchange/lightbridge/internal/storage"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// Validation errors
var (
	ErrEmptyID          = errors.New("referral IDs cannot be empty")
	ErrInvalidFeeShare  = errors.New("referral fee share must be between 0 and 100")
	ErrDuplicateID      = errors.New("referral with ID exists already")
	ErrDuplicateRouting = errors.New("referral with routing node exists already")
)

const (
	apiKeyBytes    = 16
	apiSecretBytes = 32
)

// Credentials are the API credentials issued for a referral.
type Credentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// Registry validates and persists referrals.
type Registry struct {
	log   *logging.Logger
	store *storage.Storage
}

// NewRegistry creates a referral registry backed by the given store.
func NewRegistry(store *storage.Storage) *Registry {
	return &Registry{
		log:   logging.GetDefault().Component("referrals"),
		store: store,
	}
}

// Add validates and persists a referral, returning its freshly issued
// API credentials.
func (r *Registry) Add(id string, feeShare uint32, routingNode string) (*Credentials, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if feeShare > 100 {
		return nil, ErrInvalidFeeShare
	}

	apiKey, err := randomHex(apiKeyBytes)
	if err != nil {
		return nil, err
	}
	apiSecret, err := randomHex(apiSecretBytes)
	if err != nil {
		return nil, err
	}

	err = r.store.CreateReferral(&storage.Referral{
		ID:          id,
		FeeShare:    feeShare,
		RoutingNode: routingNode,
		APIKey:      apiKey,
		APISecret:   apiSecret,
	})
	switch {
	case errors.Is(err, storage.ErrRoutingNodeConflict):
		return nil, ErrDuplicateRouting
	case errors.Is(err, storage.ErrReferralExists):
		return nil, ErrDuplicateID
	case err != nil:
		return nil, fmt.Errorf("failed to persist referral: %w", err)
	}

	r.log.Info("Added referral", "id", id, "feeShare", feeShare)

	return &Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
}

// Get retrieves a referral by id.
func (r *Registry) Get(id string) (*storage.Referral, error) {
	return r.store.GetReferral(id)
}

// ByRoutingNode retrieves the referral registered for a Lightning
// routing node, nil when there is none.
func (r *Registry) ByRoutingNode(routingNode string) (*storage.Referral, error) {
	ref, err := r.store.GetReferralByRoutingNode(routingNode)
	if errors.Is(err, storage.ErrReferralNotFound) {
		return nil, nil
	}
	return ref, err
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate credentials: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
